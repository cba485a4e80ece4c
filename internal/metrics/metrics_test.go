package metrics

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/facerank/internal/ingest"
)

const exportCSV = `video_id,influencer_id,views,likes,comments,shares,video_duration,video_date
a1,alice,100,10,2,1,30,2024-01-01
a2,alice,200,20,0,0,45,2024-01-02
a3,alice,0,5,0,0,15,2024-01-03
b1,bob,10,5,0,0,20,2024-01-04
`

func table(t *testing.T, csv string) *ingest.Table {
	t.Helper()
	tbl, err := ingest.ReadTable(strings.NewReader(csv))
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestEngagement(t *testing.T) {
	tests := []struct {
		name                          string
		views, likes, comments, share float64
		want                          float64
	}{
		{"weighted", 100, 10, 2, 1, 15},
		{"likes only", 200, 20, 0, 0, 10},
		{"no views", 0, 5, 1, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Engagement(tt.views, tt.likes, tt.comments, tt.share); !near(got, tt.want) {
				t.Errorf("Engagement = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_MissingColumns(t *testing.T) {
	_, err := New(table(t, "video_id,views\nx,1\n"))
	var missing *MissingColumnsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingColumnsError, got %v", err)
	}
	if len(missing.Columns) != 5 {
		t.Errorf("expected 5 missing columns, got %v", missing.Columns)
	}
}

func TestNew_NegativeRejectsDataset(t *testing.T) {
	csv := strings.Replace(exportCSV, "b1,bob,10,", "b1,bob,-10,", 1)
	_, err := New(table(t, csv))
	if !errors.Is(err, ErrNegativeMetric) {
		t.Fatalf("expected ErrNegativeMetric, got %v", err)
	}
}

func TestNew_InvalidNumber(t *testing.T) {
	csv := strings.Replace(exportCSV, "a2,alice,200,", "a2,alice,lots,", 1)
	_, err := New(table(t, csv))
	if err == nil || !strings.Contains(err.Error(), "row 3") {
		t.Fatalf("expected row error, got %v", err)
	}
}

func TestNew_NonFinite(t *testing.T) {
	csv := strings.Replace(exportCSV, "a2,alice,200,", "a2,alice,NaN,", 1)
	_, err := New(table(t, csv))
	if !errors.Is(err, ingest.ErrNotFinite) || !strings.Contains(err.Error(), "row 3") {
		t.Fatalf("expected non-finite row error, got %v", err)
	}
}

func TestAggregateByInfluencer(t *testing.T) {
	a, err := New(table(t, exportCSV))
	if err != nil {
		t.Fatal(err)
	}

	stats, err := a.AggregateByInfluencer(nil, DefaultMinVideos)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 1 || stats[0].InfluencerID != "alice" {
		t.Fatalf("expected only alice to pass min videos, got %+v", stats)
	}
	s := stats[0]
	if s.TotalVideos != 3 {
		t.Errorf("expected 3 videos, got %d", s.TotalVideos)
	}
	checks := map[string]float64{
		"engagement_rate_mean":   25.0 / 3,
		"engagement_rate_median": 10,
		"engagement_rate_max":    15,
		"views_mean":             100,
		"likes_max":              20,
	}
	for k, want := range checks {
		if !near(s.Values[k], want) {
			t.Errorf("%s = %v, want %v", k, s.Values[k], want)
		}
	}

	all, _ := a.AggregateByInfluencer([]string{ColViews}, 1)
	if len(all) != 2 || all[1].InfluencerID != "bob" {
		t.Errorf("expected both influencers in id order, got %+v", all)
	}

	if _, err := a.AggregateByInfluencer([]string{"watch_time"}, 1); err == nil {
		t.Error("expected unknown metric error")
	}
}

func TestTopPerformers(t *testing.T) {
	csv := exportCSV + `c1,carol,100,50,0,0,10,
c2,carol,100,50,0,0,10,
c3,carol,100,50,0,0,10,
`
	a, err := New(table(t, csv))
	if err != nil {
		t.Fatal(err)
	}
	top, err := a.TopPerformers("", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].InfluencerID != "carol" {
		t.Errorf("expected carol on top, got %+v", top)
	}

	if _, err := a.TopPerformers("reach_mean", 1); err == nil {
		t.Error("expected unknown ranking metric error")
	}
}

func TestConsistency(t *testing.T) {
	a, err := New(table(t, exportCSV))
	if err != nil {
		t.Fatal(err)
	}
	cs := a.Consistency()
	if len(cs) != 2 {
		t.Fatalf("expected 2 influencers, got %d", len(cs))
	}
	alice := cs[0]
	wantStd := math.Sqrt((math.Pow(15-25.0/3, 2) + math.Pow(10-25.0/3, 2) + math.Pow(25.0/3, 2)) / 2)
	if !near(alice.Std, wantStd) {
		t.Errorf("std = %v, want %v", alice.Std, wantStd)
	}
	if !near(alice.Consistency, wantStd/(25.0/3)*100) {
		t.Errorf("unexpected consistency %v", alice.Consistency)
	}
	if !math.IsNaN(cs[1].Std) {
		t.Errorf("single-video std should be NaN, got %v", cs[1].Std)
	}
}

func TestReport(t *testing.T) {
	a, err := New(table(t, exportCSV))
	if err != nil {
		t.Fatal(err)
	}
	r, err := a.Report()
	if err != nil {
		t.Fatal(err)
	}
	if r.TotalInfluencers != 2 || r.TotalVideos != 4 {
		t.Errorf("unexpected totals %+v", r)
	}
	if !near(r.AverageEngagement, 18.75) {
		t.Errorf("average engagement = %v", r.AverageEngagement)
	}

	var buf bytes.Buffer
	WriteSummary(&buf, r)
	if !strings.Contains(buf.String(), "Average Engagement Rate: 18.75%") {
		t.Errorf("unexpected summary:\n%s", buf.String())
	}

	tbl := TopPerformersTable(r.TopPerformers)
	if tbl.Header[0] != "influencer_id" || tbl.Header[len(tbl.Header)-1] != "total_videos" {
		t.Errorf("unexpected header %v", tbl.Header)
	}
	if len(tbl.Rows) != 1 || tbl.Rows[0][0] != "alice" {
		t.Errorf("unexpected rows %v", tbl.Rows)
	}
}

func TestReportBy_SummaryUsesRankingMetric(t *testing.T) {
	a, err := New(table(t, exportCSV))
	if err != nil {
		t.Fatal(err)
	}

	r, err := a.ReportBy("views_max", 1)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	WriteSummary(&buf, r)
	if !strings.Contains(buf.String(), "Top Influencer: alice (views_max 200.00 over 3 videos)") {
		t.Errorf("expected views_max in summary:\n%s", buf.String())
	}

	r, _ = a.Report()
	buf.Reset()
	WriteSummary(&buf, r)
	if !strings.Contains(buf.String(), "alice (engagement_rate_mean 8.33 over 3 videos)") {
		t.Errorf("expected default metric in summary:\n%s", buf.String())
	}

	if _, err := a.ReportBy("followers_mean", 1); err == nil {
		t.Error("expected unknown ranking metric to fail")
	}
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.csv")
	os.WriteFile(good, []byte(exportCSV), 0644)
	if _, err := LoadCSV(good); err != nil {
		t.Errorf("LoadCSV failed: %v", err)
	}

	bad := filepath.Join(dir, "bad.csv")
	os.WriteFile(bad, []byte(strings.Replace(exportCSV, "2024-01-02", "yesterday", 1)), 0644)
	if _, err := LoadCSV(bad); err == nil || !strings.Contains(err.Error(), "row 3") {
		t.Errorf("expected date error, got %v", err)
	}
}
