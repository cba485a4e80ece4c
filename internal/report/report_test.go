package report

import (
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/facerank/internal/ingest"
	"github.com/andresmejia3/facerank/internal/types"
)

func ranked() []types.InfluencerAggregate {
	return []types.InfluencerAggregate{
		{Encoding: types.FaceEncoding{0.5, -0.25}, AvgPerformance: 30, VideoCount: 4, SampleVideoID: "https://cdn.example.com/videos/abc?x=1"},
		{Encoding: types.FaceEncoding{0.1, 0.2}, AvgPerformance: 20, VideoCount: 3, SampleVideoID: "https://cdn.example.com/videos/def"},
		{Encoding: types.FaceEncoding{1, 1}, AvgPerformance: 12.5, VideoCount: 3, SampleVideoID: "ghi.mp4"},
	}
}

func TestInfluencerTable(t *testing.T) {
	tbl, err := InfluencerTable(ranked())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"face_encoding", "avg_performance", "video_count", "sample_video"}
	if strings.Join(tbl.Header, ",") != strings.Join(want, ",") {
		t.Errorf("header = %v", tbl.Header)
	}
	if got := tbl.Rows[0]; got[0] != "[0.5,-0.25]" || got[1] != "30" || got[2] != "4" {
		t.Errorf("unexpected first row %v", got)
	}
	if tbl.Rows[2][1] != "12.5" {
		t.Errorf("unexpected average %s", tbl.Rows[2][1])
	}
}

func TestHistogram(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		bins   int
		counts []int
	}{
		{"empty", nil, 3, nil},
		{"constant", []float64{2, 2, 2}, 4, []int{3}},
		{"even split", []float64{0, 1, 2, 3}, 2, []int{2, 2}},
		{"max lands in last bin", []float64{0, 10}, 5, []int{1, 0, 0, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Histogram(tt.values, tt.bins)
			if len(got) != len(tt.counts) {
				t.Fatalf("expected %d bins, got %d", len(tt.counts), len(got))
			}
			for i, b := range got {
				if b.Count != tt.counts[i] {
					t.Errorf("bin %d count = %d, want %d", i, b.Count, tt.counts[i])
				}
			}
		})
	}

	// non-finite values are ignored rather than indexed
	got := Histogram([]float64{math.NaN(), 5, math.Inf(1), 10, math.Inf(-1)}, 2)
	if len(got) != 2 || got[0].Count != 1 || got[1].Count != 1 {
		t.Errorf("unexpected bins with non-finite input %+v", got)
	}
	if got := Histogram([]float64{math.NaN()}, 3); got != nil {
		t.Errorf("expected no bins for only NaN, got %+v", got)
	}

	// Sturges picks ceil(log2(8))+1 = 4 bins
	auto := Histogram([]float64{1, 2, 3, 4, 5, 6, 7, 8}, 0)
	if len(auto) != 4 {
		t.Errorf("expected 4 automatic bins, got %d", len(auto))
	}
}

func TestTopSeries(t *testing.T) {
	bars := TopSeries(ranked(), 2)
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].Label != "abc" || bars[0].Value != 30 {
		t.Errorf("unexpected first bar %+v", bars[0])
	}
	if len(TopSeries(ranked(), 0)) != 3 {
		t.Error("default top N should cap at the ranking length")
	}
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	paths, err := WriteAll(dir, ranked(), DefaultTopN)
	if err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 outputs, got %v", paths)
	}

	tbl, err := ingest.ReadTableFile(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Rows) != 3 {
		t.Errorf("expected 3 rows, got %d", len(tbl.Rows))
	}

	for _, p := range paths[1:] {
		f, err := os.Open(p)
		if err != nil {
			t.Fatal(err)
		}
		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			t.Fatalf("%s is not a PNG: %v", p, err)
		}
		if img.Bounds().Dx() != chartW || img.Bounds().Dy() != chartH {
			t.Errorf("unexpected size %v", img.Bounds())
		}
	}
}

func TestWriteAll_EmptyRanking(t *testing.T) {
	if _, err := WriteAll(t.TempDir(), nil, DefaultTopN); err != nil {
		t.Errorf("empty ranking should still produce outputs, got %v", err)
	}
}

func TestNiceCeil(t *testing.T) {
	tests := map[float64]float64{0: 1, 3: 5, 7: 10, 19: 20, 24: 25, 120: 200}
	for in, want := range tests {
		if got := niceCeil(in); got != want {
			t.Errorf("niceCeil(%v) = %v, want %v", in, got, want)
		}
	}
}
