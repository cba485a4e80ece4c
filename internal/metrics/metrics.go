// Package metrics analyzes per-influencer engagement from a strict performance export,
// where every row already carries an influencer_id.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/andresmejia3/facerank/internal/ingest"
)

// Column names of the strict export.
const (
	ColVideoID      = "video_id"
	ColInfluencerID = "influencer_id"
	ColViews        = "views"
	ColLikes        = "likes"
	ColComments     = "comments"
	ColShares       = "shares"
	ColDuration     = "video_duration"
	ColDate         = "video_date"

	EngagementRate = "engagement_rate"
)

const (
	DefaultMinVideos     = 3
	DefaultTopN          = 10
	DefaultRankingMetric = "engagement_rate_mean"
)

// RequiredColumns must all be present in the input.
var RequiredColumns = []string{ColVideoID, ColInfluencerID, ColViews, ColLikes, ColComments, ColShares, ColDuration}

// DefaultMetrics are aggregated when the caller names none.
var DefaultMetrics = []string{ColViews, ColLikes, ColComments, ColShares, EngagementRate}

// ErrNegativeMetric rejects a dataset with any negative count.
var ErrNegativeMetric = errors.New("negative values found in performance metrics")

// MissingColumnsError is shared with the rest of the tabular inputs.
type MissingColumnsError = ingest.MissingColumnsError

// dateLayouts are tried in order for video_date.
var dateLayouts = []string{time.DateOnly, time.RFC3339, time.DateTime, "01/02/2006", "2006/01/02"}

// Video is one validated row.
type Video struct {
	VideoID      string
	InfluencerID string
	Views        float64
	Likes        float64
	Comments     float64
	Shares       float64
	Duration     float64
	Date         time.Time // zero when the export has no date column
	Engagement   float64
}

func (v Video) value(metric string) (float64, bool) {
	switch metric {
	case ColViews:
		return v.Views, true
	case ColLikes:
		return v.Likes, true
	case ColComments:
		return v.Comments, true
	case ColShares:
		return v.Shares, true
	case ColDuration:
		return v.Duration, true
	case EngagementRate:
		return v.Engagement, true
	}
	return 0, false
}

// Engagement is (likes + 1.5*comments + 2*shares) / views as a percentage, and 0 for
// a video nobody viewed.
func Engagement(views, likes, comments, shares float64) float64 {
	if views == 0 {
		return 0
	}
	return (likes + comments*1.5 + shares*2.0) / views * 100
}

// Analyzer holds a validated dataset.
type Analyzer struct {
	videos []Video
}

// LoadCSV reads a strict export. A video_date column, when present, must parse.
func LoadCSV(path string) (*ingest.Table, error) {
	t, err := ingest.ReadTableFile(path)
	if err != nil {
		return nil, err
	}
	if i := t.Column(ColDate); i >= 0 {
		for n, row := range t.Rows {
			if strings.TrimSpace(row[i]) == "" {
				continue
			}
			if _, err := parseDate(row[i]); err != nil {
				return nil, fmt.Errorf("%s: row %d: %w", path, n+2, err)
			}
		}
	}
	return t, nil
}

// New validates t and computes the engagement rate of every row.
func New(t *ingest.Table) (*Analyzer, error) {
	if err := t.Require("performance data", RequiredColumns...); err != nil {
		return nil, err
	}

	idx := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		idx[h] = i
	}
	dateCol, hasDate := idx[ColDate]

	videos := make([]Video, 0, len(t.Rows))
	negative := false
	for n, row := range t.Rows {
		v := Video{
			VideoID:      strings.TrimSpace(row[idx[ColVideoID]]),
			InfluencerID: strings.TrimSpace(row[idx[ColInfluencerID]]),
		}
		fields := []struct {
			col string
			dst *float64
		}{
			{ColViews, &v.Views},
			{ColLikes, &v.Likes},
			{ColComments, &v.Comments},
			{ColShares, &v.Shares},
			{ColDuration, &v.Duration},
		}
		for _, f := range fields {
			x, err := strconv.ParseFloat(strings.TrimSpace(row[idx[f.col]]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: %s: %w", n+2, f.col, err)
			}
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, fmt.Errorf("row %d: %s: %w", n+2, f.col, ingest.ErrNotFinite)
			}
			if x < 0 {
				negative = true
			}
			*f.dst = x
		}
		if hasDate && strings.TrimSpace(row[dateCol]) != "" {
			d, err := parseDate(row[dateCol])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", n+2, err)
			}
			v.Date = d
		}
		v.Engagement = Engagement(v.Views, v.Likes, v.Comments, v.Shares)
		videos = append(videos, v)
	}
	if negative {
		return nil, ErrNegativeMetric
	}
	return &Analyzer{videos: videos}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid %s %q", ColDate, s)
}

// Videos returns the validated rows.
func (a *Analyzer) Videos() []Video { return a.videos }

// EngagementRow is one video's engagement rate.
type EngagementRow struct {
	VideoID      string
	InfluencerID string
	Rate         float64
}

// EngagementRates returns the per-video engagement rate in input order.
func (a *Analyzer) EngagementRates() []EngagementRow {
	out := make([]EngagementRow, len(a.videos))
	for i, v := range a.videos {
		out[i] = EngagementRow{VideoID: v.VideoID, InfluencerID: v.InfluencerID, Rate: v.Engagement}
	}
	return out
}

// InfluencerStats holds the aggregates of one influencer. Values is keyed
// "<metric>_mean", "<metric>_median" and "<metric>_max".
type InfluencerStats struct {
	InfluencerID string
	Metrics      []string
	Values       map[string]float64
	TotalVideos  int
}

// Columns returns the CSV header matching Row.
func (s InfluencerStats) Columns() []string {
	cols := []string{ColInfluencerID}
	for _, m := range s.Metrics {
		cols = append(cols, m+"_mean", m+"_median", m+"_max")
	}
	return append(cols, "total_videos")
}

// Row renders s in Columns order.
func (s InfluencerStats) Row() []string {
	row := []string{s.InfluencerID}
	for _, m := range s.Metrics {
		for _, agg := range []string{"_mean", "_median", "_max"} {
			row = append(row, formatFloat(s.Values[m+agg]))
		}
	}
	return append(row, strconv.Itoa(s.TotalVideos))
}

// byInfluencer groups rows by influencer_id, in influencer_id order.
func (a *Analyzer) byInfluencer() ([]string, map[string][]Video) {
	groups := make(map[string][]Video)
	for _, v := range a.videos {
		groups[v.InfluencerID] = append(groups[v.InfluencerID], v)
	}
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, groups
}

// AggregateByInfluencer computes mean, median and max of each metric per influencer,
// dropping influencers with fewer than minVideos videos.
func (a *Analyzer) AggregateByInfluencer(metrics []string, minVideos int) ([]InfluencerStats, error) {
	if len(metrics) == 0 {
		metrics = DefaultMetrics
	}
	for _, m := range metrics {
		if _, ok := (Video{}).value(m); !ok {
			return nil, fmt.Errorf("unknown metric %q", m)
		}
	}

	ids, groups := a.byInfluencer()
	var out []InfluencerStats
	for _, id := range ids {
		vs := groups[id]
		if len(vs) < minVideos {
			continue
		}
		st := InfluencerStats{
			InfluencerID: id,
			Metrics:      metrics,
			Values:       make(map[string]float64, len(metrics)*3),
			TotalVideos:  len(vs),
		}
		for _, m := range metrics {
			xs := make([]float64, len(vs))
			for i, v := range vs {
				xs[i], _ = v.value(m)
			}
			st.Values[m+"_mean"] = mean(xs)
			st.Values[m+"_median"] = median(xs)
			st.Values[m+"_max"] = slices.Max(xs)
		}
		out = append(out, st)
	}
	return out, nil
}

// TopPerformers returns the n influencers with the largest rankingMetric, using the
// default metrics and minimum video count.
func (a *Analyzer) TopPerformers(rankingMetric string, n int) ([]InfluencerStats, error) {
	if rankingMetric == "" {
		rankingMetric = DefaultRankingMetric
	}
	stats, err := a.AggregateByInfluencer(nil, DefaultMinVideos)
	if err != nil {
		return nil, err
	}
	if len(stats) > 0 {
		if _, ok := stats[0].Values[rankingMetric]; !ok {
			return nil, fmt.Errorf("unknown ranking metric %q", rankingMetric)
		}
	}
	slices.SortStableFunc(stats, func(x, y InfluencerStats) int {
		return cmpDesc(x.Values[rankingMetric], y.Values[rankingMetric])
	})
	if n >= 0 && n < len(stats) {
		stats = stats[:n]
	}
	return stats, nil
}

// ConsistencyStats describes how stable an influencer's engagement is. Std is the
// sample standard deviation, NaN for a single video.
type ConsistencyStats struct {
	InfluencerID string
	Mean         float64
	Std          float64
	TotalVideos  int
	Consistency  float64 // Std / Mean * 100
}

// Consistency returns engagement stability for every influencer.
func (a *Analyzer) Consistency() []ConsistencyStats {
	ids, groups := a.byInfluencer()
	out := make([]ConsistencyStats, 0, len(ids))
	for _, id := range ids {
		xs := make([]float64, len(groups[id]))
		for i, v := range groups[id] {
			xs[i] = v.Engagement
		}
		m, sd := mean(xs), sampleStd(xs)
		out = append(out, ConsistencyStats{
			InfluencerID: id,
			Mean:         m,
			Std:          sd,
			TotalVideos:  len(xs),
			Consistency:  sd / m * 100,
		})
	}
	return out
}

// Report is the overall analysis.
type Report struct {
	RankingMetric     string
	TopPerformers     []InfluencerStats
	Consistency       []ConsistencyStats
	TotalInfluencers  int
	TotalVideos       int
	AverageEngagement float64
}

// Report runs the full analysis with default settings.
func (a *Analyzer) Report() (*Report, error) {
	return a.ReportBy(DefaultRankingMetric, DefaultTopN)
}

// ReportBy runs the full analysis, keeping the n best influencers by rankingMetric.
func (a *Analyzer) ReportBy(rankingMetric string, n int) (*Report, error) {
	if rankingMetric == "" {
		rankingMetric = DefaultRankingMetric
	}
	top, err := a.TopPerformers(rankingMetric, n)
	if err != nil {
		return nil, err
	}
	ids, _ := a.byInfluencer()
	rates := make([]float64, len(a.videos))
	for i, v := range a.videos {
		rates[i] = v.Engagement
	}
	return &Report{
		RankingMetric:     rankingMetric,
		TopPerformers:     top,
		Consistency:       a.Consistency(),
		TotalInfluencers:  len(ids),
		TotalVideos:       len(a.videos),
		AverageEngagement: mean(rates),
	}, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	s := slices.Clone(xs)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func cmpDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
