// Package report writes the ranking outputs: the influencer performance CSV and the
// distribution and top-performer charts.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/andresmejia3/facerank/internal/ingest"
	"github.com/andresmejia3/facerank/internal/types"
)

// Output file names inside the report directory.
const (
	InfluencerCSV   = "influencer_performance.csv"
	DistributionPNG = "performance_dist.png"
	TopPNG          = "top_performers.png"
	TopMetricsCSV   = "top_performers.csv"
)

// DefaultTopN is the number of bars in the top performers chart.
const DefaultTopN = 10

// InfluencerTable lays out the ranking as face_encoding, avg_performance,
// video_count, sample_video.
func InfluencerTable(ranked []types.InfluencerAggregate) (*ingest.Table, error) {
	t := &ingest.Table{Header: []string{"face_encoding", "avg_performance", "video_count", "sample_video"}}
	for _, a := range ranked {
		enc, err := json.Marshal([]float64(a.Encoding))
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", a.SampleVideoID, err)
		}
		t.Rows = append(t.Rows, []string{
			string(enc),
			strconv.FormatFloat(a.AvgPerformance, 'f', -1, 64),
			strconv.Itoa(a.VideoCount),
			a.SampleVideoID,
		})
	}
	return t, nil
}

// WriteInfluencerCSV writes the ranking to path.
func WriteInfluencerCSV(path string, ranked []types.InfluencerAggregate) error {
	t, err := InfluencerTable(ranked)
	if err != nil {
		return err
	}
	return t.WriteFile(path)
}

// Bin is one histogram bucket covering [Lo, Hi). The last bin also includes Hi.
type Bin struct {
	Lo, Hi float64
	Count  int
}

// Histogram buckets values into equal-width bins. bins <= 0 picks Sturges' rule.
// Non-finite values are ignored.
func Histogram(values []float64, bins int) []Bin {
	values = slices.DeleteFunc(slices.Clone(values), func(v float64) bool {
		return math.IsNaN(v) || math.IsInf(v, 0)
	})
	if len(values) == 0 {
		return nil
	}
	if bins <= 0 {
		bins = int(math.Ceil(math.Log2(float64(len(values))))) + 1
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if lo == hi {
		return []Bin{{Lo: lo, Hi: hi, Count: len(values)}}
	}

	width := (hi - lo) / float64(bins)
	out := make([]Bin, bins)
	for i := range out {
		out[i] = Bin{Lo: lo + float64(i)*width, Hi: lo + float64(i+1)*width}
	}
	out[bins-1].Hi = hi
	for _, v := range values {
		i := int((v - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		out[i].Count++
	}
	return out
}

// Bar is one labelled value of the top performers chart.
type Bar struct {
	Label string
	Value float64
}

// TopSeries returns the n best aggregates, labelled by sample video.
func TopSeries(ranked []types.InfluencerAggregate, n int) []Bar {
	if n <= 0 {
		n = DefaultTopN
	}
	n = min(n, len(ranked))
	out := make([]Bar, n)
	for i, a := range ranked[:n] {
		out[i] = Bar{Label: shortLabel(a.SampleVideoID), Value: a.AvgPerformance}
	}
	return out
}

// shortLabel keeps the last path segment of a video URL.
func shortLabel(id string) string {
	id = strings.TrimRight(id, "/")
	if i := strings.IndexAny(id, "?#"); i >= 0 {
		id = id[:i]
	}
	if base := path.Base(id); base != "." && base != "/" {
		return base
	}
	return id
}

func values(ranked []types.InfluencerAggregate) []float64 {
	out := make([]float64, len(ranked))
	for i, a := range ranked {
		out[i] = a.AvgPerformance
	}
	return out
}

// WriteAll writes the CSV and both charts into dir.
func WriteAll(dir string, ranked []types.InfluencerAggregate, topN int) ([]string, error) {
	paths := []string{
		filepath.Join(dir, InfluencerCSV),
		filepath.Join(dir, DistributionPNG),
		filepath.Join(dir, TopPNG),
	}
	if err := WriteInfluencerCSV(paths[0], ranked); err != nil {
		return nil, err
	}
	hist := Histogram(values(ranked), 0)
	if err := SavePNG(paths[1], RenderHistogram("Distribution of Influencer Performance", "Average Performance", hist)); err != nil {
		return nil, err
	}
	series := TopSeries(ranked, topN)
	title := fmt.Sprintf("Top %d Influencers by Performance", len(series))
	if err := SavePNG(paths[2], RenderBars(title, "Sample Video", series)); err != nil {
		return nil, err
	}
	return paths, nil
}
