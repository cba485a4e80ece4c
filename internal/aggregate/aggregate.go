// Package aggregate ranks face identities by the performance of the videos they appear in.
//
// The identity of a face is its raw encoding. No linking happens across videos: the
// same person seen in two videos with slightly different encodings forms two groups.
// Linking would change the output, so it stays out until the data model asks for it.
package aggregate

import (
	"fmt"
	"math"
	"slices"

	"github.com/andresmejia3/facerank/internal/types"
)

// DefaultMinVideos is the smallest group that appears in the ranking.
const DefaultMinVideos = 3

// Options control aggregation.
type Options struct {
	Metric    string // metric key in PerformanceRecord.Metrics, "Performance" when empty
	MinVideos int
	// Strict rejects the whole input when any metric value is negative.
	Strict bool
}

// ValidationError is returned in strict mode before any aggregation happens.
type ValidationError struct {
	VideoID string
	Metric  string
	Value   float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("negative value %v for %s in video %s", e.Value, e.Metric, e.VideoID)
}

type group struct {
	encoding types.FaceEncoding
	sum      float64
	rows     int
	videos   map[string]struct{}
	sample   string
}

// Aggregate joins faces with performance on video ID, groups by encoding and returns
// the groups with at least MinVideos videos, best average first. Rows with no partner
// on the other side are dropped. Equal averages keep the order in which their groups
// first appeared.
func Aggregate(faces []types.VideoFaceRecord, perf []types.PerformanceRecord, opts Options) ([]types.InfluencerAggregate, error) {
	metric := opts.Metric
	if metric == "" {
		metric = "Performance"
	}

	if opts.Strict {
		if err := Validate(perf, metric); err != nil {
			return nil, err
		}
	}

	// Several performance rows may exist for one video; each joins separately
	byVideo := make(map[string][]float64)
	for _, p := range perf {
		v, ok := p.Metrics[metric]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		byVideo[p.VideoID] = append(byVideo[p.VideoID], v)
	}

	var order []string
	groups := make(map[string]*group)
	for _, f := range faces {
		values, ok := byVideo[f.VideoID]
		if !ok {
			continue
		}
		key := f.Encoding.Key()
		g, ok := groups[key]
		if !ok {
			g = &group{encoding: f.Encoding, videos: make(map[string]struct{}), sample: f.VideoID}
			groups[key] = g
			order = append(order, key)
		}
		for _, v := range values {
			g.sum += v
			g.rows++
		}
		g.videos[f.VideoID] = struct{}{}
	}

	out := make([]types.InfluencerAggregate, 0, len(order))
	for _, key := range order {
		g := groups[key]
		if len(g.videos) < opts.MinVideos {
			continue
		}
		out = append(out, types.InfluencerAggregate{
			Encoding:       g.encoding,
			AvgPerformance: g.sum / float64(g.rows),
			VideoCount:     len(g.videos),
			SampleVideoID:  g.sample,
		})
	}

	slices.SortStableFunc(out, func(a, b types.InfluencerAggregate) int {
		switch {
		case a.AvgPerformance > b.AvgPerformance:
			return -1
		case a.AvgPerformance < b.AvgPerformance:
			return 1
		}
		return 0
	})
	return out, nil
}

// Validate returns a *ValidationError for the first record whose metric is negative.
func Validate(perf []types.PerformanceRecord, metric string) error {
	for _, p := range perf {
		if v, ok := p.Metrics[metric]; ok && v < 0 {
			return &ValidationError{VideoID: p.VideoID, Metric: metric, Value: v}
		}
	}
	return nil
}

// TopN returns the first n aggregates of an already ranked slice.
func TopN(ranked []types.InfluencerAggregate, n int) []types.InfluencerAggregate {
	if n < 0 || n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}
