package ingest

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/andresmejia3/facerank/internal/types"
)

const (
	// ColumnVideoURL is the spreadsheet's name for the video link.
	ColumnVideoURL = "Video URL"
	// ColumnVideo is the join key after renaming.
	ColumnVideo = "video"
	// ColumnPerformance is the default metric.
	ColumnPerformance = "Performance"
)

// LoadPerformance turns a spreadsheet table into performance records keyed by video URL.
// "Video URL" is renamed to "video". Both the video column and metric must be present.
//
// Rows with an empty metric cell are skipped, like a missing value. A metric that is
// present but not a number is an error naming the row. Other numeric columns are
// carried in Metrics when they parse.
func LoadPerformance(t *Table, metric string) ([]types.PerformanceRecord, error) {
	if metric == "" {
		metric = ColumnPerformance
	}
	t.Rename(ColumnVideoURL, ColumnVideo)
	if err := t.Require("performance data", ColumnVideo, metric); err != nil {
		return nil, err
	}

	videoCol := t.Column(ColumnVideo)
	metricCol := t.Column(metric)

	records := make([]types.PerformanceRecord, 0, len(t.Rows))
	for i, row := range t.Rows {
		videoID := strings.TrimSpace(row[videoCol])
		raw := strings.TrimSpace(row[metricCol])
		if raw == "" {
			continue
		}
		value, err := parseFinite(raw)
		if err != nil {
			// +2: one for the header, one for 1-based rows
			return nil, fmt.Errorf("row %d: invalid %s value %q: %w", i+2, metric, raw, err)
		}

		rec := types.PerformanceRecord{
			VideoID: videoID,
			Metrics: map[string]float64{metric: value},
		}
		for j, name := range t.Header {
			if j == metricCol || j == videoCol {
				continue
			}
			if v, err := parseFinite(strings.TrimSpace(row[j])); err == nil {
				rec.Metrics[name] = v
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// ErrNotFinite rejects NaN and infinite cells, which strconv accepts.
var ErrNotFinite = errors.New("value is not a finite number")

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNotFinite
	}
	return v, nil
}

// VideoURLs returns the distinct non-empty video links in table order.
func VideoURLs(t *Table) ([]string, error) {
	t.Rename(ColumnVideoURL, ColumnVideo)
	if err := t.Require("performance data", ColumnVideo); err != nil {
		return nil, err
	}
	col := t.Column(ColumnVideo)
	seen := make(map[string]bool)
	var urls []string
	for _, row := range t.Rows {
		u := strings.TrimSpace(row[col])
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls, nil
}
