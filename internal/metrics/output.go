package metrics

import (
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/andresmejia3/facerank/internal/ingest"
)

// TopPerformersTable lays the stats out as a CSV table.
func TopPerformersTable(stats []InfluencerStats) *ingest.Table {
	header := InfluencerStats{Metrics: DefaultMetrics}.Columns()
	if len(stats) > 0 {
		header = stats[0].Columns()
	}
	t := &ingest.Table{Header: header}
	for _, s := range stats {
		t.Rows = append(t.Rows, s.Row())
	}
	return t
}

// WriteSummary prints the overview lines of r with grouped thousands.
func WriteSummary(w io.Writer, r *Report) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "📊 Performance Report Overview\n")
	p.Fprintf(w, "   Total Influencers: %d\n", r.TotalInfluencers)
	p.Fprintf(w, "   Total Videos: %d\n", r.TotalVideos)
	p.Fprintf(w, "   Average Engagement Rate: %.2f%%\n", r.AverageEngagement)
	if len(r.TopPerformers) > 0 {
		best := r.TopPerformers[0]
		metric := r.RankingMetric
		if metric == "" {
			metric = DefaultRankingMetric
		}
		p.Fprintf(w, "   Top Influencer: %s (%s %.2f over %d videos)\n",
			best.InfluencerID, metric, best.Values[metric], best.TotalVideos)
	}
}
