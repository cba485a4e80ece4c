package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/facerank/internal/metrics"
	"github.com/andresmejia3/facerank/internal/report"
)

var (
	rankingMetric string
	metricsTopN   int
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Analyze engagement per influencer from an export that carries influencer IDs",
	Long: `Reads a CSV with video_id, influencer_id, views, likes, comments, shares and
video_duration columns. Any negative count rejects the whole file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMetrics()
	},
}

func init() {
	metricsCmd.Flags().String("input", "data/processed/performance_data.csv", "Performance export CSV")
	metricsCmd.Flags().StringVar(&rankingMetric, "ranking-metric", metrics.DefaultRankingMetric, "Aggregate to rank influencers by")
	metricsCmd.Flags().IntVar(&metricsTopN, "top-n", metrics.DefaultTopN, "Number of top performers to keep")
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics() error {
	t, err := metrics.LoadCSV(cfg.InputCSV)
	if err != nil {
		return err
	}
	a, err := metrics.New(t)
	if err != nil {
		return err
	}

	r, err := a.ReportBy(rankingMetric, metricsTopN)
	if err != nil {
		return err
	}

	out := filepath.Join(cfg.ReportDir, report.TopMetricsCSV)
	if err := metrics.TopPerformersTable(r.TopPerformers).WriteFile(out); err != nil {
		return err
	}

	metrics.WriteSummary(os.Stderr, r)
	fmt.Fprintf(os.Stderr, "💾 Wrote %s\n", out)
	return nil
}
