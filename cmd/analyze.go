package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/facerank/internal/aggregate"
	"github.com/andresmejia3/facerank/internal/config"
	"github.com/andresmejia3/facerank/internal/ingest"
	"github.com/andresmejia3/facerank/internal/report"
	"github.com/andresmejia3/facerank/internal/types"
)

var analyzeFromDB bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Join faces with performance data and rank influencers",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := loadPerformanceTable()
		if err != nil {
			return err
		}
		faces, err := loadFaces(cmd.Context(), analyzeFromDB)
		if err != nil {
			return err
		}
		_, err = runAnalyze(t, faces, os.Stdout)
		return err
	},
}

func init() {
	addAnalyzeFlags(analyzeCmd)
	analyzeCmd.Flags().String("input", "data/processed/performance_data.csv", "Performance CSV")
	analyzeCmd.Flags().String("faces", "reports/face_data.csv", "Face data CSV written by scan")
	analyzeCmd.Flags().String("video-base-url", "", "Relink file-name video IDs to this storage URL prefix")
	analyzeCmd.Flags().BoolVar(&analyzeFromDB, "from-db", false, "Read faces from the database instead of the face data CSV")
	rootCmd.AddCommand(analyzeCmd)
}

func addAnalyzeFlags(c *cobra.Command) {
	d := config.Default()
	c.Flags().String("metric", d.Analyze.Metric, "Performance column to rank by")
	c.Flags().Int("min-videos", d.Analyze.MinVideos, "Minimum videos for an influencer to be ranked")
	c.Flags().Int("top-n", d.Analyze.TopN, "Influencers shown in the top performers chart")
	c.Flags().Bool("strict", d.Analyze.Strict, "Reject the input if any metric value is negative")
}

func loadFaces(ctx context.Context, fromDB bool) ([]types.VideoFaceRecord, error) {
	if fromDB {
		db, err := openStore(ctx, true)
		if err != nil {
			return nil, err
		}
		return db.LoadVideoFaces(ctx)
	}
	faces, err := ingest.ReadFaceDataFile(cfg.FaceDataCSV)
	if err != nil {
		return nil, fmt.Errorf("failed to read face data: %w", err)
	}
	return faces, nil
}

// runAnalyze ranks influencers and writes the CSV and charts. Column validation happens
// before anything is written.
func runAnalyze(t *ingest.Table, faces []types.VideoFaceRecord, out io.Writer) ([]types.InfluencerAggregate, error) {
	perf, err := ingest.LoadPerformance(t, cfg.Analyze.Metric)
	if err != nil {
		return nil, err
	}
	faces = ingest.Relink(faces, cfg.VideoBaseURL)

	ranked, err := aggregate.Aggregate(faces, perf, aggregate.Options{
		Metric:    cfg.Analyze.Metric,
		MinVideos: cfg.Analyze.MinVideos,
		Strict:    cfg.Analyze.Strict,
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(map[string]any{
		"faces":       len(faces),
		"performance": len(perf),
		"ranked":      len(ranked),
	}).Debug("Aggregated performance")

	paths, err := report.WriteAll(cfg.ReportDir, ranked, cfg.Analyze.TopN)
	if err != nil {
		return nil, err
	}

	printRanking(out, aggregate.TopN(ranked, cfg.Analyze.TopN))
	for _, p := range paths {
		fmt.Fprintf(os.Stderr, "💾 Wrote %s\n", p)
	}
	return ranked, nil
}

func printRanking(out io.Writer, ranked []types.InfluencerAggregate) {
	if len(ranked) == 0 {
		fmt.Fprintln(out, "No influencer appears in enough videos to be ranked.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "RANK\tAVG PERFORMANCE\tVIDEOS\tSAMPLE VIDEO")
	fmt.Fprintln(w, "----\t---------------\t------\t------------")
	for i, a := range ranked {
		fmt.Fprintf(w, "%d\t%.2f\t%d\t%s\n", i+1, a.AvgPerformance, a.VideoCount, a.SampleVideoID)
	}
	w.Flush()
}
