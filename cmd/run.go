package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/facerank/internal/download"
	"github.com/andresmejia3/facerank/internal/ingest"
	"github.com/andresmejia3/facerank/internal/pipeline"
)

var skipDownload bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, download, scan and analyze in one go",
	Long: `Runs the whole pipeline. The spreadsheet is fetched when a sheet URL is
configured; otherwise the processed performance CSV is read.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var (
			t   *ingest.Table
			err error
		)
		if cfg.SheetURL != "" {
			t, err = runFetch(ctx)
		} else {
			t, err = loadPerformanceTable()
		}
		if err != nil {
			return err
		}
		// Fail on missing columns before any download starts
		if _, err := ingest.LoadPerformance(cloneTable(t), cfg.Analyze.Metric); err != nil {
			return err
		}

		var videos []pipeline.Video
		if skipDownload {
			if err := validateScanFlags(cfg); err != nil {
				return err
			}
			local, err := pipeline.VideosFromDir(cfg.VideoDir)
			if err != nil {
				return fmt.Errorf("failed to list videos: %w", err)
			}
			videos = resolveVideoIDs(local, urlsByFileName(), cfg.VideoBaseURL)
		} else {
			results, err := runDownload(ctx, t)
			if err != nil {
				return err
			}
			videos = downloadedVideos(results)
			if err := validateScanFlags(cfg); err != nil {
				return err
			}
		}

		faces, err := runScan(ctx, videos, scanFlags)
		if err != nil {
			return err
		}
		_, err = runAnalyze(t, faces, os.Stdout)
		return err
	},
}

func init() {
	runCmd.Flags().String("sheet-url", "", "Spreadsheet URL, shared by link")
	runCmd.Flags().String("processed", "data/processed/performance_data.csv", "Where to save the fetched table")
	runCmd.Flags().String("input", "data/processed/performance_data.csv", "Performance CSV used when no sheet URL is set")
	runCmd.Flags().String("video-base-url", "", "Storage URL prefix for videos not found in the performance data")
	runCmd.Flags().BoolVar(&skipDownload, "skip-download", false, "Scan the videos already in the video directory")
	addScanFlags(runCmd)
	addAnalyzeFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

// downloadedVideos turns successful downloads into scan inputs keyed by source URL.
func downloadedVideos(results []download.Result) []pipeline.Video {
	var videos []pipeline.Video
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		videos = append(videos, pipeline.Video{ID: r.URL, Path: r.Path})
	}
	return videos
}

func cloneTable(t *ingest.Table) *ingest.Table {
	return &ingest.Table{Header: append([]string(nil), t.Header...), Rows: t.Rows}
}
