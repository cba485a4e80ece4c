package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/facerank/internal/download"
	"github.com/andresmejia3/facerank/internal/ingest"
)

var normalizeOnly bool

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download every video linked from the performance data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if normalizeOnly {
			return normalizeVideoDir()
		}
		t, err := loadPerformanceTable()
		if err != nil {
			return err
		}
		_, err = runDownload(cmd.Context(), t)
		return err
	},
}

func init() {
	downloadCmd.Flags().String("input", "data/processed/performance_data.csv", "Performance CSV with a 'Video URL' column")
	downloadCmd.Flags().String("video-dir", "data/raw/videos", "Directory to store videos in")
	downloadCmd.Flags().BoolVar(&normalizeOnly, "normalize-only", false, "Only add missing .mp4 extensions to files already in the video directory")
	rootCmd.AddCommand(downloadCmd)
}

// runDownload fetches every distinct video URL of t. Failed downloads are logged and
// left out of the result's successful paths.
func runDownload(ctx context.Context, t *ingest.Table) ([]download.Result, error) {
	urls, err := ingest.VideoURLs(t)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "📥 Downloading %d videos to %s\n", len(urls), cfg.VideoDir)

	s := &download.Store{
		Dir:      cfg.VideoDir,
		Client:   httpClient,
		Progress: os.Stderr,
		Log:      log,
	}
	results, err := s.FetchAll(ctx, urls)
	if err != nil {
		return results, err
	}

	ok := 0
	for _, r := range results {
		if r.Err == nil {
			ok++
		}
	}
	fmt.Fprintf(os.Stderr, "📦 Downloaded %d/%d videos\n", ok, len(urls))

	if err := normalizeVideoDir(); err != nil {
		return results, err
	}
	return results, nil
}

func normalizeVideoDir() error {
	renamed, err := download.NormalizeExtensions(cfg.VideoDir)
	if err != nil {
		return fmt.Errorf("failed to normalize %s: %w", cfg.VideoDir, err)
	}
	for _, p := range renamed {
		log.WithField("path", p).Info("Added missing extension")
	}
	return nil
}
