package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/facerank/internal/ingest"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the performance spreadsheet and save it as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runFetch(cmd.Context())
		return err
	},
}

func init() {
	fetchCmd.Flags().String("sheet-url", "", "Spreadsheet URL, shared by link")
	fetchCmd.Flags().String("processed", "data/processed/performance_data.csv", "Where to save the fetched table")
	fetchCmd.Flags().String("metric", "Performance", "Performance column that must be present")
	rootCmd.AddCommand(fetchCmd)
}

// runFetch downloads the sheet, checks its columns and saves it unchanged.
func runFetch(ctx context.Context) (*ingest.Table, error) {
	if cfg.SheetURL == "" {
		return nil, errors.New("no spreadsheet configured (use --sheet-url or SHEET_URL)")
	}
	log.WithField("url", cfg.SheetURL).Debug("Fetching spreadsheet")

	t, err := ingest.FetchSheet(ctx, httpClient, cfg.SheetURL)
	if err != nil {
		return nil, err
	}

	// Validate on a copy so the saved file keeps the sheet's own header
	if _, err := ingest.LoadPerformance(cloneTable(t), cfg.Analyze.Metric); err != nil {
		return nil, err
	}

	if err := t.WriteFile(cfg.ProcessedCSV); err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "📄 Saved %d rows to %s\n", len(t.Rows), cfg.ProcessedCSV)
	return t, nil
}

// loadPerformanceTable reads the processed performance CSV.
func loadPerformanceTable() (*ingest.Table, error) {
	t, err := ingest.ReadTableFile(cfg.InputCSV)
	if err != nil {
		return nil, fmt.Errorf("failed to read performance data: %w", err)
	}
	return t, nil
}
