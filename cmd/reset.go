package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	resetDB    bool
	resetFiles bool
	resetYes   bool
	resetVideo string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (Database, Face Data, Reports)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if resetVideo != "" {
			return forgetVideo(cmd, resetVideo)
		}

		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetFiles {
			resetDB = true
			resetFiles = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB && confirm(reader, os.Stdout, "⚠️  Are you sure you want to DROP all database tables?") {
			db, err := openStore(cmd.Context(), true)
			if err != nil {
				return err
			}
			fmt.Println("🗑️  Clearing Database...")
			if err := db.Reset(cmd.Context()); err != nil {
				return fmt.Errorf("failed to reset database: %w", err)
			}
		}

		if resetFiles && confirm(reader, os.Stdout, "⚠️  Are you sure you want to delete the face data and all reports?") {
			fmt.Println("🗑️  Clearing Output Files (Face Data, Reports)...")
			removePath(cfg.FaceDataCSV)
			removePath(cfg.ReportDir)
		}

		fmt.Println("✨ System Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "tables", false, "Clear PostgreSQL tables")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Clear generated files (face data, reports)")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	resetCmd.Flags().StringVar(&resetVideo, "video", "", "Only forget the stored scan of this video ID")
	rootCmd.AddCommand(resetCmd)
}

func forgetVideo(cmd *cobra.Command, videoID string) error {
	db, err := openStore(cmd.Context(), true)
	if err != nil {
		return err
	}
	ok, err := db.DeleteVideo(cmd.Context(), videoID)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", videoID, err)
	}
	if !ok {
		fmt.Printf("No stored scan for %s.\n", videoID)
		return nil
	}
	fmt.Printf("🗑️  Forgot %s; it will be rescanned.\n", videoID)
	return nil
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	if resetYes {
		return true
	}
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removePath(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
