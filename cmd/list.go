package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List scanned videos stored in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openStore(ctx, true)
		if err != nil {
			return err
		}
		videos, err := db.ListVideos(ctx)
		if err != nil {
			return fmt.Errorf("failed to list videos: %w", err)
		}

		if len(videos) == 0 {
			fmt.Println("No videos found in database.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "VIDEO\tFACES\tSTATUS\tRUN\tSCANNED")
		fmt.Fprintln(w, "-----\t-----\t------\t---\t-------")

		for _, v := range videos {
			status := "ok"
			if v.Error != "" {
				status = "failed: " + v.Error
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", v.ID, v.Faces, status, v.RunID.String()[:8], v.IndexedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
