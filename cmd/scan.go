package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/facerank/internal/config"
	"github.com/andresmejia3/facerank/internal/download"
	"github.com/andresmejia3/facerank/internal/ingest"
	"github.com/andresmejia3/facerank/internal/pipeline"
	"github.com/andresmejia3/facerank/internal/sampler"
	"github.com/andresmejia3/facerank/internal/store"
	"github.com/andresmejia3/facerank/internal/types"
	"github.com/andresmejia3/facerank/internal/utils"
	"github.com/andresmejia3/facerank/internal/worker"
)

// scanOpts holds scan switches that have no configuration file equivalent.
type scanOpts struct {
	DebugWorker bool
	SkipScanned bool
}

var scanFlags scanOpts

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Extract the distinct faces of every downloaded video",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateScanFlags(cfg); err != nil {
			return err
		}
		videos, err := pipeline.VideosFromDir(cfg.VideoDir)
		if err != nil {
			return fmt.Errorf("failed to list videos: %w", err)
		}
		videos = resolveVideoIDs(videos, urlsByFileName(), cfg.VideoBaseURL)
		_, err = runScan(cmd.Context(), videos, scanFlags)
		return err
	},
}

func init() {
	addScanFlags(scanCmd)
	scanCmd.Flags().String("input", "data/processed/performance_data.csv", "Performance CSV used to map file names back to video URLs")
	scanCmd.Flags().String("video-base-url", "", "Storage URL prefix for videos not found in the performance data")
	rootCmd.AddCommand(scanCmd)
}

func addScanFlags(c *cobra.Command) {
	d := config.Default()
	c.Flags().String("video-dir", d.VideoDir, "Directory holding the videos")
	c.Flags().String("faces", d.FaceDataCSV, "Where to write the face data CSV")
	c.Flags().Int("max-frames", d.Scan.MaxFrames, "Sampled frames examined per video")
	c.Flags().IntP("nth-frame", "n", d.Scan.NthFrame, "Sample every nth decoded frame")
	c.Flags().IntP("engines", "e", d.Scan.Engines, "Number of parallel engine workers")
	c.Flags().Float64P("threshold", "t", d.Scan.MatchThreshold, "Face distance below which two faces are the same person")
	c.Flags().Duration("video-timeout", d.Scan.VideoTimeout, "Time limit for scanning one video")
	c.Flags().String("worker-cmd", "", "Face worker command (default: python3 -u python/worker.py)")
	c.Flags().BoolVarP(&scanFlags.DebugWorker, "debug-worker", "d", false, "Enable face worker debug output")
	c.Flags().BoolVar(&scanFlags.SkipScanned, "skip-scanned", false, "Skip videos already scanned successfully (needs a database)")
}

// validateScanFlags ensures all scan settings are valid before starting heavy processes.
func validateScanFlags(c *config.Config) error {
	info, err := os.Stat(c.VideoDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("video directory %s does not exist", c.VideoDir)
		}
		return fmt.Errorf("unable to access video directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("video path %s is not a directory", c.VideoDir)
	}
	if c.Scan.MaxFrames < 1 {
		return fmt.Errorf("invalid max-frames: must be >= 1, got %d", c.Scan.MaxFrames)
	}
	if c.Scan.NthFrame < 1 {
		return fmt.Errorf("invalid nth-frame interval: must be >= 1, got %d", c.Scan.NthFrame)
	}
	if c.Scan.Engines < 1 {
		c.Scan.Engines = 1
	}
	if c.Scan.MatchThreshold < 0 {
		return fmt.Errorf("invalid match threshold: must be >= 0, got %f", c.Scan.MatchThreshold)
	}
	if c.Scan.VideoTimeout < 0 {
		return fmt.Errorf("invalid video timeout %s", c.Scan.VideoTimeout)
	}
	return nil
}

// urlsByFileName maps local file names to the URLs in the performance data, when
// that file is readable.
func urlsByFileName() map[string]string {
	t, err := ingest.ReadTableFile(cfg.InputCSV)
	if err != nil {
		log.WithError(err).Debug("No performance data to map video names")
		return nil
	}
	urls, err := ingest.VideoURLs(t)
	if err != nil {
		log.WithError(err).Debug("No video URLs in performance data")
		return nil
	}
	byName := make(map[string]string, len(urls))
	for _, u := range urls {
		if name, err := download.FileName(u); err == nil {
			byName[name] = u
		}
	}
	return byName
}

// resolveVideoIDs replaces file-name IDs with the URL the file was downloaded from,
// falling back to baseURL relinking.
func resolveVideoIDs(videos []pipeline.Video, byName map[string]string, baseURL string) []pipeline.Video {
	out := make([]pipeline.Video, len(videos))
	for i, v := range videos {
		out[i] = v
		if u, ok := byName[v.ID]; ok {
			out[i].ID = u
			continue
		}
		rec := ingest.Relink([]types.VideoFaceRecord{{VideoID: v.ID}}, baseURL)
		out[i].ID = rec[0].VideoID
	}
	return out
}

// runScan extracts faces from videos, persists them when a database is configured and
// writes the face data CSV.
func runScan(ctx context.Context, videos []pipeline.Video, opts scanOpts) ([]types.VideoFaceRecord, error) {
	db, err := openStore(ctx, opts.SkipScanned)
	if err != nil {
		return nil, err
	}

	if opts.SkipScanned {
		done, err := db.ScannedVideos(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read scanned videos: %w", err)
		}
		pending := videos[:0:0]
		for _, v := range videos {
			if fp, ok := done[v.ID]; !ok || fp != fingerprint(v.Path) {
				pending = append(pending, v)
			}
		}
		fmt.Fprintf(os.Stderr, "⏭️  Skipping %d already scanned videos\n", len(videos)-len(pending))
		videos = pending
	}

	fmt.Fprintf(os.Stderr, "📼 Scanning %d videos\n", len(videos))
	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d Worker Engines...\n", cfg.Scan.Engines)

	bar := progressbar.NewOptions(len(videos),
		progressbar.OptionSetDescription("🔍 Scanning"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
	)

	workerCfg := worker.Config{Command: cfg.Scan.WorkerCommand, Debug: opts.DebugWorker}
	scanner := &pipeline.Scanner{
		Frames: sampler.New(cfg.Scan.MaxFrames, cfg.Scan.NthFrame),
		NewDetector: func(ctx context.Context, id int) (pipeline.Detector, error) {
			w, err := worker.NewPythonWorker(ctx, id, workerCfg)
			if err != nil {
				return nil, err
			}
			return w, nil
		},
		Threshold:    cfg.Scan.MatchThreshold,
		Engines:      cfg.Scan.Engines,
		VideoTimeout: cfg.Scan.VideoTimeout,
		Log:          log,
		OnDone: func(r pipeline.Result) {
			bar.Add(1)
			if db == nil {
				return
			}
			sv := store.Video{ID: r.Video.ID, Path: r.Video.Path, Fingerprint: fingerprint(r.Video.Path)}
			if err := db.SaveVideo(ctx, runID, sv, r.Faces, r.Err); err != nil {
				log.WithError(err).WithField("video", r.Video.ID).Warn("Failed to store scan result")
			}
		},
	}

	start := time.Now()
	results, err := scanner.Scan(ctx, videos)
	bar.Finish()
	if err != nil {
		return nil, err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	records := pipeline.Records(results)

	if opts.SkipScanned {
		// The CSV covers every stored video, not only this batch
		if records, err = db.LoadVideoFaces(ctx); err != nil {
			return nil, fmt.Errorf("failed to load stored faces: %w", err)
		}
	}

	if err := ingest.WriteFaceDataFile(cfg.FaceDataCSV, records); err != nil {
		return nil, err
	}

	fmt.Fprintf(os.Stderr, "🏁 Scan Complete in %s. %d videos, %d skipped, %d distinct faces written to %s\n",
		fmtDuration(time.Since(start)), len(results), failed, len(records), cfg.FaceDataCSV)
	if failed == len(results) && failed > 0 {
		log.Warn("Every video failed to scan; check the worker command and ffmpeg")
	}
	return records, nil
}

// fingerprint is empty for unreadable files, which never match a stored scan.
func fingerprint(path string) string {
	fp, err := utils.FileFingerprint(path)
	if err != nil {
		return ""
	}
	return fp
}

func fmtDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
