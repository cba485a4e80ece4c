package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/andresmejia3/facerank/internal/config"
	"github.com/andresmejia3/facerank/internal/logging"
	"github.com/andresmejia3/facerank/internal/store"
	"github.com/andresmejia3/facerank/internal/utils"
)

var (
	// cfg is the resolved configuration for the running command
	cfg *config.Config
	// log is shared by every stage of the running command
	log *logrus.Logger
	// runID tags log entries and stored scans of one invocation
	runID uuid.UUID

	configPath string
	dbURL      string
	reportDir  string

	// DB is opened on demand by commands that persist or read faces
	DB *store.Store

	httpClient = &http.Client{Timeout: 30 * time.Minute}
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "facerank",
	Short:         "Rank influencers by the performance of the videos their faces appear in",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		runID = uuid.New()
		log = logging.WithRunID(logging.NewLogger(), runID.String())
		config.LoadEnv(log)
		// LOG_LEVEL may come from a .env file
		log.SetLevel(config.GetLogLevel())

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd.Flags(), cfg)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			DB.Close()
			DB = nil
		}
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "\n🛑 Interrupted")
		} else {
			utils.ShowError("Command failed", err, nil)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: built from POSTGRES_* variables)")
	rootCmd.PersistentFlags().StringVar(&reportDir, "report-dir", "reports", "Directory for generated reports")
}

// openStore connects to the configured database. It returns nil without error when
// no database is configured and required is false.
func openStore(ctx context.Context, required bool) (*store.Store, error) {
	if DB != nil {
		return DB, nil
	}
	url := cfg.PostgresURL()
	if url == "" {
		if required {
			return nil, errors.New("no database configured (use --db or POSTGRES_HOST)")
		}
		return nil, nil
	}
	s, err := store.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = s
	return DB, nil
}

// applyFlags copies explicitly set flags over the loaded configuration, so the
// precedence is defaults < YAML < environment < flags.
func applyFlags(fs *pflag.FlagSet, c *config.Config) {
	setString(fs, "db", &c.DatabaseURL)
	setString(fs, "report-dir", &c.ReportDir)
	setString(fs, "sheet-url", &c.SheetURL)
	setString(fs, "input", &c.InputCSV)
	setString(fs, "processed", &c.ProcessedCSV)
	setString(fs, "video-dir", &c.VideoDir)
	setString(fs, "video-base-url", &c.VideoBaseURL)
	setString(fs, "faces", &c.FaceDataCSV)
	setInt(fs, "max-frames", &c.Scan.MaxFrames)
	setInt(fs, "nth-frame", &c.Scan.NthFrame)
	setInt(fs, "engines", &c.Scan.Engines)
	setFloat(fs, "threshold", &c.Scan.MatchThreshold)
	setDuration(fs, "video-timeout", &c.Scan.VideoTimeout)
	if f := fs.Lookup("worker-cmd"); f != nil && f.Changed {
		c.Scan.WorkerCommand = strings.Fields(f.Value.String())
	}
	setInt(fs, "min-videos", &c.Analyze.MinVideos)
	setInt(fs, "top-n", &c.Analyze.TopN)
	setString(fs, "metric", &c.Analyze.Metric)
	setBool(fs, "strict", &c.Analyze.Strict)
}

func setString(fs *pflag.FlagSet, name string, dst *string) {
	if f := fs.Lookup(name); f != nil && f.Changed {
		*dst, _ = fs.GetString(name)
	}
}

func setInt(fs *pflag.FlagSet, name string, dst *int) {
	if f := fs.Lookup(name); f != nil && f.Changed {
		*dst, _ = fs.GetInt(name)
	}
}

func setFloat(fs *pflag.FlagSet, name string, dst *float64) {
	if f := fs.Lookup(name); f != nil && f.Changed {
		*dst, _ = fs.GetFloat64(name)
	}
}

func setDuration(fs *pflag.FlagSet, name string, dst *time.Duration) {
	if f := fs.Lookup(name); f != nil && f.Changed {
		*dst, _ = fs.GetDuration(name)
	}
}

func setBool(fs *pflag.FlagSet, name string, dst *bool) {
	if f := fs.Lookup(name); f != nil && f.Changed {
		*dst, _ = fs.GetBool(name)
	}
}
