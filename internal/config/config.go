package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the full pipeline configuration. Defaults < YAML file < environment.
// Command line flags are applied on top by the cmd package.
type Config struct {
	SheetURL     string        `yaml:"sheet_url"`
	InputCSV     string        `yaml:"input_csv"`
	ProcessedCSV string        `yaml:"processed_csv"`
	VideoDir     string        `yaml:"video_dir"`
	VideoBaseURL string        `yaml:"video_base_url"`
	FaceDataCSV  string        `yaml:"face_data_csv"`
	ReportDir    string        `yaml:"report_dir"`
	DatabaseURL  string        `yaml:"database_url"`
	Scan         ScanConfig    `yaml:"scan"`
	Analyze      AnalyzeConfig `yaml:"analyze"`
}

// ScanConfig controls frame sampling and face extraction.
type ScanConfig struct {
	MaxFrames      int           `yaml:"max_frames"`
	NthFrame       int           `yaml:"nth_frame"`
	Engines        int           `yaml:"engines"`
	MatchThreshold float64       `yaml:"match_threshold"`
	VideoTimeout   time.Duration `yaml:"video_timeout"`
	WorkerCommand  []string      `yaml:"worker_command"`
}

// AnalyzeConfig controls aggregation and reporting.
type AnalyzeConfig struct {
	MinVideos int    `yaml:"min_videos"`
	TopN      int    `yaml:"top_n"`
	Metric    string `yaml:"metric"`
	Strict    bool   `yaml:"strict"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		InputCSV:     "data/processed/performance_data.csv",
		ProcessedCSV: "data/processed/performance_data.csv",
		VideoDir:     "data/raw/videos",
		FaceDataCSV:  "reports/face_data.csv",
		ReportDir:    "reports",
		Scan: ScanConfig{
			MaxFrames:      10,
			NthFrame:       1,
			Engines:        1,
			MatchThreshold: 0.6,
			VideoTimeout:   2 * time.Minute,
		},
		Analyze: AnalyzeConfig{
			MinVideos: 3,
			TopN:      10,
			Metric:    "Performance",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.SheetURL = GetEnv("SHEET_URL", cfg.SheetURL)
	cfg.VideoDir = GetEnv("VIDEO_DIR", cfg.VideoDir)
	cfg.VideoBaseURL = GetEnv("VIDEO_BASE_URL", cfg.VideoBaseURL)
	cfg.ReportDir = GetEnv("REPORT_DIR", cfg.ReportDir)
	cfg.DatabaseURL = GetEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.Scan.MaxFrames = GetEnvInt("MAX_FRAMES", cfg.Scan.MaxFrames)
	cfg.Scan.Engines = GetEnvInt("ENGINES", cfg.Scan.Engines)
	cfg.Scan.MatchThreshold = GetEnvFloat("MATCH_THRESHOLD", cfg.Scan.MatchThreshold)
	if cmd := os.Getenv("FACE_WORKER_CMD"); cmd != "" {
		cfg.Scan.WorkerCommand = strings.Fields(cmd)
	}
	cfg.Analyze.MinVideos = GetEnvInt("MIN_VIDEOS", cfg.Analyze.MinVideos)

	return cfg, nil
}

// PostgresURL returns DatabaseURL, or builds one from the POSTGRES_* variables.
// Empty means no database is configured.
func (c *Config) PostgresURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		host,
		GetEnv("POSTGRES_PORT", "5432"),
		os.Getenv("POSTGRES_DB"),
	)
}

// LoadEnv loads environment variables from .env files
func LoadEnv(logger *logrus.Logger) {
	files := []string{".env", ".env.dev"}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("Failed to load %s", file)
			}
			continue
		}
		loaded = append(loaded, file)
	}
	if logger == nil {
		return
	}
	if len(loaded) == 0 {
		logger.Debug("No local env files loaded; relying on process environment")
	} else {
		logger.Debugf("Loaded env files: %s", strings.Join(loaded, ", "))
	}
}

// GetEnv gets an environment variable with a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt gets an integer environment variable with a default value
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvFloat gets a float environment variable with a default value
func GetEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetLogLevel gets the log level from environment
func GetLogLevel() logrus.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
