package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/andresmejia3/facerank/internal/config"
)

// Logger represents a logger instance
type Logger = *logrus.Logger

// Fields represents structured logging fields
type Fields = logrus.Fields

// NewLogger creates a logger writing to stderr, leveled from LOG_LEVEL.
// LOG_FORMAT=json switches to the JSON formatter.
func NewLogger() *logrus.Logger {
	return NewLoggerTo(os.Stderr)
}

// NewLoggerTo is NewLogger with an explicit sink.
func NewLoggerTo(w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	if config.GetEnv("LOG_FORMAT", "text") == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	logger.SetLevel(config.GetLogLevel())
	return logger
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fieldHook stamps fixed fields on every entry.
type fieldHook struct {
	fields logrus.Fields
}

func (h fieldHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h fieldHook) Fire(e *logrus.Entry) error {
	for k, v := range h.fields {
		if _, ok := e.Data[k]; !ok {
			e.Data[k] = v
		}
	}
	return nil
}

// WithRunID makes every entry of logger carry run_id.
func WithRunID(logger *logrus.Logger, runID string) *logrus.Logger {
	logger.AddHook(fieldHook{fields: logrus.Fields{"run_id": runID}})
	return logger
}
