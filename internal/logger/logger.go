// Package logger provides structured logging on top of zerolog.
// It sets up a JSON (or console) logger with service-level context and
// provides run ID propagation through context.Context.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config selects the log level and output format.
type Config struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
}

// Init creates the process logger for the given service.
// Output goes to stderr so stdout stays free for the run summary.
func Init(service string, cfg Config) zerolog.Logger {
	return New(os.Stderr, service, cfg)
}

// New is Init with an explicit writer (used by tests).
func New(w io.Writer, service string, cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Component returns a child logger tagged with a component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

type ctxKey string

const runIDKey ctxKey = "run_id"

// NewRunID generates a unique identifier for one pipeline run.
func NewRunID() string {
	return uuid.NewString()
}

// WithRunID stores the run ID in the context and attaches a logger carrying it.
func WithRunID(ctx context.Context, l zerolog.Logger, runID string) context.Context {
	ctx = context.WithValue(ctx, runIDKey, runID)
	return l.With().Str("run_id", runID).Logger().WithContext(ctx)
}

// RunID extracts the run ID from context. Returns "" if not set.
func RunID(ctx context.Context) string {
	if v, ok := ctx.Value(runIDKey).(string); ok {
		return v
	}
	return ""
}

// FromContext returns the logger attached to ctx, or a disabled logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}
