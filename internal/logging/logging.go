// Package logging sets up the process logger and passes request
// scoped loggers through contexts.
package logging

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// New builds the process logger. Terminals get colored tint output,
// everything else plain text for log shippers.
func New(level slog.Level) *slog.Logger {
	w := os.Stderr
	if isatty.IsTerminal(w.Fd()) {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

type contextKey string

const loggerKey contextKey = "logger"

// FromContext retrieves the logger from the context.
// If no logger is found, it returns the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithJobID adds a job id to the logger in the context.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return WithLogger(ctx, FromContext(ctx).With("job_id", jobID))
}
