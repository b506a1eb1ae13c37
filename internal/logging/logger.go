// Package logging wraps slog with the field names used across the tracer.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with tracer-specific helpers.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler.
// If handler is nil, uses a text handler to stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger that writes human-readable text to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewJSONLogger creates a Logger that writes JSON to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// WithLayer adds a layer field.
func (l *Logger) WithLayer(layer any) *Logger {
	return &Logger{Logger: l.Logger.With("layer", layer)}
}

// WithCell adds a cell field.
func (l *Logger) WithCell(cell any) *Logger {
	return &Logger{Logger: l.Logger.With("cell", cell)}
}

// WithCount adds a count field.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{Logger: l.Logger.With("count", count)}
}

// LogRound logs one expansion round at debug level.
func (l *Logger) LogRound(ctx context.Context, round int, layer any, batch, found, pending int) {
	l.DebugContext(ctx, "expansion round",
		"round", round,
		"layer", layer,
		"batch", batch,
		"found", found,
		"pending", pending,
	)
}

// LogTrace logs the outcome of a trace.
func (l *Logger) LogTrace(ctx context.Context, mode string, found int, incomplete bool, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "trace failed",
			"mode", mode,
			"found", found,
			"duration", d,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "trace completed",
		"mode", mode,
		"found", found,
		"incomplete", incomplete,
		"duration", d,
	)
}
