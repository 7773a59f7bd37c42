package lakecat

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/lakecat/core"
)

// Logger wraps slog.Logger with lakecat-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithEntry adds an entry id field to the logger.
func (l *Logger) WithEntry(id core.EntryID) *Logger {
	return &Logger{
		Logger: l.Logger.With("entry", id.String()),
	}
}

// WithPartition adds a partition id field to the logger.
func (l *Logger) WithPartition(p core.PartitionID) *Logger {
	return &Logger{
		Logger: l.Logger.With("partition", string(p)),
	}
}

// WithIndex adds an index name field to the logger.
func (l *Logger) WithIndex(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("index", name),
	}
}

// WithJob adds a job id field to the logger.
func (l *Logger) WithJob(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("job", id),
	}
}

// LogRegister logs a registration operation.
func (l *Logger) LogRegister(ctx context.Context, sources, chunks int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "register failed",
			"sources", sources,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "register completed",
			"sources", sources,
			"chunks", chunks,
		)
	}
}

// LogQuery logs a query resolution.
func (l *Logger) LogQuery(ctx context.Context, chunks int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query resolved",
			"chunks", chunks,
		)
	}
}
