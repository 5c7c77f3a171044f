package aether

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/hupe1980/aether/persistence"
)

// Logger wraps slog.Logger with aether-specific helpers.
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
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil))
}

// WithDimension adds a dimension field to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dimension", dim),
	}
}

// WithDataDir adds a path field to the logger.
func (l *Logger) WithDataDir(dir string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", dir),
	}
}

// LogInsert logs an insert operation.
func (l *Logger) LogInsert(ctx context.Context, id string, dimension int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert failed",
			"dimension", dimension,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "insert accepted",
			"id", id,
			"dimension", dimension,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, limit, results int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"limit", limit,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search returned",
			"limit", limit,
			"results", results,
		)
	}
}

// LogCheckpoint logs a checkpoint triggered by the facade.
func (l *Logger) LogCheckpoint(ctx context.Context, reason string, records int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkpoint failed",
			"reason", reason,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "checkpoint done",
			"reason", reason,
			"records", records,
		)
	}
}

// LogRecovery logs the outcome of opening a data directory.
func (l *Logger) LogRecovery(ctx context.Context, st persistence.RecoveryStats, records int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "recovery failed",
			"error", err,
		)
		return
	}
	if st.Quarantined != "" {
		l.WarnContext(ctx, "started without unreadable snapshot",
			"quarantined", st.Quarantined,
		)
	}
	l.InfoContext(ctx, "store loaded",
		"records", records,
		"shards", st.ShardCount,
		"dimension", st.Dimension,
		"replayed", st.Replayed,
		"restored_from_backup", st.RestoredFromBackup,
	)
}
