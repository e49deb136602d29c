// Package log provides the structured logging interface used across the
// cross-validation pipeline.
//
// The interface is slog-compatible. Two backends are provided: a zerolog
// provider (the default, used by the CLI) and a log/slog provider whose
// handler extracts cockroachdb/errors stack traces.
//
// Example usage:
//
//	logger := log.GetLoggerWithName("cv").With(
//	    log.TargetKey, "M",
//	    log.RepeatKey, 1,
//	)
//	logger.Info("fold complete",
//	    log.FoldKey, 3,
//	    log.SamplesKey, 160,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with log/slog.
//
// Fields are passed as alternating key/value pairs. An error passed as a
// value is rendered with its message, and backends that understand
// cockroachdb/errors attach the stack trace as well.
type Logger interface {
	// Debug logs a debug-level message.
	Debug(msg string, fields ...any)

	// Info logs an info-level message.
	Info(msg string, fields ...any)

	// Warn logs a warning-level message. Skipped folds and failed
	// candidates are reported at this level.
	Warn(msg string, fields ...any)

	// Error logs an error-level message.
	Error(msg string, fields ...any)

	// With returns a Logger that adds fields to every record.
	With(fields ...any) Logger

	// Enabled reports whether records at level would be emitted.
	//
	//   if logger.Enabled(ctx, LevelDebug) {
	//       logger.Debug("design matrix", "condition", cond(x))
	//   }
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level. Values match slog.Level.
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates loggers. Components obtain their logger through
// the package-level GetLoggerWithName, which delegates to the installed
// provider.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum level for loggers from this provider.
	SetLevel(level Level)
}
