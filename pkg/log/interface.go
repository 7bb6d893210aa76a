// Package log provides the structured logging interface used across the
// trainer.
//
// The Logger interface mirrors log/slog so call sites read the same whichever
// backend is installed. The default backend is zerolog writing JSON lines to
// stderr; stdout is left to the CLI for its result lines.
//
// Example usage:
//
//	logger := log.GetLoggerWithName("trainer").With(
//	    log.ModelNameKey, "LinearRegression",
//	)
//	logger.Info("Training started",
//	    log.OperationKey, log.OperationFit,
//	    log.SamplesKey, 80,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with log/slog.
//
// Fields are alternating key/value pairs. When the first field passed to
// Error is an error value it is attached as the record's error, along with
// its stack when one was recorded by cockroachdb/errors.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)

	// With returns a Logger that adds fields to every record.
	With(fields ...any) Logger

	// Enabled reports whether records at level would be emitted.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
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

// LoggerProvider creates loggers. Tests swap in a TestLoggerProvider.
type LoggerProvider interface {
	GetLogger() Logger
	GetLoggerWithName(name string) Logger
	SetLevel(level Level)
}
