package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	sverrors "github.com/gelato-ml/sorvete/pkg/errors"
)

var (
	providerMu sync.RWMutex
	provider   LoggerProvider = NewZerologProvider(os.Stderr, LevelInfo)
)

// SetupLogger installs the zerolog provider at the given level ("debug",
// "info", "warn", "error") writing JSON lines to stderr, and routes library
// warnings through it.
func SetupLogger(level string) error {
	return SetupLoggerTo(os.Stderr, level)
}

// SetupLoggerTo is SetupLogger writing to out.
func SetupLoggerTo(out io.Writer, level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	SetProvider(NewZerologProvider(out, lvl))
	sverrors.SetZerologWarnFunc(func(w error) {
		GetLoggerWithName("warnings").Warn(w.Error(), "warning", w)
	})
	return nil
}

// ParseLevel converts a level name into a Level.
func ParseLevel(level string) (Level, error) {
	switch level {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, sverrors.NewValueError("log.ParseLevel", fmt.Sprintf("invalid log level: %q", level))
	}
}

// SetProvider replaces the process-wide provider and returns the previous one.
func SetProvider(p LoggerProvider) LoggerProvider {
	providerMu.Lock()
	defer providerMu.Unlock()
	prev := provider
	provider = p
	return prev
}

// GetLogger returns a logger from the current provider.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLogger()
}

// GetLoggerWithName returns a logger tagged with the component name.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLoggerWithName(name)
}

// SetLevel changes the minimum level of loggers created afterwards.
func SetLevel(level Level) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	provider.SetLevel(level)
}

// ZerologProvider hands out zerolog-backed loggers sharing one writer.
type ZerologProvider struct {
	mu    sync.RWMutex
	out   io.Writer
	level Level
}

// NewZerologProvider creates a provider writing JSON lines to out.
func NewZerologProvider(out io.Writer, level Level) *ZerologProvider {
	return &ZerologProvider{out: out, level: level}
}

func (p *ZerologProvider) base() zerolog.Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return zerolog.New(p.out).Level(toZerologLevel(p.level)).With().Timestamp().Logger()
}

// GetLogger implements LoggerProvider.
func (p *ZerologProvider) GetLogger() Logger {
	return &zerologLogger{zl: p.base()}
}

// GetLoggerWithName implements LoggerProvider.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return &zerologLogger{zl: p.base().With().Str("logger", name).Logger()}
}

// SetLevel implements LoggerProvider.
func (p *ZerologProvider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = level
}

type zerologLogger struct {
	zl zerolog.Logger
}

func (l *zerologLogger) Debug(msg string, fields ...any) { emit(l.zl.Debug(), msg, fields) }
func (l *zerologLogger) Info(msg string, fields ...any)  { emit(l.zl.Info(), msg, fields) }
func (l *zerologLogger) Warn(msg string, fields ...any)  { emit(l.zl.Warn(), msg, fields) }
func (l *zerologLogger) Error(msg string, fields ...any) { emit(l.zl.Error(), msg, fields) }

func (l *zerologLogger) With(fields ...any) Logger {
	return &zerologLogger{zl: l.zl.With().Fields(fields).Logger()}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	zl := toZerologLevel(level)
	return zl >= l.zl.GetLevel() && zl >= zerolog.GlobalLevel()
}

// emit writes one record. A leading error argument becomes the record's
// error and, when available, its stack.
func emit(e *zerolog.Event, msg string, fields []any) {
	if e == nil {
		return
	}
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			e = e.Err(err)
			if st := extractStacktrace(err); st != "" {
				e = e.Str(StacktraceKey, st)
			}
			fields = fields[1:]
		}
	}
	e.Fields(fields).Msg(msg)
}

func extractStacktrace(err error) string {
	details := errors.GetSafeDetails(err).SafeDetails
	if len(details) > 0 {
		return details[0]
	}
	return ""
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
