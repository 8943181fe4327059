package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// zerologLogger implements Logger on top of a zerolog.Logger.
type zerologLogger struct {
	zl zerolog.Logger
}

// ZerologProvider implements LoggerProvider backed by zerolog.
type ZerologProvider struct {
	mu    sync.Mutex
	out   io.Writer
	level zerolog.Level
}

var defaultProvider = &ZerologProvider{
	out:   os.Stderr,
	level: zerolog.InfoLevel,
}

// NewZerologProvider creates a provider writing JSON log lines to out.
func NewZerologProvider(out io.Writer) *ZerologProvider {
	return &ZerologProvider{out: out, level: zerolog.InfoLevel}
}

// GetLogger returns the default logger instance.
func (p *ZerologProvider) GetLogger() Logger {
	p.mu.Lock()
	defer p.mu.Unlock()
	zl := zerolog.New(p.out).Level(p.level).With().Timestamp().Logger()
	return &zerologLogger{zl: zl}
}

// GetLoggerWithName returns a logger carrying a component identifier.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	p.mu.Lock()
	defer p.mu.Unlock()
	zl := zerolog.New(p.out).Level(p.level).With().Timestamp().Str(ComponentKey, name).Logger()
	return &zerologLogger{zl: zl}
}

// SetLevel sets the minimum level for loggers created by this provider.
func (p *ZerologProvider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = toZerologLevel(level)
}

// SetOutput redirects loggers created by this provider to out.
func (p *ZerologProvider) SetOutput(out io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = out
}

// GetLogger returns the package default logger.
func GetLogger() Logger {
	return defaultProvider.GetLogger()
}

// GetLoggerWithName returns a package default logger with a component name.
func GetLoggerWithName(name string) Logger {
	return defaultProvider.GetLoggerWithName(name)
}

// SetLevel sets the minimum level of the package default provider.
func SetLevel(level Level) {
	defaultProvider.SetLevel(level)
}

// SetOutput redirects the package default provider to out.
func SetOutput(out io.Writer) {
	defaultProvider.SetOutput(out)
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

// Debug implements Logger.Debug.
func (l *zerologLogger) Debug(msg string, fields ...any) {
	l.emit(l.zl.Debug(), msg, fields...)
}

// Info implements Logger.Info.
func (l *zerologLogger) Info(msg string, fields ...any) {
	l.emit(l.zl.Info(), msg, fields...)
}

// Warn implements Logger.Warn.
func (l *zerologLogger) Warn(msg string, fields ...any) {
	l.emit(l.zl.Warn(), msg, fields...)
}

// Error implements Logger.Error.
func (l *zerologLogger) Error(msg string, fields ...any) {
	l.emit(l.zl.Error(), msg, fields...)
}

// With implements Logger.With.
func (l *zerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		ctx = ctx.Interface(key, normalizeValue(fields[i+1]))
	}
	return &zerologLogger{zl: ctx.Logger()}
}

// Enabled implements Logger.Enabled.
func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return toZerologLevel(level) >= l.zl.GetLevel()
}

// emit writes one event, pairing up the variadic fields. An error value is
// logged under its key with a stacktrace attribute when one is attached.
func (l *zerologLogger) emit(ev *zerolog.Event, msg string, fields ...any) {
	if ev == nil {
		return
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		value := fields[i+1]
		if err, ok := value.(error); ok {
			ev = ev.AnErr(key, err)
			if st := extractStacktrace(err); st != "" {
				ev = ev.Str(StacktraceAttrKey, st)
			}
			continue
		}
		ev = ev.Interface(key, value)
	}
	ev.Msg(msg)
}

func normalizeValue(value any) any {
	if err, ok := value.(error); ok {
		return err.Error()
	}
	return value
}

// extractStacktrace pulls the stack trace recorded by cockroachdb/errors.
func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}

// ErrAttr is a convenience pair-maker to pass an error field to a Logger.
func ErrAttr(err error) []any {
	return []any{ErrAttrKey, err}
}
