package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	providerMu sync.RWMutex
	provider   LoggerProvider = NewSlogProvider(os.Stderr, LevelInfo)
)

// SetProvider replaces the process-wide logger provider.
func SetProvider(p LoggerProvider) {
	if p == nil {
		p = NewNopProvider()
	}
	providerMu.Lock()
	defer providerMu.Unlock()
	provider = p
}

// GetProvider returns the process-wide logger provider.
func GetProvider() LoggerProvider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider
}

// GetLogger returns the default logger of the installed provider.
func GetLogger() Logger {
	return GetProvider().GetLogger()
}

// GetLoggerWithName returns a logger tagged with the component name.
func GetLoggerWithName(name string) Logger {
	return GetProvider().GetLoggerWithName(name)
}

// splitError pulls a leading error value out of fields.
func splitError(fields []any) (error, []any) {
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			return err, fields[1:]
		}
	}
	return nil, fields
}

// ---------------------------------------------------------------------------
// log/slog backend
// ---------------------------------------------------------------------------

// SlogProvider backs loggers with a log/slog JSON handler.
type SlogProvider struct {
	level *slog.LevelVar
	base  *slog.Logger
}

// NewSlogProvider creates a provider writing JSON lines to w.
func NewSlogProvider(w io.Writer, level Level) *SlogProvider {
	lv := &slog.LevelVar{}
	lv.Set(slog.Level(level))
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lv})
	return &SlogProvider{
		level: lv,
		base:  slog.New(WrapByErrFmtHandler(handler)),
	}
}

func (p *SlogProvider) GetLogger() Logger {
	return &slogLogger{l: p.base}
}

func (p *SlogProvider) GetLoggerWithName(name string) Logger {
	return &slogLogger{l: p.base.With(ComponentKey, name)}
}

func (p *SlogProvider) SetLevel(level Level) {
	p.level.Set(slog.Level(level))
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, fields ...any) { s.l.Debug(msg, fields...) }
func (s *slogLogger) Info(msg string, fields ...any) { s.l.Info(msg, fields...) }
func (s *slogLogger) Warn(msg string, fields ...any) { s.l.Warn(msg, fields...) }

func (s *slogLogger) Error(msg string, fields ...any) {
	err, rest := splitError(fields)
	if err != nil {
		rest = append([]any{ErrAttr(err)}, rest...)
	}
	s.l.Error(msg, rest...)
}

func (s *slogLogger) With(fields ...any) Logger {
	return &slogLogger{l: s.l.With(fields...)}
}

func (s *slogLogger) Enabled(ctx context.Context, level Level) bool {
	return s.l.Enabled(ctx, slog.Level(level))
}

// ---------------------------------------------------------------------------
// no-op backend
// ---------------------------------------------------------------------------

// NopProvider discards everything. Installed when logging is switched off.
type NopProvider struct{}

// NewNopProvider returns a provider whose loggers discard all records.
func NewNopProvider() *NopProvider { return &NopProvider{} }

func (NopProvider) GetLogger() Logger { return nopLogger{} }
func (NopProvider) GetLoggerWithName(string) Logger { return nopLogger{} }
func (NopProvider) SetLevel(Level) {}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
func (n nopLogger) With(...any) Logger { return n }
func (nopLogger) Enabled(context.Context, Level) bool { return false }
