package log

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	cerrors "github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

// ZerologProvider backs loggers with zerolog. It also routes library warnings
// (errors.Warn) into the same stream.
type ZerologProvider struct {
	level atomic.Int32
	base  zerolog.Logger
}

// NewZerologProvider creates a provider writing JSON lines to w.
func NewZerologProvider(w io.Writer, level Level) *ZerologProvider {
	return newZerologProvider(w, level)
}

// NewConsoleProvider creates a provider writing human readable lines to w.
func NewConsoleProvider(w io.Writer, level Level) *ZerologProvider {
	return newZerologProvider(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}, level)
}

func newZerologProvider(w io.Writer, level Level) *ZerologProvider {
	p := &ZerologProvider{
		base: zerolog.New(w).With().Timestamp().Logger(),
	}
	p.level.Store(int32(level))

	warnLogger := p.GetLoggerWithName("warnings")
	errors.SetZerologWarnFunc(func(w error) {
		zl, ok := warnLogger.(*zerologLogger)
		if !ok {
			return
		}
		ev := zl.event(LevelWarn)
		if ev == nil {
			return
		}
		if m, ok := w.(zerolog.LogObjectMarshaler); ok {
			ev = ev.EmbedObject(m)
		}
		ev.Msg(w.Error())
	})
	return p
}

func (p *ZerologProvider) GetLogger() Logger {
	return &zerologLogger{l: p.base, provider: p}
}

func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return &zerologLogger{l: p.base.With().Str(ComponentKey, name).Logger(), provider: p}
}

func (p *ZerologProvider) SetLevel(level Level) {
	p.level.Store(int32(level))
}

func (p *ZerologProvider) enabled(level Level) bool {
	return level >= Level(p.level.Load())
}

type zerologLogger struct {
	l        zerolog.Logger
	provider *ZerologProvider
}

func (z *zerologLogger) event(level Level) *zerolog.Event {
	if !z.provider.enabled(level) {
		return nil
	}
	switch level {
	case LevelDebug:
		return z.l.Debug()
	case LevelWarn:
		return z.l.Warn()
	case LevelError:
		return z.l.Error()
	default:
		return z.l.Info()
	}
}

func (z *zerologLogger) emit(level Level, msg string, fields []any) {
	ev := z.event(level)
	if ev == nil {
		return
	}
	err, rest := splitError(fields)
	if err != nil {
		ev = ev.Err(err).Str(ErrorKindKey, errors.KindOf(err).String())
		var m zerolog.LogObjectMarshaler
		if cerrors.As(err, &m) {
			ev = ev.Object("error.detail", m)
		}
		if st := extractStacktrace(err); st != "" {
			ev = ev.Str(StacktraceAttrKey, st)
		}
	}
	if len(rest) > 0 {
		ev = ev.Fields(rest)
	}
	ev.Msg(msg)
}

func (z *zerologLogger) Debug(msg string, fields ...any) { z.emit(LevelDebug, msg, fields) }
func (z *zerologLogger) Info(msg string, fields ...any) { z.emit(LevelInfo, msg, fields) }
func (z *zerologLogger) Warn(msg string, fields ...any) { z.emit(LevelWarn, msg, fields) }
func (z *zerologLogger) Error(msg string, fields ...any) { z.emit(LevelError, msg, fields) }

func (z *zerologLogger) With(fields ...any) Logger {
	return &zerologLogger{l: z.l.With().Fields(fields).Logger(), provider: z.provider}
}

func (z *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return z.provider.enabled(level)
}
