package log

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

// Levels and Formats list the accepted names.
var (
	Levels  = []string{"debug", "info", "warn", "error"}
	Formats = []string{"json", "console", "slog"}
)

// ToLogLevel parses a level name ("debug", "info", "warn", "error").
func ToLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info", "":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, errors.NewConfigError("log_level", level, Levels)
	}
}

// ParseLevel is ToLogLevel for the package Level type.
func ParseLevel(level string) (Level, error) {
	lvl, err := ToLogLevel(level)
	return Level(lvl), err
}

// Options selects the provider installed by Configure.
type Options struct {
	Enabled bool
	Level   string
	// Format is "json" (zerolog), "console" (zerolog pretty) or "slog".
	Format string
	Output io.Writer
}

// Configure builds a provider from opts and installs it globally.
func Configure(opts Options) (LoggerProvider, error) {
	if !opts.Enabled {
		p := NewNopProvider()
		SetProvider(p)
		return p, nil
	}
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var p LoggerProvider
	switch opts.Format {
	case "", "json":
		p = NewZerologProvider(out, lvl)
	case "console":
		p = NewConsoleProvider(out, lvl)
	case "slog":
		p = NewSlogProvider(out, lvl)
	default:
		return nil, errors.NewConfigError("log_format", opts.Format, Formats)
	}
	SetProvider(p)
	return p, nil
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}
