// Package logger builds the zerolog loggers used across the build pipeline
// and the runtime service.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Format selects the log encoding.
type Format string

// Log formats.
const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Options configures a logger.
type Options struct {
	Level  string
	Format Format
	Output io.Writer
	Caller bool
}

// New creates a logger. Console output carries a timestamp and, when
// requested, the caller; JSON output is suited to log shipping.
func New(opts Options) (zerolog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Format == FormatConsole || opts.Format == "" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if opts.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), nil
}

// ParseLevel parses a level name. An empty name means info.
func ParseLevel(name string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return zerolog.InfoLevel, nil
	case "none", "off":
		return zerolog.Disabled, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// Nop returns a logger that discards everything.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// HTTPLogger adapts a zerolog.Logger to the leveled logger interface of
// the retrying HTTP client.
type HTTPLogger struct {
	Log zerolog.Logger
}

// Error logs at error level.
func (l HTTPLogger) Error(msg string, keysAndValues ...interface{}) {
	l.Log.Error().Fields(keysAndValues).Msg(msg)
}

// Warn logs at warn level.
func (l HTTPLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.Log.Warn().Fields(keysAndValues).Msg(msg)
}

// Info logs retry chatter at debug level.
func (l HTTPLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Log.Debug().Fields(keysAndValues).Msg(msg)
}

// Debug logs at trace level.
func (l HTTPLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.Log.Trace().Fields(keysAndValues).Msg(msg)
}
