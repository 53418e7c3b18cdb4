package logger

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

var urlRegex = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*:\/\/[a-zA-Z0-9+%/.\-:_?&=#@+]+`)

// DefaultLogger writes human-readable lines through zerolog's console writer.
type DefaultLogger struct {
	log  zerolog.Logger
	safe bool
}

// Default is the process-wide logger used when no logger is injected.
var Default Logger = New(os.Stderr, os.Getenv("LOG_LEVEL"), os.Getenv("SAFE_LOGS") == "true")

// New returns a logger writing to w at the given level ("debug", "info", "warn", "error").
// Unknown levels fall back to info. When safe is set, URLs are redacted from messages.
func New(w io.Writer, level string, safe bool) *DefaultLogger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	l := zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: w != os.Stderr && w != os.Stdout}).
		Level(lvl).With().Timestamp().Logger()
	return &DefaultLogger{log: l, safe: safe}
}

// Nop discards everything; handy in tests.
func Nop() *DefaultLogger {
	return &DefaultLogger{log: zerolog.Nop()}
}

func (d *DefaultLogger) format(format string, v ...any) string {
	s := fmt.Sprintf(format, v...)
	if d.safe {
		return urlRegex.ReplaceAllString(s, "[redacted url]")
	}
	return s
}

func (d *DefaultLogger) Logf(format string, v ...any) {
	d.log.Info().Msg(d.format(format, v...))
}

func (d *DefaultLogger) Debugf(format string, v ...any) {
	d.log.Debug().Msg(d.format(format, v...))
}

func (d *DefaultLogger) Warnf(format string, v ...any) {
	d.log.Warn().Msg(d.format(format, v...))
}

func (d *DefaultLogger) Errorf(format string, v ...any) {
	d.log.Error().Msg(d.format(format, v...))
}
