// Package logging builds the zerolog loggers used by the binaries.
// Library packages never create loggers; they accept one and default to
// zerolog.Nop().
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing to out at the given level. format "json"
// writes one JSON object per line; anything else uses the console writer.
func New(level, format string, out io.Writer) zerolog.Logger {
	var w io.Writer = out
	if !strings.EqualFold(format, "json") {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).
		With().
		Timestamp().
		Logger().
		Level(ParseLevel(level))
}

// ParseLevel maps a level name to a zerolog level, falling back to info.
func ParseLevel(raw string) zerolog.Level {
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
