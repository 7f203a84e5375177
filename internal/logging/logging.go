package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond
}

// New returns a JSON logger on stdout at lvl.
func New(lvl zerolog.Level) zerolog.Logger {
	return NewWriter(os.Stdout, lvl)
}

func NewWriter(w io.Writer, lvl zerolog.Level) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}

// ParseLevel falls back to info for unknown or empty levels.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
