package logger

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// New creates a timestamped logger writing to w at the given level.
// An empty or unknown level falls back to info.
func New(w io.Writer, level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil || level == "" {
		lvl = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Level:           lvl,
		Prefix:          "docpages",
	})
}

// Discard returns a logger that drops everything, for tests and library use.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}
