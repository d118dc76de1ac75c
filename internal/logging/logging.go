// Package logging builds the slog logger shared by the CLI and its packages.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Options select the handler and level.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Source bool
}

// New returns a logger writing to w. Unknown levels fall back to info and
// unknown formats to text.
func New(w io.Writer, opt Options) *slog.Logger {
	ho := &slog.HandlerOptions{Level: ParseLevel(opt.Level), AddSource: opt.Source}
	var h slog.Handler
	if strings.EqualFold(opt.Format, "json") {
		h = slog.NewJSONHandler(w, ho)
	} else {
		h = slog.NewTextHandler(w, ho)
	}
	return slog.New(h)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
