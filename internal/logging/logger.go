// Package logging builds the structured loggers used by the forge CLI and
// captures streamed workload output.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options select the logger's output.
type Options struct {
	// Format is "json" or "text". Anything else means json.
	Format string
	// Level is "debug", "info", "warn" or "error".
	Level string
	// Verbose forces debug level with source locations.
	Verbose bool
	// Writer defaults to stderr; stdout carries the workload's own output.
	Writer io.Writer
}

// NewLogger creates a structured logger from opts.
func NewLogger(opts Options) *slog.Logger {
	level := ParseLevel(opts.Level)
	if opts.Verbose {
		level = slog.LevelDebug
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	hopts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "text":
		handler = slog.NewTextHandler(w, hopts)
	default:
		handler = slog.NewJSONHandler(w, hopts)
	}
	return slog.New(handler)
}

// ParseLevel converts a level name to slog.Level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// ValidLevel reports whether level is a recognised level name.
func ValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// ForInvocation tags every record with the invocation and command.
func ForInvocation(logger *slog.Logger, invocationID, command string) *slog.Logger {
	return logger.With("invocation_id", invocationID, "command", command)
}
