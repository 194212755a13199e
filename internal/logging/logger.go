// Package logging builds the slog handlers shared by the process logger and
// the per-run task loggers.
package logging

import (
	"io"
	"log/slog"
)

// NewHandler creates a text or json handler writing to w at the named level
func NewHandler(levelStr, formatStr string, w io.Writer) slog.Handler {
	level, _ := ParseLevel(levelStr)

	handlerOpts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevel}

	if formatStr == "json" {
		return slog.NewJSONHandler(w, handlerOpts)
	}
	return slog.NewTextHandler(w, handlerOpts)
}

// NewLogger creates a new slog.Logger instance. It does not set the global
// logger, allowing for isolated logger instances.
func NewLogger(levelStr, formatStr string, w io.Writer) *slog.Logger {
	return slog.New(NewHandler(levelStr, formatStr, w))
}

// Discard returns a logger that drops every record
func Discard() *slog.Logger {
	return slog.New(NewFanout())
}
