package logger

import (
	"log/slog"
	"os"
)

// New returns a text slog logger on stdout. Debug level enables per-delivery
// broadcast logging, which is too chatty for production.
func New(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
