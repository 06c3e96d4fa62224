// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup installs a text handler on the default logger. The level comes
// from the LOG_LEVEL environment variable when level is empty.
func Setup(w io.Writer, level string) {
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}

	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}
