package main

import (
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
)

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogging installs the JSON handler used by the long-running service.
func setupLogging(level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// setupConsoleLogging installs a human-readable handler for interactive commands.
func setupConsoleLogging(level string) *slog.Logger {
	handler := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Level:           log.Level(parseLevel(level)),
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
