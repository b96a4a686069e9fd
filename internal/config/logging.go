package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger builds the docchat logger: human-readable text on stderr and
// JSON lines in logFile. The returned cleanup closes the file.
// If the file cannot be opened the logger degrades to stderr only.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	console := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	if logFile == "" {
		return slog.New(console), func() error { return nil }
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		slog.Warn("log directory unavailable, logging to stderr only", "error", err, "file", logFile)
		return slog.New(console), func() error { return nil }
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Warn("log file unavailable, logging to stderr only", "error", err, "file", logFile)
		return slog.New(console), func() error { return nil }
	}

	jsonLines := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	logger := slog.New(slogmulti.Fanout(console, jsonLines)).With("app", "docchat")

	return logger, file.Close
}

// SetupLoggerWithWriters is SetupLogger with caller-provided sinks (tests, TUI mode).
func SetupLoggerWithWriters(console, file io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: level}),
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}),
	))
}
