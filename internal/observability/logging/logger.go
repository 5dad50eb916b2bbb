package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewJSONLogger is used by the long-running services.
func NewJSONLogger(service, level string) *slog.Logger {
	return newLogger(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	}), service)
}

// NewTextLogger writes human-readable records to w, stdout of statutectl
// being reserved for command output.
func NewTextLogger(w io.Writer, service, level string) *slog.Logger {
	return newLogger(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	}), service)
}

func newLogger(handler slog.Handler, service string) *slog.Logger {
	return slog.New(handler).With("service", service)
}

func parseLevel(level string) slog.Level {
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
