package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTextLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTextLogger(&buf, "statutectl", "warn")

	logger.Info("index_built")
	logger.Warn("generation_failed", "error", "timeout")

	out := buf.String()
	if strings.Contains(out, "index_built") {
		t.Fatalf("info record should be filtered, got %q", out)
	}
	if !strings.Contains(out, "generation_failed") || !strings.Contains(out, "service=statutectl") {
		t.Fatalf("unexpected output %q", out)
	}
}
