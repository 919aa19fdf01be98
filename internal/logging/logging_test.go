package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"proofbox/internal/config"
)

func TestConsoleHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, level))
	logger = NewComponentLogger(logger, "uploader")

	logger.Info("upload confirmed", String(FieldRecordID, "rec-1"))

	line := buf.String()
	for _, want := range []string{"INFO", "[uploader]", "upload confirmed", "record_id=rec-1"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in output, got %q", want, line)
		}
	}
}

func TestConsoleHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, level))

	logger.Info("should be filtered")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Fatal("info line leaked through warn level")
	}
	if !strings.Contains(out, "should appear") {
		t.Fatal("warn line missing")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewFromConfigTeesIntoLogDir(t *testing.T) {
	logDir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LogDir = logDir
	cfg.Logging.Format = "console"

	logger, err := NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	logger.Info("hello from test")

	data, err := os.ReadFile(filepath.Join(logDir, "proofbox.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Fatalf("log file missing entry: %q", data)
	}
}

func TestErrorAttrHandlesNil(t *testing.T) {
	attr := Error(nil)
	if got := attr.Value.String(); got != "<nil>" {
		t.Fatalf("expected <nil> value for nil error, got %q", got)
	}
}
