package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"proofbox/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
[remote]
base_url = "https://evidence.example.com/"

[upload]
concurrent_uploads = 4

[logging]
level = "debug"
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %s to be found, got %s exists=%v", path, resolved, exists)
	}

	if cfg.Remote.BaseURL != "https://evidence.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Remote.BaseURL)
	}
	if cfg.Upload.ConcurrentUploads != 4 {
		t.Fatalf("expected override, got %d", cfg.Upload.ConcurrentUploads)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected level override, got %q", cfg.Logging.Level)
	}

	// Untouched sections keep defaults.
	if cfg.Upload.MaxAttempts != 3 {
		t.Fatalf("expected default max attempts, got %d", cfg.Upload.MaxAttempts)
	}
	if cfg.Upload.RetentionDays != 7 {
		t.Fatalf("expected default retention, got %d", cfg.Upload.RetentionDays)
	}
	if cfg.Processing.MaxDimensionPx != 2048 {
		t.Fatalf("expected default dimension bound, got %d", cfg.Processing.MaxDimensionPx)
	}
	if cfg.Processing.JPEGQuality != 75 {
		t.Fatalf("expected default jpeg quality, got %d", cfg.Processing.JPEGQuality)
	}
	if len(cfg.Upload.BackoffSeconds) != 3 || cfg.Upload.BackoffSeconds[0] != 1 {
		t.Fatalf("expected default backoff schedule, got %v", cfg.Upload.BackoffSeconds)
	}
}

func TestLoadRequiresRemoteBaseURL(t *testing.T) {
	path := writeConfig(t, `
[upload]
concurrent_uploads = 1
`)

	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for missing remote.base_url")
	} else if !strings.Contains(err.Error(), "remote.base_url") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsInvalidBaseURL(t *testing.T) {
	path := writeConfig(t, `
[remote]
base_url = "not a url"
`)

	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for invalid remote.base_url")
	}
}

func TestLoadRejectsNonPositiveBackoff(t *testing.T) {
	path := writeConfig(t, `
[remote]
base_url = "https://evidence.example.com"

[upload]
backoff_seconds = [1, 0, 30]
`)

	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for non-positive backoff entry")
	}
}

func TestLoadRejectsUnknownLoggingFormat(t *testing.T) {
	path := writeConfig(t, `
[remote]
base_url = "https://evidence.example.com"

[logging]
format = "xml"
`)

	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unknown logging format")
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Remote.BaseURL = "https://evidence.example.com"
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist", dir)
		}
	}
}

func TestSampleConfigParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}

	// The sample ships with base_url empty, so loading it verbatim must
	// fail validation with the pointer toward the fix.
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected sample config to require remote.base_url")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	patched := strings.Replace(string(data), `base_url = ""`, `base_url = "https://evidence.example.com"`, 1)
	if err := os.WriteFile(path, []byte(patched), 0o644); err != nil {
		t.Fatalf("patch sample: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load patched sample failed: %v", err)
	}
	if !cfg.Processing.WatermarkEnabled {
		t.Fatal("expected sample defaults to match built-in defaults")
	}
}
