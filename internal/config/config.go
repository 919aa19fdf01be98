package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Remote contains configuration for the evidence service the daemon uploads to.
type Remote struct {
	BaseURL                string `toml:"base_url"`
	APIToken               string `toml:"api_token"`
	RequestTimeoutSeconds  int    `toml:"request_timeout_seconds"`
	TransferTimeoutSeconds int    `toml:"transfer_timeout_seconds"`
	ProbePath              string `toml:"probe_path"`
}

// Upload contains configuration for the upload queue.
type Upload struct {
	ConcurrentUploads int   `toml:"concurrent_uploads"`
	MaxAttempts       int   `toml:"max_attempts"`
	BatchSize         int   `toml:"batch_size"`
	RetentionDays     int   `toml:"retention_days"`
	BackoffSeconds    []int `toml:"backoff_seconds"`
	StuckAfterSeconds int   `toml:"stuck_after_seconds"`
}

// Processing contains configuration for image preprocessing.
type Processing struct {
	MaxDimensionPx       int  `toml:"max_dimension_px"`
	JPEGQuality          int  `toml:"jpeg_quality"`
	MaxSourceBytes       int64 `toml:"max_source_bytes"`
	ThumbnailPx          int  `toml:"thumbnail_px"`
	WatermarkEnabled     bool `toml:"watermark_enabled"`
	RenderWorkers        int  `toml:"render_workers"`
	RenderTimeoutSeconds int  `toml:"render_timeout_seconds"`
}

// Sync contains throttle windows for the sync orchestrator, in seconds.
type Sync struct {
	NetworkRestoredThrottle int `toml:"network_restored_throttle"`
	ForegroundThrottle      int `toml:"foreground_throttle"`
	ReviewThrottle          int `toml:"review_throttle"`
	CaptureDebounce         int `toml:"capture_debounce"`
	SweepIntervalMinutes    int `toml:"sweep_interval_minutes"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Captures       bool   `toml:"captures"`
	Failures       bool   `toml:"failures"`
	QueueDrained   bool   `toml:"queue_drained"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Telemetry controls the Prometheus metrics endpoint.
type Telemetry struct {
	Enabled bool `toml:"enabled"`
}

// Config encapsulates all configuration values for proofbox.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and local API bind address
//   - Remote: evidence service endpoints and timeouts
//   - Upload: queue concurrency, retry, and retention policy
//   - Processing: compression and watermark parameters
//   - Sync: trigger throttle windows
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
//   - Telemetry: metrics endpoint toggle
type Config struct {
	Paths         Paths         `toml:"paths"`
	Remote        Remote        `toml:"remote"`
	Upload        Upload        `toml:"upload"`
	Processing    Processing    `toml:"processing"`
	Sync          Sync          `toml:"sync"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Telemetry     Telemetry     `toml:"telemetry"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/proofbox/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, resolvedPath, exists, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, resolvedPath, exists, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err = os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	projectPath, err := filepath.Abs("proofbox.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// SampleConfig returns the embedded annotated sample configuration file.
func SampleConfig() string {
	return sampleConfig
}

// WriteSample writes the sample configuration to path, refusing to overwrite.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the data and log directories if missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
