package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRemote()
	c.normalizeUpload()
	c.normalizeProcessing()
	c.normalizeSync()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeRemote() {
	c.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(c.Remote.BaseURL), "/")
	c.Remote.APIToken = strings.TrimSpace(c.Remote.APIToken)
	if c.Remote.RequestTimeoutSeconds <= 0 {
		c.Remote.RequestTimeoutSeconds = defaultRemoteRequestTimeout
	}
	if c.Remote.TransferTimeoutSeconds <= 0 {
		c.Remote.TransferTimeoutSeconds = defaultRemoteTransferTimeout
	}
	if strings.TrimSpace(c.Remote.ProbePath) == "" {
		c.Remote.ProbePath = defaultRemoteProbePath
	}
}

func (c *Config) normalizeUpload() {
	if c.Upload.ConcurrentUploads <= 0 {
		c.Upload.ConcurrentUploads = defaultConcurrentUploads
	}
	if c.Upload.MaxAttempts <= 0 {
		c.Upload.MaxAttempts = defaultMaxAttempts
	}
	if c.Upload.BatchSize <= 0 {
		c.Upload.BatchSize = defaultBatchSize
	}
	if c.Upload.RetentionDays <= 0 {
		c.Upload.RetentionDays = defaultRetentionDays
	}
	if len(c.Upload.BackoffSeconds) == 0 {
		c.Upload.BackoffSeconds = defaultBackoffSeconds()
	}
	if c.Upload.StuckAfterSeconds <= 0 {
		c.Upload.StuckAfterSeconds = defaultStuckAfterSeconds
	}
}

func (c *Config) normalizeProcessing() {
	if c.Processing.MaxDimensionPx <= 0 {
		c.Processing.MaxDimensionPx = defaultMaxDimensionPx
	}
	if c.Processing.JPEGQuality <= 0 || c.Processing.JPEGQuality > 100 {
		c.Processing.JPEGQuality = defaultJPEGQuality
	}
	if c.Processing.MaxSourceBytes <= 0 {
		c.Processing.MaxSourceBytes = defaultMaxSourceBytes
	}
	if c.Processing.ThumbnailPx <= 0 {
		c.Processing.ThumbnailPx = defaultThumbnailPx
	}
	if c.Processing.RenderWorkers < 0 {
		c.Processing.RenderWorkers = defaultRenderWorkers
	}
	if c.Processing.RenderTimeoutSeconds <= 0 {
		c.Processing.RenderTimeoutSeconds = defaultRenderTimeoutSeconds
	}
}

func (c *Config) normalizeSync() {
	if c.Sync.NetworkRestoredThrottle <= 0 {
		c.Sync.NetworkRestoredThrottle = defaultNetworkRestoredWindow
	}
	if c.Sync.ForegroundThrottle <= 0 {
		c.Sync.ForegroundThrottle = defaultForegroundWindow
	}
	if c.Sync.ReviewThrottle <= 0 {
		c.Sync.ReviewThrottle = defaultReviewWindow
	}
	if c.Sync.CaptureDebounce <= 0 {
		c.Sync.CaptureDebounce = defaultCaptureDebounce
	}
	if c.Sync.SweepIntervalMinutes <= 0 {
		c.Sync.SweepIntervalMinutes = defaultSweepIntervalMinutes
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
