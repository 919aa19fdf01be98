package config

const (
	defaultDataDir                = "~/.local/share/proofbox"
	defaultLogDir                 = "~/.local/share/proofbox/logs"
	defaultAPIBind                = "127.0.0.1:7642"
	defaultRemoteRequestTimeout   = 15
	defaultRemoteTransferTimeout  = 60
	defaultRemoteProbePath        = "/healthz"
	defaultConcurrentUploads      = 2
	defaultMaxAttempts            = 3
	defaultBatchSize              = 16
	defaultRetentionDays          = 7
	defaultStuckAfterSeconds      = 60
	defaultMaxDimensionPx         = 2048
	defaultJPEGQuality            = 75
	defaultMaxSourceBytes         = 15 * 1024 * 1024
	defaultThumbnailPx            = 320
	defaultRenderWorkers          = 1
	defaultRenderTimeoutSeconds   = 30
	defaultNetworkRestoredWindow  = 10
	defaultForegroundWindow       = 30
	defaultReviewWindow           = 60
	defaultCaptureDebounce        = 5
	defaultSweepIntervalMinutes   = 60
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

func defaultBackoffSeconds() []int {
	return []int{1, 5, 30}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Remote: Remote{
			RequestTimeoutSeconds:  defaultRemoteRequestTimeout,
			TransferTimeoutSeconds: defaultRemoteTransferTimeout,
			ProbePath:              defaultRemoteProbePath,
		},
		Upload: Upload{
			ConcurrentUploads: defaultConcurrentUploads,
			MaxAttempts:       defaultMaxAttempts,
			BatchSize:         defaultBatchSize,
			RetentionDays:     defaultRetentionDays,
			BackoffSeconds:    defaultBackoffSeconds(),
			StuckAfterSeconds: defaultStuckAfterSeconds,
		},
		Processing: Processing{
			MaxDimensionPx:       defaultMaxDimensionPx,
			JPEGQuality:          defaultJPEGQuality,
			MaxSourceBytes:       defaultMaxSourceBytes,
			ThumbnailPx:          defaultThumbnailPx,
			WatermarkEnabled:     true,
			RenderWorkers:        defaultRenderWorkers,
			RenderTimeoutSeconds: defaultRenderTimeoutSeconds,
		},
		Sync: Sync{
			NetworkRestoredThrottle: defaultNetworkRestoredWindow,
			ForegroundThrottle:      defaultForegroundWindow,
			ReviewThrottle:          defaultReviewWindow,
			CaptureDebounce:         defaultCaptureDebounce,
			SweepIntervalMinutes:    defaultSweepIntervalMinutes,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Failures:       true,
			QueueDrained:   true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
