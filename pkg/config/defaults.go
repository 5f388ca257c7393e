package config

import "time"

// Default values for configuration fields.
const (
	// Logging defaults
	DefaultLoggingLevel  = "info"
	DefaultLoggingFormat = "json"

	// Rate limit defaults
	DefaultWindowSize = time.Minute

	// Queue defaults
	DefaultQueueMaxSize        = 100
	DefaultQueueConcurrency    = 5
	DefaultQueueMaxRetries     = 3
	DefaultQueueRetryDelay     = time.Second
	DefaultQueueTimeout        = 30 * time.Second
	DefaultQueuePriorityLevels = 3

	// Circuit defaults
	DefaultCircuitThreshold        = 5
	DefaultCircuitTimeout          = 30 * time.Second
	DefaultCircuitMonitoringPeriod = time.Minute

	// History defaults
	DefaultHistoryBackend        = "memory"
	DefaultHistorySQLitePath     = "data/decisions.db"
	DefaultHistoryMemoryCapacity = 10000
	DefaultHistoryRetention      = 7 * 24 * time.Hour
	DefaultHistorySchedule       = "0 3 * * *"
)

// ApplyDefaults fills zero-valued fields with default values. Enable flags
// left absent in the file become true.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	for id, limits := range cfg.Providers {
		applyLimitDefaults(&limits)
		cfg.Providers[id] = limits
	}
	if cfg.Global != nil {
		applyLimitDefaults(cfg.Global)
	}

	if cfg.Queue.MaxSize <= 0 {
		cfg.Queue.MaxSize = DefaultQueueMaxSize
	}
	if cfg.Queue.Concurrency <= 0 {
		cfg.Queue.Concurrency = DefaultQueueConcurrency
	}
	if cfg.Queue.MaxRetries < 0 {
		cfg.Queue.MaxRetries = DefaultQueueMaxRetries
	}
	if cfg.Queue.RetryDelay <= 0 {
		cfg.Queue.RetryDelay = DefaultQueueRetryDelay
	}
	if cfg.Queue.Timeout <= 0 {
		cfg.Queue.Timeout = DefaultQueueTimeout
	}
	if cfg.Queue.PriorityLevels <= 0 {
		cfg.Queue.PriorityLevels = DefaultQueuePriorityLevels
	}
	if cfg.Queue.EnableBackpressure == nil {
		cfg.Queue.EnableBackpressure = boolPtr(true)
	}

	if cfg.Circuit.Threshold <= 0 {
		cfg.Circuit.Threshold = DefaultCircuitThreshold
	}
	if cfg.Circuit.Timeout <= 0 {
		cfg.Circuit.Timeout = DefaultCircuitTimeout
	}
	if cfg.Circuit.MonitoringPeriod <= 0 {
		cfg.Circuit.MonitoringPeriod = DefaultCircuitMonitoringPeriod
	}

	if cfg.History.Backend == "" {
		cfg.History.Backend = DefaultHistoryBackend
	}
	if cfg.History.SQLitePath == "" {
		cfg.History.SQLitePath = DefaultHistorySQLitePath
	}
	if cfg.History.MemoryCapacity <= 0 {
		cfg.History.MemoryCapacity = DefaultHistoryMemoryCapacity
	}
	if cfg.History.Retention <= 0 {
		cfg.History.Retention = DefaultHistoryRetention
	}
	if cfg.History.Enabled && cfg.History.Schedule == "" {
		cfg.History.Schedule = DefaultHistorySchedule
	}
}

// applyLimitDefaults normalizes one provider's limits.
func applyLimitDefaults(limits *ProviderLimits) {
	if limits.BurstLimit <= 0 {
		limits.BurstLimit = limits.RequestsPerMinute
	}
	if limits.WindowSize <= 0 {
		limits.WindowSize = DefaultWindowSize
	}
	if limits.EnableTokenBucket == nil {
		limits.EnableTokenBucket = boolPtr(true)
	}
	if limits.EnableSlidingWindow == nil {
		limits.EnableSlidingWindow = boolPtr(true)
	}
}

func boolPtr(b bool) *bool {
	return &b
}
