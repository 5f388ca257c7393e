package config

import (
	"time"

	"mercator-hq/ganymede/pkg/admission/circuit"
	"mercator-hq/ganymede/pkg/admission/history"
	"mercator-hq/ganymede/pkg/admission/queue"
	"mercator-hq/ganymede/pkg/admission/ratelimit"
)

// Config is the root configuration for the admission control stack.
type Config struct {
	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging"`

	// Providers maps provider ids to their rate limits. At least one
	// provider must be configured.
	Providers map[string]ProviderLimits `yaml:"providers"`

	// Global are rate limits applied before any provider limits.
	// Optional; nil means no global ceiling.
	Global *ProviderLimits `yaml:"global"`

	// Queue configures the priority request queue.
	Queue QueueConfig `yaml:"queue"`

	// Circuit configures the circuit breaker.
	Circuit CircuitConfig `yaml:"circuit"`

	// History configures admission decision recording.
	History HistoryConfig `yaml:"history"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is the output encoding: json or text.
	Format string `yaml:"format"`
}

// ProviderLimits configures the rate limiter for one provider.
//
// The Enable* fields are pointers so "absent" can be told apart from
// "explicitly false": an omitted flag defaults to true.
type ProviderLimits struct {
	// RequestsPerMinute limits requests per window. Required, positive.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// TokensPerMinute limits estimated tokens per window. Required, positive.
	TokensPerMinute int `yaml:"tokens_per_minute"`

	// BurstLimit is the token bucket capacity for the request dimension.
	// Defaults to RequestsPerMinute.
	BurstLimit int `yaml:"burst_limit"`

	// WindowSize is the sliding window duration. Defaults to one minute.
	WindowSize time.Duration `yaml:"window_size"`

	// EnableTokenBucket enables the burst mechanism. Defaults to true.
	EnableTokenBucket *bool `yaml:"enable_token_bucket"`

	// EnableSlidingWindow enables the per-window quota mechanism.
	// Defaults to true.
	EnableSlidingWindow *bool `yaml:"enable_sliding_window"`
}

// RateLimit converts the section into the ratelimit package's config.
// Call after ApplyDefaults; nil flags are treated as enabled.
func (p ProviderLimits) RateLimit() ratelimit.Config {
	return ratelimit.Config{
		RequestsPerMinute:   p.RequestsPerMinute,
		TokensPerMinute:     p.TokensPerMinute,
		BurstLimit:          p.BurstLimit,
		WindowSize:          p.WindowSize,
		EnableTokenBucket:   p.EnableTokenBucket == nil || *p.EnableTokenBucket,
		EnableSlidingWindow: p.EnableSlidingWindow == nil || *p.EnableSlidingWindow,
	}
}

// QueueConfig configures the priority request queue.
type QueueConfig struct {
	// MaxSize caps the total number of queued requests.
	MaxSize int `yaml:"max_size"`

	// Concurrency bounds how many dispatched requests may be in flight.
	Concurrency int `yaml:"concurrency"`

	// MaxRetries is how many admitter rejections are retried per request.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the base for the exponential retry backoff.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Timeout is how long a request may wait before being failed.
	Timeout time.Duration `yaml:"timeout"`

	// PriorityLevels is the number of discrete priority buckets.
	PriorityLevels int `yaml:"priority_levels"`

	// EnableBackpressure evicts the oldest low-priority request when the
	// queue is full.
	EnableBackpressure *bool `yaml:"enable_backpressure"`
}

// Queue converts the section into the queue package's config.
func (q QueueConfig) Queue() queue.Config {
	return queue.Config{
		MaxSize:            q.MaxSize,
		Concurrency:        q.Concurrency,
		MaxRetries:         q.MaxRetries,
		RetryDelay:         q.RetryDelay,
		Timeout:            q.Timeout,
		PriorityLevels:     q.PriorityLevels,
		EnableBackpressure: q.EnableBackpressure == nil || *q.EnableBackpressure,
	}
}

// CircuitConfig configures the circuit breaker.
type CircuitConfig struct {
	// Threshold is the consecutive-failure count that opens the circuit.
	Threshold int `yaml:"threshold"`

	// Timeout is how long the circuit stays open before a half-open trial.
	Timeout time.Duration `yaml:"timeout"`

	// MonitoringPeriod bounds how long a failure streak is remembered.
	MonitoringPeriod time.Duration `yaml:"monitoring_period"`
}

// Circuit converts the section into the circuit package's config. The
// OnStateChange callback is wired by the caller, not the file.
func (c CircuitConfig) Circuit() circuit.Config {
	return circuit.Config{
		Threshold:        c.Threshold,
		Timeout:          c.Timeout,
		MonitoringPeriod: c.MonitoringPeriod,
	}
}

// HistoryConfig configures admission decision recording.
type HistoryConfig struct {
	// Enabled turns decision recording on.
	Enabled bool `yaml:"enabled"`

	// Backend selects the store: memory or sqlite.
	Backend string `yaml:"backend"`

	// SQLitePath is the database file path for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`

	// MemoryCapacity bounds the memory backend's ring size.
	MemoryCapacity int `yaml:"memory_capacity"`

	// Retention is how long decisions are kept.
	Retention time.Duration `yaml:"retention"`

	// Schedule is a cron expression for automatic pruning. Empty disables
	// the scheduler.
	Schedule string `yaml:"schedule"`
}

// Pruner converts the section into the history package's pruner config.
func (h HistoryConfig) Pruner() history.PrunerConfig {
	return history.PrunerConfig{
		Retention: h.Retention,
		Schedule:  h.Schedule,
	}
}
