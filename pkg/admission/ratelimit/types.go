package ratelimit

import "time"

// Dimension identifies which resource dimension a limit applies to.
type Dimension string

const (
	// DimensionRequests limits the number of requests.
	DimensionRequests Dimension = "requests"

	// DimensionTokens limits the number of tokens (estimated cost).
	DimensionTokens Dimension = "tokens"
)

// Scope identifies which mechanism rejected a request.
type Scope string

const (
	// ScopePerMinute indicates the sliding window quota was exhausted.
	ScopePerMinute Scope = "per_minute"

	// ScopeBurst indicates the token bucket burst allowance was exhausted.
	ScopeBurst Scope = "burst"
)

// Config contains the rate limit configuration for a single provider.
type Config struct {
	// RequestsPerMinute limits requests per window. Required, positive.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// TokensPerMinute limits estimated tokens per window. Required, positive.
	TokensPerMinute int `yaml:"tokens_per_minute"`

	// BurstLimit is the token bucket capacity for the request dimension.
	// Defaults to RequestsPerMinute when zero.
	BurstLimit int `yaml:"burst_limit"`

	// WindowSize is the sliding window duration. Defaults to one minute.
	WindowSize time.Duration `yaml:"window_size"`

	// EnableTokenBucket enables the burst mechanism.
	EnableTokenBucket bool `yaml:"enable_token_bucket"`

	// EnableSlidingWindow enables the per-window quota mechanism.
	EnableSlidingWindow bool `yaml:"enable_sliding_window"`
}

// DefaultConfig returns a Config with both mechanisms enabled and the
// standard one-minute window. This is the usual entry point; construct Config
// literals directly only when a mechanism must be disabled.
func DefaultConfig(requestsPerMinute, tokensPerMinute int) Config {
	return Config{
		RequestsPerMinute:   requestsPerMinute,
		TokensPerMinute:     tokensPerMinute,
		BurstLimit:          requestsPerMinute,
		WindowSize:          time.Minute,
		EnableTokenBucket:   true,
		EnableSlidingWindow: true,
	}
}

// withDefaults fills zero-valued optional fields.
func (c Config) withDefaults() Config {
	if c.BurstLimit <= 0 {
		c.BurstLimit = c.RequestsPerMinute
	}
	if c.WindowSize <= 0 {
		c.WindowSize = time.Minute
	}
	return c
}

// RequestInfo describes a unit of work seeking admission.
type RequestInfo struct {
	// ID is the caller-assigned identifier, unique per in-flight request.
	ID string

	// EstimatedTokens is the non-negative cost estimate for this request.
	// Admission only ever reasons about the estimate; true-up against actual
	// usage is out of scope.
	EstimatedTokens int

	// Priority orders requests in the queue (higher is more urgent). It has
	// no effect on limiter admission.
	Priority int

	// UserID optionally identifies the request owner. Informational only.
	UserID string
}

// CheckResult is the outcome of a non-committing admission check.
type CheckResult struct {
	// Allowed indicates if the request would be admitted.
	Allowed bool

	// Reason explains the rejection (if Allowed=false).
	Reason string

	// Dimension is the dimension whose limit failed (if Allowed=false).
	Dimension Dimension
}

// Status reports the limiter's remaining capacity. It is derived from live
// state on demand and never persisted.
type Status struct {
	// RequestsRemaining is the remaining request capacity in the window.
	RequestsRemaining int64

	// TokensRemaining is the remaining token capacity in the window.
	TokensRemaining int64

	// Reset is when the current window rolls over.
	Reset time.Time

	// RetryAfter suggests how long to wait when capacity is exhausted.
	// Zero when capacity remains.
	RetryAfter time.Duration
}
