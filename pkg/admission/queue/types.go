package queue

import (
	"context"
	"time"

	"mercator-hq/ganymede/pkg/admission/ratelimit"
)

// AdmitFunc gates a dispatched request, typically a rate limiter's Acquire.
// A nil AdmitFunc admits everything.
type AdmitFunc func(ctx context.Context, info ratelimit.RequestInfo) error

// ReleaseFunc frees the concurrency slot held by an admitted request. It is
// safe to call more than once; only the first call has effect.
type ReleaseFunc func()

// Config contains configuration for a Queue.
type Config struct {
	// MaxSize caps the total number of queued requests across all priority
	// levels.
	MaxSize int `yaml:"max_size"`

	// Concurrency bounds how many dispatched requests may be in flight.
	Concurrency int `yaml:"concurrency"`

	// MaxRetries is how many times a request rejected by the admitter is
	// re-queued before its caller fails.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the base for the exponential retry backoff.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Timeout is how long a request may wait before being failed.
	Timeout time.Duration `yaml:"timeout"`

	// PriorityLevels is the number of discrete priority buckets (0..N-1).
	PriorityLevels int `yaml:"priority_levels"`

	// EnableBackpressure evicts the oldest low-priority request when the
	// queue is full.
	EnableBackpressure bool `yaml:"enable_backpressure"`
}

// DefaultConfig returns the standard queue configuration.
func DefaultConfig() Config {
	return Config{
		MaxSize:            100,
		Concurrency:        5,
		MaxRetries:         3,
		RetryDelay:         time.Second,
		Timeout:            30 * time.Second,
		PriorityLevels:     3,
		EnableBackpressure: true,
	}
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxSize <= 0 {
		c.MaxSize = def.MaxSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.PriorityLevels <= 0 {
		c.PriorityLevels = def.PriorityLevels
	}
	return c
}

// Metrics is a point-in-time snapshot of the queue's running counters.
type Metrics struct {
	// Enqueued is the total number of accepted enqueues.
	Enqueued int64

	// Dispatched is the total number of requests released to callers.
	Dispatched int64

	// Completed is the total number of released slots (caller finished).
	Completed int64

	// Failed is the total number of requests failed after exhausting
	// retries.
	Failed int64

	// TimedOut is the total number of requests whose timer fired in queue.
	TimedOut int64

	// Dropped is the total number of requests evicted under backpressure.
	Dropped int64

	// Retried is the total number of re-insertions after admitter rejects.
	Retried int64

	// AvgWait is the mean time between enqueue and dispatch.
	AvgWait time.Duration

	// AvgProcessing is the mean time between dispatch and release.
	AvgProcessing time.Duration

	// Throughput is completed requests per second since the queue started.
	Throughput float64
}

// Status describes the queue's current occupancy.
type Status struct {
	// Levels holds the queued count per priority level, index 0 lowest.
	Levels []int

	// Size is the total queued count across all levels.
	Size int

	// InFlight is the number of dispatched, unreleased requests.
	InFlight int

	// Paused reports whether dispatching is suspended.
	Paused bool
}

// Events receives queue lifecycle notifications. Implementations must be
// fast and must not call back into the queue; they are invoked outside the
// queue lock. All methods are optional in spirit: use NopEvents to listen to
// nothing.
type Events interface {
	RequestEnqueued(info ratelimit.RequestInfo, level int)
	RequestDispatched(info ratelimit.RequestInfo, wait time.Duration)
	RequestCompleted(info ratelimit.RequestInfo, processing time.Duration)
	RequestRetried(info ratelimit.RequestInfo, attempt int, delay time.Duration)
	RequestFailed(info ratelimit.RequestInfo, err error)
	RequestTimedOut(info ratelimit.RequestInfo)
	RequestDropped(info ratelimit.RequestInfo)
	QueueCleared(pending int)
	QueuePaused()
	QueueResumed()
}

// NopEvents is an Events implementation that discards everything.
type NopEvents struct{}

func (NopEvents) RequestEnqueued(ratelimit.RequestInfo, int)                  {}
func (NopEvents) RequestDispatched(ratelimit.RequestInfo, time.Duration)      {}
func (NopEvents) RequestCompleted(ratelimit.RequestInfo, time.Duration)       {}
func (NopEvents) RequestRetried(ratelimit.RequestInfo, int, time.Duration)    {}
func (NopEvents) RequestFailed(ratelimit.RequestInfo, error)                  {}
func (NopEvents) RequestTimedOut(ratelimit.RequestInfo)                       {}
func (NopEvents) RequestDropped(ratelimit.RequestInfo)                        {}
func (NopEvents) QueueCleared(int)                                            {}
func (NopEvents) QueuePaused()                                                {}
func (NopEvents) QueueResumed()                                               {}
