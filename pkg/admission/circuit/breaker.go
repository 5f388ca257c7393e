package circuit

import (
	"context"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State string

const (
	// StateClosed means calls pass through normally.
	StateClosed State = "closed"

	// StateOpen means calls fail fast without invoking the operation.
	StateOpen State = "open"

	// StateHalfOpen means a single trial call is probing recovery.
	StateHalfOpen State = "half-open"
)

// Operation is a fallible call protected by the breaker.
type Operation func(ctx context.Context) error

// Config contains configuration for a Breaker.
type Config struct {
	// Threshold is the number of consecutive failures that opens the
	// circuit.
	Threshold int

	// Timeout is how long the circuit stays open before a half-open trial
	// is allowed.
	Timeout time.Duration

	// MonitoringPeriod bounds how long a failure streak is remembered while
	// closed; a failure older than this no longer counts toward the
	// threshold. Zero disables the decay.
	MonitoringPeriod time.Duration

	// OnStateChange is invoked after every state transition. Optional; it
	// must not call back into the breaker.
	OnStateChange func(from, to State)
}

// DefaultConfig returns a breaker configuration with a threshold of 5
// failures and a 30 second recovery timeout.
func DefaultConfig() Config {
	return Config{
		Threshold: 5,
		Timeout:   30 * time.Second,
	}
}

// Breaker wraps a downstream call with circuit breaker failure tracking.
//
// Created once per protected operation or provider and mutated on every call
// outcome. See the package documentation for the state machine.
type Breaker struct {
	config Config

	mu              sync.Mutex
	state           State
	failureCount    int
	lastFailureTime time.Time
	trialInFlight   bool
}

// NewBreaker creates a breaker in the closed state.
func NewBreaker(config Config) *Breaker {
	if config.Threshold <= 0 {
		config.Threshold = DefaultConfig().Threshold
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Breaker{
		config: config,
		state:  StateClosed,
	}
}

// Execute runs op under the breaker's state machine.
//
// While open, Execute fails with an *OpenError without invoking op, unless
// the timeout has elapsed, in which case exactly this call runs as the
// half-open trial. A successful call always resets the failure count.
func (b *Breaker) Execute(ctx context.Context, op Operation) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := op(ctx)
	b.afterCall(err == nil)
	return err
}

// State returns the current state. The answer may be stale by the time the
// caller acts on it; use Execute for admission.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the current consecutive failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// Reset forces the breaker closed with zero recorded failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	b.trialInFlight = false
	b.transitionLocked(StateClosed)
}

// beforeCall decides whether the call may proceed.
func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		elapsed := time.Since(b.lastFailureTime)
		if elapsed <= b.config.Timeout {
			return &OpenError{RetryAfter: b.config.Timeout - elapsed}
		}
		// Timeout elapsed: this call becomes the half-open trial.
		b.transitionLocked(StateHalfOpen)
		b.trialInFlight = true
		return nil

	case StateHalfOpen:
		if b.trialInFlight {
			// A trial is already probing; fail fast like open.
			return &OpenError{RetryAfter: b.config.Timeout}
		}
		b.trialInFlight = true
		return nil

	default:
		return &OpenError{RetryAfter: b.config.Timeout}
	}
}

// afterCall records the outcome of a call that was admitted.
func (b *Breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.failureCount = 0
		b.trialInFlight = false
		if b.state != StateClosed {
			b.transitionLocked(StateClosed)
		}
		return
	}

	now := time.Now()

	switch b.state {
	case StateHalfOpen:
		// The trial failed: back to open.
		b.trialInFlight = false
		b.lastFailureTime = now
		b.transitionLocked(StateOpen)

	case StateClosed:
		if b.config.MonitoringPeriod > 0 &&
			!b.lastFailureTime.IsZero() &&
			now.Sub(b.lastFailureTime) > b.config.MonitoringPeriod {
			// The previous streak is stale; start counting fresh.
			b.failureCount = 0
		}
		b.failureCount++
		b.lastFailureTime = now
		if b.failureCount >= b.config.Threshold {
			b.transitionLocked(StateOpen)
		}

	case StateOpen:
		b.lastFailureTime = now
	}
}

// transitionLocked moves to newState and fires the state change callback.
// Caller must hold the lock.
func (b *Breaker) transitionLocked(newState State) {
	old := b.state
	b.state = newState
	if old != newState && b.config.OnStateChange != nil {
		b.config.OnStateChange(old, newState)
	}
}
