package ratelimit

import (
	"context"
	"sync"
	"time"
)

// minRetryAfter is the floor applied to every computed retry delay so
// callers never retry more aggressively than once per second.
const minRetryAfter = time.Second

// Limiter makes the admit/reject decision for one named provider.
//
// It owns independent request-dimension and token-dimension instances of both
// mechanisms (four limiter instances when both are enabled). Checks run in a
// fixed order:
//
//  1. request sliding window
//  2. request token bucket
//  3. token sliding window
//  4. token token bucket
//
// skipping any disabled mechanism and stopping at the first failure. If both
// mechanisms are disabled the limiter admits everything.
type Limiter struct {
	provider string
	config   Config

	reqWindow *SlidingWindowCounter
	reqBucket *TokenBucket
	tokWindow *SlidingWindowCounter
	tokBucket *TokenBucket

	// mu serializes check-then-consume so concurrent Acquire calls cannot
	// both pass admission for capacity that only exists once.
	mu sync.Mutex
}

// NewLimiter creates a limiter from the given configuration. Optional fields
// are defaulted (BurstLimit to RequestsPerMinute, WindowSize to one minute).
func NewLimiter(config Config) *Limiter {
	return NewProviderLimiter("", config)
}

// NewProviderLimiter creates a limiter whose rejections carry the provider
// name. The Manager uses this for every registered provider.
func NewProviderLimiter(provider string, config Config) *Limiter {
	config = config.withDefaults()

	l := &Limiter{
		provider: provider,
		config:   config,
	}

	if config.EnableSlidingWindow {
		l.reqWindow = NewSlidingWindowCounter(int64(config.RequestsPerMinute), config.WindowSize)
		l.tokWindow = NewSlidingWindowCounter(int64(config.TokensPerMinute), config.WindowSize)
	}

	if config.EnableTokenBucket {
		perSecond := config.WindowSize.Seconds()
		l.reqBucket = NewTokenBucket(int64(config.BurstLimit), float64(config.RequestsPerMinute)/perSecond)
		l.tokBucket = NewTokenBucket(int64(config.TokensPerMinute), float64(config.TokensPerMinute)/perSecond)
	}

	return l
}

// Config returns the normalized configuration the limiter was built from.
func (l *Limiter) Config() Config {
	return l.config
}

// Check reports whether info would be admitted right now, without consuming
// any capacity.
func (l *Limiter) Check(info RequestInfo) CheckResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkLocked(info)
}

// Acquire admits info and commits its consumption on every enabled
// mechanism, or fails with a *RateLimitError carrying the retry delay.
//
// Admission and consumption are atomic with respect to concurrent Acquire
// and Check calls on this limiter.
func (l *Limiter) Acquire(ctx context.Context, info RequestInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	result := l.checkLocked(info)
	if !result.Allowed {
		return l.rejectionLocked(result, info)
	}

	// Commit consumption. The check above ran under the same lock, so the
	// capacity is still there.
	if l.reqWindow != nil {
		l.reqWindow.Add(1)
		l.tokWindow.Add(int64(info.EstimatedTokens))
	}
	if l.reqBucket != nil {
		l.reqBucket.Take(1)
		l.tokBucket.Take(int64(info.EstimatedTokens))
	}

	return nil
}

// Status reports remaining capacity and the next reset time. Sliding window
// figures are preferred when that mechanism is enabled, with the token bucket
// as fallback.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	var s Status

	switch {
	case l.reqWindow != nil:
		s.RequestsRemaining = l.reqWindow.Remaining()
		s.TokensRemaining = l.tokWindow.Remaining()
		s.Reset = l.reqWindow.ResetTime()
	case l.reqBucket != nil:
		s.RequestsRemaining = l.reqBucket.Remaining()
		s.TokensRemaining = l.tokBucket.Remaining()
		s.Reset = time.Now().Add(l.reqBucket.TimeUntil(l.reqBucket.Capacity()))
	default:
		// Both mechanisms disabled: nothing is ever limited.
		s.RequestsRemaining = int64(l.config.RequestsPerMinute)
		s.TokensRemaining = int64(l.config.TokensPerMinute)
		s.Reset = time.Now()
	}

	if s.RequestsRemaining == 0 {
		s.RetryAfter = l.retryAfterLocked(DimensionRequests, 1)
	} else if s.TokensRemaining == 0 {
		s.RetryAfter = l.retryAfterLocked(DimensionTokens, 1)
	}

	return s
}

// Reset clears all accumulated usage. This is primarily for testing.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.reqWindow != nil {
		l.reqWindow.Reset()
		l.tokWindow.Reset()
	}
	if l.reqBucket != nil {
		l.reqBucket.Reset()
		l.tokBucket.Reset()
	}
}

// checkLocked runs the ordered admission checks. Caller must hold the lock.
func (l *Limiter) checkLocked(info RequestInfo) CheckResult {
	tokens := int64(info.EstimatedTokens)

	if l.reqWindow != nil && !l.reqWindow.Allows(1) {
		return CheckResult{
			Reason:    "requests per minute limit exceeded",
			Dimension: DimensionRequests,
		}
	}

	if l.reqBucket != nil && l.reqBucket.Remaining() < 1 {
		return CheckResult{
			Reason:    "request burst limit exceeded",
			Dimension: DimensionRequests,
		}
	}

	if l.tokWindow != nil && !l.tokWindow.Allows(tokens) {
		return CheckResult{
			Reason:    "tokens per minute limit exceeded",
			Dimension: DimensionTokens,
		}
	}

	if l.tokBucket != nil && l.tokBucket.Remaining() < tokens {
		return CheckResult{
			Reason:    "token burst limit exceeded",
			Dimension: DimensionTokens,
		}
	}

	return CheckResult{Allowed: true}
}

// rejectionLocked builds the structured error for a failed check.
// Caller must hold the lock.
func (l *Limiter) rejectionLocked(result CheckResult, info RequestInfo) error {
	needed := int64(1)
	if result.Dimension == DimensionTokens {
		needed = int64(info.EstimatedTokens)
	}

	scope := ScopePerMinute
	window := l.windowFor(result.Dimension)
	bucket := l.bucketFor(result.Dimension)
	if window != nil && window.Allows(needed) {
		// The window admitted it, so the bucket was the failing mechanism.
		scope = ScopeBurst
	} else if window == nil && bucket != nil {
		scope = ScopeBurst
	}

	var reset time.Time
	if window != nil {
		reset = window.ResetTime()
	} else {
		reset = time.Now().Add(l.retryAfterLocked(result.Dimension, needed))
	}

	return &RateLimitError{
		Provider:   l.provider,
		Dimension:  result.Dimension,
		Scope:      scope,
		RetryAfter: l.retryAfterLocked(result.Dimension, needed),
		Reset:      reset,
	}
}

// retryAfterLocked computes the retry delay for a rejected dimension: the
// maximum of the window reset delta and the bucket refill time across the
// active mechanisms, floored at one second. Caller must hold the lock.
func (l *Limiter) retryAfterLocked(dim Dimension, needed int64) time.Duration {
	delay := minRetryAfter

	if window := l.windowFor(dim); window != nil && !window.Allows(needed) {
		if until := time.Until(window.ResetTime()); until > delay {
			delay = until
		}
	}

	if bucket := l.bucketFor(dim); bucket != nil {
		if until := bucket.TimeUntil(needed); until > delay {
			delay = until
		}
	}

	return delay
}

func (l *Limiter) windowFor(dim Dimension) *SlidingWindowCounter {
	if dim == DimensionTokens {
		return l.tokWindow
	}
	return l.reqWindow
}

func (l *Limiter) bucketFor(dim Dimension) *TokenBucket {
	if dim == DimensionTokens {
		return l.tokBucket
	}
	return l.reqBucket
}
