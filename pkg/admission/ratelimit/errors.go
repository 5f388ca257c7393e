package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimitExceeded is the sentinel all rate limit rejections unwrap to.
// Callers should match it with errors.Is and recover the structured details
// with errors.As on *RateLimitError.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RateLimitError reports a rejected acquisition with enough context for the
// caller to schedule a retry. It is always recoverable by waiting RetryAfter.
type RateLimitError struct {
	// Provider is the provider whose limit was hit (empty for unnamed limiters).
	Provider string

	// Dimension is the resource dimension that was exhausted.
	Dimension Dimension

	// Scope identifies the mechanism that rejected the request.
	Scope Scope

	// RetryAfter is the minimum wait before a retry can succeed.
	RetryAfter time.Duration

	// Reset is when the limiting window rolls over.
	Reset time.Time
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("rate limit exceeded [provider=%s, dimension=%s, scope=%s]: retry after %s",
			e.Provider, e.Dimension, e.Scope, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded [dimension=%s, scope=%s]: retry after %s",
		e.Dimension, e.Scope, e.RetryAfter)
}

// Unwrap returns ErrRateLimitExceeded so errors.Is matching works.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimitExceeded
}
