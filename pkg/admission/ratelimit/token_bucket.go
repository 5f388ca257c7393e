package ratelimit

import (
	"math"
	"sync"
	"time"
)

// TokenBucket implements the token bucket rate limiting algorithm.
//
// The bucket allows bursts up to its capacity while maintaining an average
// rate over time. Tokens accrue continuously at the refill rate; each request
// consumes one or more tokens. If insufficient tokens are available the
// request is rejected and the bucket is unchanged apart from the refill.
//
// This implementation uses monotonic time to avoid clock skew issues. Tokens
// are tracked as a float64 so sub-second refill fractions are never lost.
//
// # Algorithm
//
//  1. Calculate tokens to add based on elapsed time since last refill
//  2. Add tokens (up to capacity)
//  3. Check if enough tokens are available for the request
//  4. If yes: consume tokens and allow the request
//  5. If no: reject the request
//
// # Thread Safety
//
// TokenBucket is thread-safe using sync.Mutex for all operations.
type TokenBucket struct {
	capacity   float64   // Maximum tokens in bucket
	tokens     float64   // Current available tokens
	refillRate float64   // Tokens added per second
	lastRefill time.Time // Last time tokens were refilled
	mu         sync.Mutex
}

// NewTokenBucket creates a new token bucket rate limiter.
//
// Parameters:
//   - capacity: Maximum number of tokens in the bucket (burst size)
//   - refillRate: Number of tokens added per second (average rate)
//
// Example:
//
//	// 100 requests/min average, burst up to 100
//	bucket := NewTokenBucket(100, 100.0/60.0)
func NewTokenBucket(capacity int64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity), // Start with full bucket
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Take attempts to consume n tokens from the bucket.
// Returns true if tokens were available and consumed, false otherwise.
//
// The refill based on elapsed time always happens, whether or not the
// consumption succeeds.
func (tb *TokenBucket) Take(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()

	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return true
	}

	return false
}

// Remaining returns the number of whole tokens currently available,
// after accounting for refill.
func (tb *TokenBucket) Remaining() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	return int64(tb.tokens)
}

// Capacity returns the maximum bucket capacity.
func (tb *TokenBucket) Capacity() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return int64(tb.capacity)
}

// Reset refills the bucket to full capacity.
// This is useful for testing or manual limit resets.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

// TimeUntil returns how long until n tokens will be available.
// Returns 0 if the tokens are immediately available.
func (tb *TokenBucket) TimeUntil(n int64) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()

	if tb.tokens >= float64(n) {
		return 0
	}

	if tb.refillRate <= 0 {
		return time.Duration(math.MaxInt64)
	}

	needed := float64(n) - tb.tokens
	seconds := needed / tb.refillRate

	// Round up so callers never retry a hair too early.
	return time.Duration(math.Ceil(seconds*1000)) * time.Millisecond
}

// refillLocked adds tokens based on elapsed time since the last refill.
// Caller must hold the lock.
func (tb *TokenBucket) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}

	tb.tokens += elapsed.Seconds() * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}
