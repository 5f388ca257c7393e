package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindowCounter enforces a fixed quota per window with smoothing
// across window boundaries.
//
// Usage is accounted against fixed windows keyed by their start timestamp
// (rounded down to a window boundary). The reported usage blends the current
// window with the immediately preceding one:
//
//	usage = currentCount + previousCount * weight
//
// where weight is the fraction of the current window not yet elapsed. This
// approximates a true sliding window in O(1) storage and avoids the reset
// spike of a plain fixed window.
//
// # Memory Efficiency
//
// Only the current and previous windows are ever meaningful. Keys older than
// twice the window size are purged on every call, so the map holds a constant
// number of live entries regardless of call volume.
//
// # Thread Safety
//
// SlidingWindowCounter is thread-safe using sync.Mutex.
type SlidingWindowCounter struct {
	limit      int64           // Maximum weighted usage per window
	windowSize time.Duration   // Window duration
	counts     map[int64]int64 // Window start (unix ms) -> accumulated count
	mu         sync.Mutex
}

// NewSlidingWindowCounter creates a new sliding window counter.
//
// Parameters:
//   - limit: Maximum weighted usage allowed per window
//   - windowSize: Window duration (e.g., one minute)
func NewSlidingWindowCounter(limit int64, windowSize time.Duration) *SlidingWindowCounter {
	if windowSize <= 0 {
		windowSize = time.Minute
	}
	return &SlidingWindowCounter{
		limit:      limit,
		windowSize: windowSize,
		counts:     make(map[int64]int64),
	}
}

// TryIncrement records amount against the current window iff the weighted
// usage plus amount stays within the limit. Returns true if recorded.
//
// Calling with amount=0 is a pure admission probe: it reports whether the
// window has any headroom without recording anything.
func (sw *SlidingWindowCounter) TryIncrement(amount int64) bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.pruneLocked(now)

	if sw.usageLocked(now)+float64(amount) > float64(sw.limit) {
		return false
	}

	if amount > 0 {
		sw.counts[sw.windowStart(now)] += amount
	}
	return true
}

// Add records amount against the current window unconditionally. It is the
// commit half of a check-then-consume sequence the caller has already
// serialized; use TryIncrement when the check and the record must be one call.
func (sw *SlidingWindowCounter) Add(amount int64) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.pruneLocked(now)
	sw.counts[sw.windowStart(now)] += amount
}

// Allows reports whether amount more usage would fit within the limit.
// Like TryIncrement(0) it records nothing, but it tests the actual amount.
func (sw *SlidingWindowCounter) Allows(amount int64) bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.pruneLocked(now)
	return sw.usageLocked(now)+float64(amount) <= float64(sw.limit)
}

// Remaining returns the unused capacity in the current window, floored at 0.
func (sw *SlidingWindowCounter) Remaining() int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.pruneLocked(now)

	remaining := float64(sw.limit) - sw.usageLocked(now)
	if remaining < 0 {
		return 0
	}
	return int64(remaining)
}

// ResetTime returns the start of the next window boundary.
func (sw *SlidingWindowCounter) ResetTime() time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	start := sw.windowStart(time.Now())
	return time.UnixMilli(start).Add(sw.windowSize)
}

// Limit returns the configured per-window limit.
func (sw *SlidingWindowCounter) Limit() int64 {
	return sw.limit
}

// Reset clears all recorded usage.
func (sw *SlidingWindowCounter) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.counts = make(map[int64]int64)
}

// usageLocked computes the weighted usage at now. Caller must hold the lock.
func (sw *SlidingWindowCounter) usageLocked(now time.Time) float64 {
	current := sw.windowStart(now)
	previous := current - sw.windowSize.Milliseconds()

	elapsed := float64(now.UnixMilli()-current) / float64(sw.windowSize.Milliseconds())
	weight := 1.0 - elapsed

	return float64(sw.counts[current]) + float64(sw.counts[previous])*weight
}

// pruneLocked drops window keys older than two window sizes.
// Caller must hold the lock.
func (sw *SlidingWindowCounter) pruneLocked(now time.Time) {
	cutoff := now.UnixMilli() - 2*sw.windowSize.Milliseconds()
	for start := range sw.counts {
		if start < cutoff {
			delete(sw.counts, start)
		}
	}
}

// windowStart rounds t down to a window boundary in unix milliseconds.
func (sw *SlidingWindowCounter) windowStart(t time.Time) int64 {
	size := sw.windowSize.Milliseconds()
	return (t.UnixMilli() / size) * size
}
