// Package ratelimit implements the dual-mechanism rate limiter used for
// admission control of calls to quota-limited providers.
//
// # Overview
//
// Each provider is governed by a Limiter that combines two mechanisms across
// two dimensions (requests and tokens):
//
//   - Token Bucket: continuous-refill burst allowance
//   - Sliding Window Counter: fixed per-window quota with two-window smoothing
//
// When both mechanisms are enabled the Limiter owns four instances (requests
// and tokens, each with a bucket and a window). A request is admitted only if
// every enabled mechanism admits it; admission and consumption happen
// atomically under the Limiter's lock.
//
//	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig(60, 100000))
//	if err := limiter.Acquire(ctx, info); err != nil {
//	    var rlErr *ratelimit.RateLimitError
//	    if errors.As(err, &rlErr) {
//	        // Wait rlErr.RetryAfter before retrying
//	    }
//	}
//
// # Token Bucket Algorithm
//
// The token bucket refills at a constant rate derived from the per-minute
// quota and allows bursts up to its capacity:
//
//	bucket := ratelimit.NewTokenBucket(100, 100.0/60.0) // 100 burst, 100/min
//	if bucket.Take(1) {
//	    // Request allowed
//	}
//
// # Sliding Window Counter
//
// The sliding window counter approximates a true rolling window in O(1)
// storage by blending the current fixed window with the immediately preceding
// one, weighted by how much of the current window remains:
//
//	usage = currentWindowCount + previousWindowCount * weight
//
// where weight is the fraction of the current window not yet elapsed.
//
// # Thread Safety
//
// All types in this package are thread-safe. The Limiter serializes its
// check-then-consume sequence so that concurrent Acquire calls can never both
// pass admission for capacity that only exists once.
package ratelimit
