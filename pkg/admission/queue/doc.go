// Package queue implements the priority request queue that buffers work in
// front of a limited-concurrency admission pipeline.
//
// # Overview
//
// Requests that cannot run immediately wait in one of N priority buckets
// (bucket N-1 is the most urgent). Dispatch is strict priority with FIFO
// order inside a bucket. The queue's sole throttling contract beyond the
// rate limiter's admission decision is its concurrency bound: at most
// Concurrency requests are in flight at once.
//
//	q := queue.New(queue.DefaultConfig(), limiter.Acquire)
//	release, err := q.Enqueue(ctx, info)
//	if err != nil {
//	    return err // full, timed out, dropped, or retries exhausted
//	}
//	defer release()
//	// ... perform the admitted work ...
//
// Enqueue blocks the caller until the request is dispatched (the returned
// release function frees its concurrency slot) or until it fails with one of
// the queue's typed errors.
//
// # Retry and Timeout
//
// When the admitter rejects a dispatched request the queue re-inserts it at
// the front of its bucket after an exponential backoff
// (RetryDelay * 2^(attempt-1)), up to MaxRetries attempts; afterwards the
// caller fails with *RetriesExceededError wrapping the last rejection. Every
// queued request carries a timeout timer; if it fires before dispatch the
// request is removed from its bucket and the caller fails with
// *TimeoutError. Removal-on-dispatch and removal-on-timeout are mutually
// exclusive outcomes, keyed by request identity under the queue lock.
//
// # Backpressure
//
// With EnableBackpressure set, an enqueue against a full queue first evicts
// the oldest request from the lowest non-empty bucket (failing that caller
// with *DroppedError) and then still rejects the new arrival with
// ErrQueueFull; the freed slot serves the next enqueue, not this one.
//
// # Thread Safety
//
// All operations are safe for concurrent use. Buckets, the in-flight set and
// timer bookkeeping are guarded by a single mutex; the admitter is always
// invoked outside it.
package queue
