package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/admission/ratelimit"
)

// queuedRequest wraps a RequestInfo with its completion handle and timer
// bookkeeping. It is owned exclusively by the queue that holds it: it moves
// between a bucket, the retry table and the in-flight set, but is never
// duplicated.
type queuedRequest struct {
	info         ratelimit.RequestInfo
	level        int
	enqueuedAt   time.Time
	dispatchedAt time.Time
	retries      int
	timer        *time.Timer

	// done carries the final outcome to the waiting caller: nil when the
	// request is dispatched, an error when it fails. Buffered so the
	// resolver never blocks.
	done chan error

	// resolved guards against double resolution. Written under the queue
	// lock only.
	resolved bool
}

// retryEntry tracks a request sitting out its backoff delay.
type retryEntry struct {
	qr    *queuedRequest
	timer *time.Timer
}

// Queue is a priority admission buffer in front of a limited-concurrency
// pipeline. See the package documentation for semantics.
type Queue struct {
	config Config
	admit  AdmitFunc
	events Events
	logger *slog.Logger

	mu       sync.Mutex
	buckets  [][]*queuedRequest
	inflight map[string]*queuedRequest
	retrying map[string]*retryEntry
	paused   bool
	started  time.Time

	// Running counters, guarded by mu.
	enqueued          int64
	dispatched        int64
	completed         int64
	failed            int64
	timedOut          int64
	dropped           int64
	retried           int64
	totalWait         time.Duration
	waitSamples       int64
	totalProcessing   time.Duration
	processingSamples int64
}

// New creates a queue. admit gates every dispatched request (typically a
// rate limiter's Acquire); nil admits everything.
func New(config Config, admit AdmitFunc) *Queue {
	config = config.withDefaults()
	return &Queue{
		config:   config,
		admit:    admit,
		events:   NopEvents{},
		logger:   slog.Default().With("component", "admission.queue"),
		buckets:  make([][]*queuedRequest, config.PriorityLevels),
		inflight: make(map[string]*queuedRequest),
		retrying: make(map[string]*retryEntry),
		started:  time.Now(),
	}
}

// SetEvents installs an event listener. Call before the queue is in use.
func (q *Queue) SetEvents(ev Events) {
	if ev != nil {
		q.events = ev
	}
}

// SetLogger replaces the queue's logger. Call before the queue is in use.
func (q *Queue) SetLogger(logger *slog.Logger) {
	if logger != nil {
		q.logger = logger
	}
}

// Enqueue submits info and blocks until the request is dispatched or fails.
//
// On success the returned ReleaseFunc must be called when the admitted work
// finishes; it frees the concurrency slot. On failure the error is one of
// ErrQueueFull, *TimeoutError, *DroppedError, *RetriesExceededError,
// ErrQueueCleared, or the caller's context error.
func (q *Queue) Enqueue(ctx context.Context, info ratelimit.RequestInfo) (ReleaseFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	level := clampLevel(info.Priority, q.config.PriorityLevels)

	q.mu.Lock()
	if q.sizeLocked() >= q.config.MaxSize {
		var victim *queuedRequest
		if q.config.EnableBackpressure {
			victim = q.evictOldestLocked()
		}
		q.mu.Unlock()

		if victim != nil {
			victim.done <- &DroppedError{RequestID: victim.info.ID, Level: victim.level}
			q.events.RequestDropped(victim.info)
			q.logger.Warn("request dropped under backpressure",
				"request_id", victim.info.ID,
				"level", victim.level,
			)
		}

		// The eviction frees a slot for the next enqueue, not this one.
		return nil, ErrQueueFull
	}

	qr := &queuedRequest{
		info:       info,
		level:      level,
		enqueuedAt: time.Now(),
		done:       make(chan error, 1),
	}
	qr.timer = time.AfterFunc(q.config.Timeout, func() { q.onTimeout(qr) })
	q.buckets[level] = append(q.buckets[level], qr)
	q.enqueued++
	q.mu.Unlock()

	q.events.RequestEnqueued(info, level)
	q.dispatch()

	select {
	case err := <-qr.done:
		if err != nil {
			return nil, err
		}
		return q.releaseFunc(qr), nil

	case <-ctx.Done():
		if q.abandon(qr) {
			return nil, ctx.Err()
		}
		// The request was resolved concurrently; honor that outcome.
		err := <-qr.done
		if err != nil {
			return nil, err
		}
		// Dispatched just as the caller gave up: free the slot now.
		q.releaseFunc(qr)()
		return nil, ctx.Err()
	}
}

// Clear rejects every queued request with ErrQueueCleared and empties all
// buckets, retry bookkeeping and in-flight tracking.
func (q *Queue) Clear() {
	q.mu.Lock()

	var victims []*queuedRequest
	for level := range q.buckets {
		for _, qr := range q.buckets[level] {
			qr.timer.Stop()
			qr.resolved = true
			victims = append(victims, qr)
		}
		q.buckets[level] = nil
	}
	for id, entry := range q.retrying {
		entry.timer.Stop()
		entry.qr.resolved = true
		victims = append(victims, entry.qr)
		delete(q.retrying, id)
	}
	q.inflight = make(map[string]*queuedRequest)
	q.mu.Unlock()

	for _, qr := range victims {
		qr.done <- ErrQueueCleared
	}
	q.events.QueueCleared(len(victims))
	q.logger.Info("queue cleared", "rejected", len(victims))
}

// Pause suspends dispatching. Requests keep accumulating (and timing out).
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
	q.events.QueuePaused()
}

// Resume lifts a pause and re-triggers dispatching.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.events.QueueResumed()
	q.dispatch()
}

// Position returns the request's 0-based place in dispatch order, or false
// if it is not currently queued. Read-only.
func (q *Queue) Position(requestID string) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	position := 0
	for level := len(q.buckets) - 1; level >= 0; level-- {
		for _, qr := range q.buckets[level] {
			if qr.info.ID == requestID {
				return position, true
			}
			position++
		}
	}
	return 0, false
}

// Status returns the queue's current occupancy. Read-only.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	levels := make([]int, len(q.buckets))
	size := 0
	for i, bucket := range q.buckets {
		levels[i] = len(bucket)
		size += len(bucket)
	}

	return Status{
		Levels:   levels,
		Size:     size,
		InFlight: len(q.inflight),
		Paused:   q.paused,
	}
}

// Metrics returns a snapshot of the running counters. Read-only.
func (q *Queue) Metrics() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()

	m := Metrics{
		Enqueued:   q.enqueued,
		Dispatched: q.dispatched,
		Completed:  q.completed,
		Failed:     q.failed,
		TimedOut:   q.timedOut,
		Dropped:    q.dropped,
		Retried:    q.retried,
	}
	if q.waitSamples > 0 {
		m.AvgWait = q.totalWait / time.Duration(q.waitSamples)
	}
	if q.processingSamples > 0 {
		m.AvgProcessing = q.totalProcessing / time.Duration(q.processingSamples)
	}
	if elapsed := time.Since(q.started).Seconds(); elapsed > 0 {
		m.Throughput = float64(q.completed) / elapsed
	}
	return m
}

// dispatch drains the buckets while concurrency slots remain. It is invoked
// after every state change that can unblock a request: enqueue, release,
// retry re-insertion and resume.
func (q *Queue) dispatch() {
	for {
		q.mu.Lock()
		if q.paused || len(q.inflight) >= q.config.Concurrency {
			q.mu.Unlock()
			return
		}
		qr := q.popLocked()
		if qr == nil {
			q.mu.Unlock()
			return
		}
		qr.timer.Stop()
		// Reserve the slot before admission so concurrent dispatchers
		// cannot oversubscribe the concurrency bound.
		q.inflight[qr.info.ID] = qr
		q.mu.Unlock()

		var err error
		if q.admit != nil {
			err = q.admit(context.Background(), qr.info)
		}
		if err != nil {
			q.handleRejection(qr, err)
			continue
		}

		q.mu.Lock()
		wait := time.Since(qr.enqueuedAt)
		qr.dispatchedAt = time.Now()
		qr.resolved = true
		q.dispatched++
		q.totalWait += wait
		q.waitSamples++
		q.mu.Unlock()

		qr.done <- nil
		q.events.RequestDispatched(qr.info, wait)
	}
}

// handleRejection processes an admitter rejection: exponential-backoff
// re-insertion at the front of the request's bucket, or terminal failure
// once retries are exhausted.
func (q *Queue) handleRejection(qr *queuedRequest, admitErr error) {
	q.mu.Lock()
	delete(q.inflight, qr.info.ID)

	qr.retries++
	if qr.retries > q.config.MaxRetries {
		qr.resolved = true
		q.failed++
		attempts := qr.retries
		q.mu.Unlock()

		failErr := &RetriesExceededError{
			RequestID: qr.info.ID,
			Attempts:  attempts,
			Err:       admitErr,
		}
		qr.done <- failErr
		q.events.RequestFailed(qr.info, failErr)
		q.logger.Warn("request failed after retries",
			"request_id", qr.info.ID,
			"attempts", attempts,
			"error", admitErr,
		)
		return
	}

	attempt := qr.retries
	delay := q.config.RetryDelay * time.Duration(1<<(attempt-1))
	entry := &retryEntry{qr: qr}
	entry.timer = time.AfterFunc(delay, func() { q.reinsert(qr) })
	q.retrying[qr.info.ID] = entry
	q.retried++
	q.mu.Unlock()

	q.events.RequestRetried(qr.info, attempt, delay)
	q.logger.Debug("request re-queued after rejection",
		"request_id", qr.info.ID,
		"attempt", attempt,
		"delay", delay,
	)
}

// reinsert puts a request whose backoff elapsed back at the front of its
// bucket and re-arms its timeout.
func (q *Queue) reinsert(qr *queuedRequest) {
	q.mu.Lock()
	delete(q.retrying, qr.info.ID)
	if qr.resolved {
		// Cleared or abandoned while waiting out the backoff.
		q.mu.Unlock()
		return
	}
	q.buckets[qr.level] = append([]*queuedRequest{qr}, q.buckets[qr.level]...)
	qr.timer = time.AfterFunc(q.config.Timeout, func() { q.onTimeout(qr) })
	q.mu.Unlock()

	q.dispatch()
}

// onTimeout fires when a request's timer expires. Removal here and removal
// at dispatch are mutually exclusive: both happen under the lock, keyed by
// the request's bucket membership.
func (q *Queue) onTimeout(qr *queuedRequest) {
	q.mu.Lock()
	if qr.resolved || !q.removeLocked(qr) {
		q.mu.Unlock()
		return
	}
	qr.resolved = true
	q.timedOut++
	waited := time.Since(qr.enqueuedAt)
	q.mu.Unlock()

	qr.done <- &TimeoutError{RequestID: qr.info.ID, Waited: waited}
	q.events.RequestTimedOut(qr.info)
}

// abandon detaches a request whose caller's context ended. Returns true if
// this call resolved the request; false means a concurrent resolution is in
// flight and the caller must consume qr.done instead.
func (q *Queue) abandon(qr *queuedRequest) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if qr.resolved {
		return false
	}
	if q.removeLocked(qr) {
		qr.timer.Stop()
		qr.resolved = true
		return true
	}
	if entry, ok := q.retrying[qr.info.ID]; ok && entry.qr == qr {
		entry.timer.Stop()
		delete(q.retrying, qr.info.ID)
		qr.resolved = true
		return true
	}
	return false
}

// releaseFunc builds the one-shot release closure handed to an admitted
// caller.
func (q *Queue) releaseFunc(qr *queuedRequest) ReleaseFunc {
	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			delete(q.inflight, qr.info.ID)
			processing := time.Since(qr.dispatchedAt)
			q.completed++
			q.totalProcessing += processing
			q.processingSamples++
			q.mu.Unlock()

			q.events.RequestCompleted(qr.info, processing)
			q.dispatch()
		})
	}
}

// popLocked removes and returns the front of the highest non-empty bucket.
// Caller must hold the lock.
func (q *Queue) popLocked() *queuedRequest {
	for level := len(q.buckets) - 1; level >= 0; level-- {
		if len(q.buckets[level]) > 0 {
			qr := q.buckets[level][0]
			q.buckets[level] = q.buckets[level][1:]
			return qr
		}
	}
	return nil
}

// evictOldestLocked removes the oldest request from the lowest non-empty
// bucket and marks it resolved. Caller must hold the lock and deliver the
// DroppedError after unlocking.
func (q *Queue) evictOldestLocked() *queuedRequest {
	for level := 0; level < len(q.buckets); level++ {
		if len(q.buckets[level]) > 0 {
			qr := q.buckets[level][0]
			q.buckets[level] = q.buckets[level][1:]
			qr.timer.Stop()
			qr.resolved = true
			q.dropped++
			return qr
		}
	}
	return nil
}

// removeLocked removes qr from its bucket by identity. Caller must hold the
// lock. Returns false if qr is not queued (already dispatched, evicted, or
// waiting out a retry backoff).
func (q *Queue) removeLocked(qr *queuedRequest) bool {
	bucket := q.buckets[qr.level]
	for i, candidate := range bucket {
		if candidate == qr {
			q.buckets[qr.level] = append(bucket[:i:i], bucket[i+1:]...)
			return true
		}
	}
	return false
}

// sizeLocked returns the total queued count. Caller must hold the lock.
func (q *Queue) sizeLocked() int {
	size := 0
	for _, bucket := range q.buckets {
		size += len(bucket)
	}
	return size
}

// clampLevel clamps a request priority into [0, levels-1].
func clampLevel(priority, levels int) int {
	if priority < 0 {
		return 0
	}
	if priority >= levels {
		return levels - 1
	}
	return priority
}
