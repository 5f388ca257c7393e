package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/admission/ratelimit"
)

func testConfig() Config {
	return Config{
		MaxSize:        10,
		Concurrency:    1,
		MaxRetries:     2,
		RetryDelay:     10 * time.Millisecond,
		Timeout:        time.Second,
		PriorityLevels: 2,
	}
}

func req(id string, priority int) ratelimit.RequestInfo {
	return ratelimit.RequestInfo{ID: id, EstimatedTokens: 1, Priority: priority}
}

// ============================================================================
// Dispatch Ordering Tests
// ============================================================================

func TestQueue_PriorityOrdering(t *testing.T) {
	q := New(testConfig(), nil)
	q.Pause()

	order := make(chan string, 2)
	var wg sync.WaitGroup
	enqueue := func(id string, priority int) {
		defer wg.Done()
		release, err := q.Enqueue(context.Background(), req(id, priority))
		if err != nil {
			t.Errorf("Enqueue %s failed: %v", id, err)
			return
		}
		order <- id
		release()
	}

	wg.Add(2)
	go enqueue("low", 0)
	// Make sure "low" is queued before "high" so ordering is priority,
	// not arrival.
	waitForSize(t, q, 1)
	go enqueue("high", 1)
	waitForSize(t, q, 2)

	q.Resume()
	wg.Wait()
	close(order)

	first := <-order
	if first != "high" {
		t.Errorf("Expected level-1 request released first, got %q", first)
	}
}

func TestQueue_FIFOWithinBucket(t *testing.T) {
	q := New(testConfig(), nil)
	q.Pause()

	order := make(chan string, 3)
	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c"} {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := q.Enqueue(context.Background(), req(id, 0))
			if err != nil {
				t.Errorf("Enqueue %s failed: %v", id, err)
				return
			}
			order <- id
			release()
		}()
		waitForID(t, q, id)
	}

	q.Resume()
	wg.Wait()
	close(order)

	want := []string{"a", "b", "c"}
	i := 0
	for id := range order {
		if id != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], id)
		}
		i++
	}
}

func TestQueue_PriorityClamped(t *testing.T) {
	q := New(testConfig(), nil)
	q.Pause()

	done := make(chan struct{})
	go func() {
		defer close(done)
		release, err := q.Enqueue(context.Background(), req("wild", 99))
		if err != nil {
			t.Errorf("Enqueue failed: %v", err)
			return
		}
		release()
	}()
	waitForID(t, q, "wild")

	status := q.Status()
	if status.Levels[1] != 1 {
		t.Errorf("Expected out-of-range priority clamped into top bucket, got %v", status.Levels)
	}

	q.Resume()
	<-done
}

// ============================================================================
// Capacity and Backpressure Tests
// ============================================================================

func TestQueue_FullWithoutBackpressure(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSize = 1
	q := New(cfg, nil)
	q.Pause()

	go func() {
		release, err := q.Enqueue(context.Background(), req("first", 0))
		if err == nil {
			release()
		}
	}()
	waitForSize(t, q, 1)

	_, err := q.Enqueue(context.Background(), req("second", 0))
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}

	q.Clear()
}

func TestQueue_BackpressureEvictsOldestButStillRejects(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSize = 1
	cfg.EnableBackpressure = true
	q := New(cfg, nil)
	q.Pause()

	firstErr := make(chan error, 1)
	go func() {
		_, err := q.Enqueue(context.Background(), req("victim", 0))
		firstErr <- err
	}()
	waitForSize(t, q, 1)

	// The new arrival is still rejected; the freed slot serves the NEXT
	// enqueue. (This asymmetry is deliberate: the eviction does not admit
	// the arrival that triggered it.)
	_, err := q.Enqueue(context.Background(), req("arrival", 0))
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull for the triggering arrival, got %v", err)
	}

	// The evicted caller sees a backpressure drop.
	select {
	case err := <-firstErr:
		if !errors.Is(err, ErrDropped) {
			t.Errorf("Expected ErrDropped for the evicted request, got %v", err)
		}
		var dropErr *DroppedError
		if !errors.As(err, &dropErr) || dropErr.RequestID != "victim" {
			t.Errorf("Expected DroppedError for victim, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Evicted caller never resolved")
	}

	// The slot is free again for a subsequent enqueue.
	done := make(chan error, 1)
	go func() {
		release, err := q.Enqueue(context.Background(), req("next", 0))
		if err == nil {
			release()
		}
		done <- err
	}()
	waitForSize(t, q, 1)
	q.Resume()
	if err := <-done; err != nil {
		t.Errorf("Expected post-eviction enqueue to succeed, got %v", err)
	}

	if m := q.Metrics(); m.Dropped != 1 {
		t.Errorf("Expected 1 dropped, got %d", m.Dropped)
	}
}

func TestQueue_BackpressureEvictsLowestPriority(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSize = 2
	cfg.EnableBackpressure = true
	q := New(cfg, nil)
	q.Pause()

	results := make(map[string]chan error)
	for _, r := range []struct {
		id    string
		level int
	}{{"low", 0}, {"high", 1}} {
		ch := make(chan error, 1)
		results[r.id] = ch
		r := r
		go func() {
			_, err := q.Enqueue(context.Background(), req(r.id, r.level))
			ch <- err
		}()
		waitForID(t, q, r.id)
	}

	_, err := q.Enqueue(context.Background(), req("arrival", 1))
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}

	// The low-priority request was the victim, not the high one.
	select {
	case err := <-results["low"]:
		if !errors.Is(err, ErrDropped) {
			t.Errorf("Expected low-priority request dropped, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Low-priority caller never resolved")
	}

	select {
	case err := <-results["high"]:
		t.Errorf("High-priority request resolved unexpectedly: %v", err)
	case <-time.After(50 * time.Millisecond):
		// Still queued, as expected.
	}

	q.Clear()
}

// ============================================================================
// Timeout Tests
// ============================================================================

func TestQueue_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	q := New(cfg, nil)
	q.Pause()

	_, err := q.Enqueue(context.Background(), req("stuck", 0))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}

	var toErr *TimeoutError
	if !errors.As(err, &toErr) {
		t.Fatalf("Expected *TimeoutError, got %T", err)
	}
	if toErr.RequestID != "stuck" {
		t.Errorf("Expected request id in error, got %q", toErr.RequestID)
	}
	if toErr.Waited < 50*time.Millisecond {
		t.Errorf("Reported wait shorter than the timeout: %v", toErr.Waited)
	}

	// The timed-out request left no residue.
	if status := q.Status(); status.Size != 0 {
		t.Errorf("Expected empty queue after timeout, size=%d", status.Size)
	}
	if m := q.Metrics(); m.TimedOut != 1 {
		t.Errorf("Expected 1 timed out, got %d", m.TimedOut)
	}
}

// ============================================================================
// Retry Tests
// ============================================================================

func TestQueue_RetriesExhausted(t *testing.T) {
	admitErr := errors.New("quota exhausted")
	var attempts atomic.Int64
	admit := func(ctx context.Context, info ratelimit.RequestInfo) error {
		attempts.Add(1)
		return admitErr
	}

	cfg := testConfig()
	cfg.MaxRetries = 2
	cfg.RetryDelay = 5 * time.Millisecond
	q := New(cfg, admit)

	_, err := q.Enqueue(context.Background(), req("doomed", 0))
	if !errors.Is(err, ErrMaxRetries) {
		t.Fatalf("Expected ErrMaxRetries, got %v", err)
	}
	if !errors.Is(err, admitErr) {
		t.Errorf("Expected the last rejection in the chain, got %v", err)
	}

	var rexErr *RetriesExceededError
	if !errors.As(err, &rexErr) {
		t.Fatalf("Expected *RetriesExceededError, got %T", err)
	}
	if rexErr.Attempts != 3 {
		t.Errorf("Expected 3 attempts (1 + 2 retries), got %d", rexErr.Attempts)
	}

	// Never admitted a MaxRetries+1'th retry.
	if got := attempts.Load(); got != 3 {
		t.Errorf("Expected exactly 3 admit calls, got %d", got)
	}
	if m := q.Metrics(); m.Failed != 1 || m.Retried != 2 {
		t.Errorf("Expected failed=1 retried=2, got failed=%d retried=%d", m.Failed, m.Retried)
	}
}

func TestQueue_RetrySucceeds(t *testing.T) {
	var attempts atomic.Int64
	admit := func(ctx context.Context, info ratelimit.RequestInfo) error {
		if attempts.Add(1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}

	cfg := testConfig()
	cfg.RetryDelay = 5 * time.Millisecond
	q := New(cfg, admit)

	release, err := q.Enqueue(context.Background(), req("patient", 0))
	if err != nil {
		t.Fatalf("Expected eventual admission, got %v", err)
	}
	release()

	if got := attempts.Load(); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
	if m := q.Metrics(); m.Dispatched != 1 || m.Retried != 2 {
		t.Errorf("Expected dispatched=1 retried=2, got dispatched=%d retried=%d", m.Dispatched, m.Retried)
	}
}

func TestQueue_RetryBackoffIsExponential(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	admit := func(ctx context.Context, info ratelimit.RequestInfo) error {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		return errors.New("rejected")
	}

	cfg := testConfig()
	cfg.MaxRetries = 2
	cfg.RetryDelay = 40 * time.Millisecond
	q := New(cfg, admit)

	_, _ = q.Enqueue(context.Background(), req("slowpoke", 0))

	mu.Lock()
	defer mu.Unlock()
	if len(stamps) != 3 {
		t.Fatalf("Expected 3 attempts, got %d", len(stamps))
	}
	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])
	if first < 40*time.Millisecond {
		t.Errorf("First backoff shorter than base delay: %v", first)
	}
	if second < 80*time.Millisecond {
		t.Errorf("Second backoff shorter than doubled delay: %v", second)
	}
}

// ============================================================================
// Clear / Pause / Resume Tests
// ============================================================================

func TestQueue_ClearRejectsAllPending(t *testing.T) {
	q := New(testConfig(), nil)
	q.Pause()

	const pending = 3
	results := make(chan error, pending)
	for i := 0; i < pending; i++ {
		id := string(rune('a' + i))
		go func() {
			_, err := q.Enqueue(context.Background(), req(id, 0))
			results <- err
		}()
		waitForID(t, q, id)
	}

	q.Clear()

	for i := 0; i < pending; i++ {
		select {
		case err := <-results:
			if !errors.Is(err, ErrQueueCleared) {
				t.Errorf("Expected ErrQueueCleared, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Pending caller never rejected by Clear")
		}
	}

	status := q.Status()
	if status.Size != 0 || status.InFlight != 0 {
		t.Errorf("Expected zero occupancy after clear, got %+v", status)
	}
	for level, count := range status.Levels {
		if count != 0 {
			t.Errorf("Level %d not empty after clear: %d", level, count)
		}
	}
}

func TestQueue_PauseHoldsDispatch(t *testing.T) {
	q := New(testConfig(), nil)
	q.Pause()

	dispatched := make(chan struct{})
	go func() {
		release, err := q.Enqueue(context.Background(), req("held", 0))
		if err == nil {
			close(dispatched)
			release()
		}
	}()
	waitForID(t, q, "held")

	select {
	case <-dispatched:
		t.Fatal("Request dispatched while paused")
	case <-time.After(50 * time.Millisecond):
	}

	q.Resume()

	select {
	case <-dispatched:
	case <-time.After(time.Second):
		t.Fatal("Request not dispatched after resume")
	}
}

// ============================================================================
// Concurrency Tests
// ============================================================================

func TestQueue_ConcurrencyBound(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 2
	cfg.MaxSize = 20
	q := New(cfg, nil)

	var current, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := q.Enqueue(context.Background(), req(id, 0))
			if err != nil {
				t.Errorf("Enqueue %s failed: %v", id, err)
				return
			}
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
			release()
		}()
	}
	wg.Wait()

	if p := peak.Load(); p > 2 {
		t.Errorf("Concurrency bound violated: peak %d in flight", p)
	}
	if m := q.Metrics(); m.Completed != 10 {
		t.Errorf("Expected 10 completed, got %d", m.Completed)
	}
}

func TestQueue_ContextCancelledWhileQueued(t *testing.T) {
	q := New(testConfig(), nil)
	q.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Enqueue(ctx, req("cancelled", 0))
		errCh <- err
	}()
	waitForID(t, q, "cancelled")

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Cancelled caller never returned")
	}

	if status := q.Status(); status.Size != 0 {
		t.Errorf("Abandoned request left in queue: size=%d", status.Size)
	}
}

// ============================================================================
// Introspection Tests
// ============================================================================

func TestQueue_PositionIsReadOnly(t *testing.T) {
	q := New(testConfig(), nil)
	q.Pause()

	for _, r := range []struct {
		id    string
		level int
	}{{"back", 0}, {"front", 1}} {
		r := r
		go func() {
			release, err := q.Enqueue(context.Background(), req(r.id, r.level))
			if err == nil {
				release()
			}
		}()
		waitForID(t, q, r.id)
	}

	if pos, ok := q.Position("front"); !ok || pos != 0 {
		t.Errorf("Expected front at position 0, got %d (ok=%v)", pos, ok)
	}
	if pos, ok := q.Position("back"); !ok || pos != 1 {
		t.Errorf("Expected back at position 1, got %d (ok=%v)", pos, ok)
	}
	if _, ok := q.Position("missing"); ok {
		t.Error("Expected miss for unknown id")
	}

	// Queries left the queue untouched.
	if status := q.Status(); status.Size != 2 {
		t.Errorf("Query mutated queue: size=%d", status.Size)
	}

	q.Clear()
}

func TestQueue_MetricsTimings(t *testing.T) {
	q := New(testConfig(), nil)

	release, err := q.Enqueue(context.Background(), req("timed", 0))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	release()

	m := q.Metrics()
	if m.AvgProcessing < 20*time.Millisecond {
		t.Errorf("Expected processing time >= 20ms, got %v", m.AvgProcessing)
	}
	if m.Throughput <= 0 {
		t.Errorf("Expected positive throughput, got %f", m.Throughput)
	}
}

// ============================================================================
// Helpers
// ============================================================================

// waitForSize blocks until the queue holds exactly n requests.
func waitForSize(t *testing.T, q *Queue, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if q.Status().Size == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Queue never reached size %d (size=%d)", n, q.Status().Size)
}

// waitForID blocks until the request is visible in a bucket.
func waitForID(t *testing.T, q *Queue, id string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := q.Position(id); ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Request %s never appeared in the queue", id)
}
