package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/admission/history"
	"mercator-hq/ganymede/pkg/admission/queue"
	"mercator-hq/ganymede/pkg/admission/ratelimit"
)

// captureEvents records admission events for assertions.
type captureEvents struct {
	mu       sync.Mutex
	allowed  []string // provider ids
	rejected []string // "provider/scope"
}

func (c *captureEvents) AdmissionAllowed(provider string, _ RequestInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowed = append(c.allowed, provider)
}

func (c *captureEvents) AdmissionRejected(provider string, _ RequestInfo, scope string, _ ratelimit.Dimension) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected = append(c.rejected, provider+"/"+scope)
}

func request(tokens int) RequestInfo {
	return NewRequestInfo(tokens, 0, "user-1")
}

// ============================================================
// Registration Tests
// ============================================================

func TestManager_UnknownProvider(t *testing.T) {
	mgr := NewManager()
	mgr.RegisterProvider("anthropic", ratelimit.DefaultConfig(10, 1000))

	err := mgr.Acquire(context.Background(), "openai", request(100))
	if err == nil {
		t.Fatal("Acquire() against unregistered provider succeeded, want error")
	}
	if !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("error = %v, want ErrUnknownProvider", err)
	}
	var upErr *UnknownProviderError
	if !errors.As(err, &upErr) || upErr.Provider != "openai" {
		t.Errorf("error = %v, want *UnknownProviderError for openai", err)
	}

	if _, err := mgr.Check("openai", request(100)); err == nil {
		t.Error("Check() against unregistered provider succeeded, want error")
	}
	if _, err := mgr.ProviderStatus("openai"); err == nil {
		t.Error("ProviderStatus() against unregistered provider succeeded, want error")
	}
}

func TestManager_Providers(t *testing.T) {
	mgr := NewManager()
	mgr.RegisterProvider("openai", ratelimit.DefaultConfig(10, 1000))
	mgr.RegisterProvider("anthropic", ratelimit.DefaultConfig(10, 1000))
	mgr.RegisterProvider("gemini", ratelimit.DefaultConfig(10, 1000))

	got := mgr.Providers()
	want := []string{"anthropic", "gemini", "openai"}
	if len(got) != len(want) {
		t.Fatalf("Providers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Providers()[%d] = %q, want %q (sorted)", i, got[i], want[i])
		}
	}
}

func TestManager_ReplaceProviderResetsLimits(t *testing.T) {
	mgr := NewManager()
	mgr.RegisterProvider("anthropic", ratelimit.DefaultConfig(1, 1000))

	ctx := context.Background()
	if err := mgr.Acquire(ctx, "anthropic", request(10)); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	if err := mgr.Acquire(ctx, "anthropic", request(10)); err == nil {
		t.Fatal("second Acquire() succeeded, want rate limit rejection")
	}

	// Re-registering installs a fresh limiter with fresh capacity.
	mgr.RegisterProvider("anthropic", ratelimit.DefaultConfig(5, 1000))
	if err := mgr.Acquire(ctx, "anthropic", request(10)); err != nil {
		t.Errorf("Acquire() after re-register error = %v", err)
	}
}

// ============================================================
// Ordering Tests
// ============================================================

func TestManager_GlobalCheckedBeforeProvider(t *testing.T) {
	mgr := NewManager()
	mgr.RegisterProvider("anthropic", ratelimit.DefaultConfig(100, 100000))
	mgr.SetGlobalLimits(ratelimit.DefaultConfig(2, 100000))

	events := &captureEvents{}
	mgr.SetEvents(events)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := mgr.Acquire(ctx, "anthropic", request(10)); err != nil {
			t.Fatalf("Acquire() %d error = %v", i, err)
		}
	}

	// Global quota exhausted; provider has plenty left.
	err := mgr.Acquire(ctx, "anthropic", request(10))
	if !errors.Is(err, ratelimit.ErrRateLimitExceeded) {
		t.Fatalf("Acquire() error = %v, want rate limit rejection", err)
	}
	var rlErr *ratelimit.RateLimitError
	if !errors.As(err, &rlErr) || rlErr.Provider != "global" {
		t.Errorf("rejection provider = %v, want global", err)
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.rejected) != 1 || events.rejected[0] != "anthropic/global" {
		t.Errorf("rejected events = %v, want [anthropic/global]", events.rejected)
	}

	// The global rejection must not have consumed provider capacity.
	status, statusErr := mgr.ProviderStatus("anthropic")
	if statusErr != nil {
		t.Fatalf("ProviderStatus() error = %v", statusErr)
	}
	if status.RequestsRemaining != 98 {
		t.Errorf("provider RequestsRemaining = %d, want 98 (global rejection short-circuits)", status.RequestsRemaining)
	}
}

func TestManager_ProviderRejectionAfterGlobalPass(t *testing.T) {
	mgr := NewManager()
	mgr.RegisterProvider("anthropic", ratelimit.DefaultConfig(1, 100000))
	mgr.SetGlobalLimits(ratelimit.DefaultConfig(100, 100000))

	ctx := context.Background()
	if err := mgr.Acquire(ctx, "anthropic", request(10)); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	err := mgr.Acquire(ctx, "anthropic", request(10))
	var rlErr *ratelimit.RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("Acquire() error = %v, want *RateLimitError", err)
	}
	if rlErr.Provider != "anthropic" {
		t.Errorf("rejection provider = %q, want anthropic", rlErr.Provider)
	}
}

func TestManager_NoGlobalLimits(t *testing.T) {
	mgr := NewManager()
	mgr.RegisterProvider("anthropic", ratelimit.DefaultConfig(5, 1000))

	if _, ok := mgr.GlobalStatus(); ok {
		t.Error("GlobalStatus() reported a limiter before SetGlobalLimits")
	}
	if err := mgr.Acquire(context.Background(), "anthropic", request(10)); err != nil {
		t.Errorf("Acquire() without global limits error = %v", err)
	}
}

func TestManager_IndependentProviders(t *testing.T) {
	mgr := NewManager()
	mgr.RegisterProvider("anthropic", ratelimit.DefaultConfig(1, 100000))
	mgr.RegisterProvider("openai", ratelimit.DefaultConfig(1, 100000))

	ctx := context.Background()
	if err := mgr.Acquire(ctx, "anthropic", request(10)); err != nil {
		t.Fatalf("Acquire(anthropic) error = %v", err)
	}
	if err := mgr.Acquire(ctx, "anthropic", request(10)); err == nil {
		t.Fatal("Acquire(anthropic) succeeded with quota exhausted")
	}

	// Exhausting anthropic must not touch openai.
	if err := mgr.Acquire(ctx, "openai", request(10)); err != nil {
		t.Errorf("Acquire(openai) error = %v", err)
	}
}

// ============================================================
// Check Tests
// ============================================================

func TestManager_CheckDoesNotConsume(t *testing.T) {
	mgr := NewManager()
	mgr.RegisterProvider("anthropic", ratelimit.DefaultConfig(2, 1000))

	for i := 0; i < 10; i++ {
		result, err := mgr.Check("anthropic", request(10))
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if !result.Allowed {
			t.Fatalf("Check() %d not allowed, probes must not consume", i)
		}
	}

	status, _ := mgr.ProviderStatus("anthropic")
	if status.RequestsRemaining != 2 {
		t.Errorf("RequestsRemaining = %d after probes, want 2", status.RequestsRemaining)
	}
}

func TestManager_CheckReportsGlobalExhaustion(t *testing.T) {
	mgr := NewManager()
	mgr.RegisterProvider("anthropic", ratelimit.DefaultConfig(100, 100000))
	mgr.SetGlobalLimits(ratelimit.DefaultConfig(1, 100000))

	ctx := context.Background()
	if err := mgr.Acquire(ctx, "anthropic", request(10)); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	result, err := mgr.Check("anthropic", request(10))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if result.Allowed {
		t.Error("Check() allowed with global quota exhausted")
	}
}

// ============================================================
// Status Tests
// ============================================================

func TestManager_AllStatuses(t *testing.T) {
	mgr := NewManager()
	mgr.RegisterProvider("anthropic", ratelimit.DefaultConfig(10, 1000))
	mgr.RegisterProvider("openai", ratelimit.DefaultConfig(20, 2000))

	statuses := mgr.AllStatuses()
	if len(statuses) != 2 {
		t.Fatalf("AllStatuses() returned %d entries, want 2", len(statuses))
	}
	if statuses["anthropic"].RequestsRemaining != 10 {
		t.Errorf("anthropic RequestsRemaining = %d, want 10", statuses["anthropic"].RequestsRemaining)
	}
	if statuses["openai"].TokensRemaining != 2000 {
		t.Errorf("openai TokensRemaining = %d, want 2000", statuses["openai"].TokensRemaining)
	}
}

// ============================================================
// Recorder Tests
// ============================================================

func TestManager_RecordsDecisions(t *testing.T) {
	backend := history.NewMemoryBackend()
	defer backend.Close()

	mgr := NewManager()
	mgr.RegisterProvider("anthropic", ratelimit.DefaultConfig(1, 1000))
	mgr.SetRecorder(backend)

	ctx := context.Background()
	mgr.Acquire(ctx, "anthropic", request(10)) // allowed
	mgr.Acquire(ctx, "anthropic", request(10)) // rejected

	decisions, err := backend.List(ctx, "anthropic", time.Time{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("recorded %d decisions, want 2", len(decisions))
	}
	// Newest first: the rejection is decisions[0].
	if decisions[0].Allowed || decisions[0].Reason == "" {
		t.Errorf("rejection decision = %+v, want Allowed=false with reason", decisions[0])
	}
	if !decisions[1].Allowed || decisions[1].Reason != "" {
		t.Errorf("admission decision = %+v, want Allowed=true without reason", decisions[1])
	}
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, *history.Decision) error {
	return errors.New("disk full")
}

func TestManager_RecorderFailureDoesNotAffectAdmission(t *testing.T) {
	mgr := NewManager()
	mgr.RegisterProvider("anthropic", ratelimit.DefaultConfig(10, 1000))
	mgr.SetRecorder(failingRecorder{})

	if err := mgr.Acquire(context.Background(), "anthropic", request(10)); err != nil {
		t.Errorf("Acquire() error = %v, recorder failures must be best effort", err)
	}
}

// ============================================================
// Queue Integration Tests
// ============================================================

func TestManager_AdmitterForServesQueue(t *testing.T) {
	mgr := NewManager()
	mgr.RegisterProvider("anthropic", ratelimit.DefaultConfig(100, 100000))

	q := queue.New(queue.Config{
		MaxSize:     10,
		Concurrency: 2,
		Timeout:     5 * time.Second,
		MaxRetries:  1,
	}, mgr.AdmitterFor("anthropic"))
	defer q.Clear()

	release, err := q.Enqueue(context.Background(), request(10))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	release()

	status, _ := mgr.ProviderStatus("anthropic")
	if status.RequestsRemaining != 99 {
		t.Errorf("RequestsRemaining = %d, want 99 (queue dispatch consumed one)", status.RequestsRemaining)
	}
}

func TestNewRequestInfo_UniqueIDs(t *testing.T) {
	a := NewRequestInfo(100, 3, "user-1")
	b := NewRequestInfo(100, 3, "user-1")
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("NewRequestInfo ids not unique: %q vs %q", a.ID, b.ID)
	}
}
