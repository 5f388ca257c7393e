// Package admission provides admission control for calls to rate-limited
// providers.
//
// # Overview
//
// The package governs access to external resources with per-minute request
// and token quotas. It composes:
//
//   - ratelimit: dual-mechanism (token bucket + sliding window) limiters
//   - queue: a priority request queue with retry, timeout and backpressure
//   - circuit: a circuit breaker for the downstream call itself
//   - history: an optional audit trail of admission decisions
//
// The Manager owns one limiter per registered provider plus an optional
// global limiter, and enforces global-then-provider ordering.
//
// # Usage
//
//	manager := admission.NewManager()
//	manager.SetGlobalLimits(ratelimit.DefaultConfig(500, 500000))
//	manager.RegisterProvider("anthropic", ratelimit.DefaultConfig(60, 100000))
//
//	info := admission.NewRequestInfo(4000, 1, "user-42")
//	if err := manager.Acquire(ctx, "anthropic", info); err != nil {
//	    var rlErr *ratelimit.RateLimitError
//	    if errors.As(err, &rlErr) {
//	        // Back off for rlErr.RetryAfter
//	    }
//	}
//
// Callers that want buffering instead of synchronous rejection put a
// queue.Queue in front, with the manager's Acquire as its admitter:
//
//	q := queue.New(queue.DefaultConfig(), manager.AdmitterFor("anthropic"))
//
// # Observability
//
// Decisions are surfaced through the Events interface, decoupled from
// control flow: the core never depends on whether anything is listening.
// Metrics implements Events (and queue.Events) on top of Prometheus.
//
// # Thread Safety
//
// All operations are safe for concurrent use. Limiter state is never
// persisted; every process starts cold.
package admission
