// Package circuit implements a circuit breaker for unreliable downstream
// calls.
//
// # Overview
//
// The breaker is a three-state machine (closed, open, half-open) that stops
// calling a failing operation until it has had time to recover:
//
//   - closed: calls pass through; consecutive failures are counted, and
//     reaching the threshold opens the circuit
//   - open: calls fail fast with ErrOpen until the timeout elapses, then the
//     next call is let through as a half-open trial
//   - half-open: a successful trial closes the circuit, a failed one reopens
//     it
//
// The breaker has no knowledge of what it wraps; it is reusable for any
// fallible operation, including a downstream call made after limiter
// admission.
//
//	breaker := circuit.NewBreaker(circuit.Config{Threshold: 5, Timeout: 30 * time.Second})
//	err := breaker.Execute(ctx, func(ctx context.Context) error {
//	    return client.Call(ctx, req)
//	})
//
// # Thread Safety
//
// Breaker is thread-safe using sync.Mutex. The half-open trial admits exactly
// one call per timeout expiry.
package circuit
