// Package telemetry groups observability support for Ganymede.
//
// # Components
//
//   - logging: slog-based structured logging configured from the YAML file
//
// Prometheus metrics live next to the code they observe: pkg/admission
// exposes collectors for admission decisions, queue lifecycle events, and
// circuit breaker transitions.
package telemetry
