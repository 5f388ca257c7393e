// Ganymede is an admission control core for LLM API traffic.
//
// It combines dual-mechanism rate limiting (sliding window quotas plus
// token bucket bursts), a priority request queue with retry and
// backpressure, and a circuit breaker, configured per provider from a
// YAML file.
//
// Usage:
//
//	# Show version information
//	ganymede version
//
//	# Validate a configuration file
//	ganymede validate --config ganymede.yaml
//
//	# Replay a synthetic workload through the configured stack
//	ganymede simulate --config ganymede.yaml --requests 500
//
// For complete documentation, see: https://github.com/mercator-hq/ganymede
package main

func main() {
	Execute()
}
