// Package config provides YAML-based configuration for the admission
// control stack: per-provider and global rate limits, queue behavior,
// circuit breaker thresholds, decision history storage, and logging.
//
// # Overview
//
// Configuration is loaded from a YAML file, normalized with defaults, and
// validated before use:
//
//	cfg, err := config.Load("ganymede.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mgr := admission.NewManager()
//	for id, limits := range cfg.Providers {
//	    mgr.RegisterProvider(id, limits.RateLimit())
//	}
//
// Each section converts into the owning package's config type (RateLimit,
// Queue, Circuit) so the core packages stay independent of the file format.
//
// # Hot Reload
//
// Watcher watches the configuration file with fsnotify and invokes a
// reload callback after a debounce interval, letting a composition root
// re-register providers without a restart.
//
// # Environment Overrides
//
// LoadWithEnvOverrides applies GANYMEDE_* environment variables on top of
// the file, e.g. GANYMEDE_LOGGING_LEVEL=debug. Overrides always win over
// file values.
package config
