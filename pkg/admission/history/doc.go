// Package history records admission decisions for audit and analysis.
//
// # Overview
//
// Every decision the admission manager makes can be appended to a Backend:
// who asked, against which provider, whether it was admitted and why not.
// Two backends are provided:
//
//   - MemoryBackend: bounded in-memory ring, the default
//   - SQLiteBackend: durable single-file store for longer retention
//
// The history is strictly an observability trail. Limiter and queue state is
// never reconstructed from it; every process starts with cold limiters.
//
// # Retention
//
// The Pruner deletes records older than the retention period, either on
// demand or on a cron schedule via the Scheduler:
//
//	pruner := history.NewPruner(backend, history.PrunerConfig{
//	    Retention: 7 * 24 * time.Hour,
//	    Schedule:  "0 3 * * *", // daily at 3 AM
//	})
//	scheduler := history.NewScheduler(pruner)
//	scheduler.Start(ctx)
//
// # Thread Safety
//
// Both backends are safe for concurrent use.
package history
