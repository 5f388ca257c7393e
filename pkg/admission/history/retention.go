package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// PrunerConfig configures retention pruning.
type PrunerConfig struct {
	// Retention is how long decisions are kept. Default: 7 days.
	Retention time.Duration `yaml:"retention"`

	// Schedule is a cron expression for automatic pruning (e.g.
	// "0 3 * * *" for daily at 3 AM). Empty disables the scheduler.
	Schedule string `yaml:"schedule"`
}

// Pruner deletes decisions past the retention period.
type Pruner struct {
	backend Backend
	config  PrunerConfig
	logger  *slog.Logger
}

// NewPruner creates a pruner over the given backend.
func NewPruner(backend Backend, config PrunerConfig) *Pruner {
	if config.Retention <= 0 {
		config.Retention = 7 * 24 * time.Hour
	}
	return &Pruner{
		backend: backend,
		config:  config,
		logger:  slog.Default().With("component", "history.pruner"),
	}
}

// Prune deletes all decisions older than the retention period and returns
// how many were removed.
func (p *Pruner) Prune(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-p.config.Retention)
	deleted, err := p.backend.Cleanup(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention prune failed: %w", err)
	}
	if deleted > 0 {
		p.logger.Info("pruned decision history",
			"deleted", deleted,
			"cutoff", cutoff,
		)
	}
	return deleted, nil
}

// Scheduler runs a Pruner on its configured cron schedule.
type Scheduler struct {
	pruner  *Pruner
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewScheduler creates a scheduler for the pruner.
func NewScheduler(pruner *Pruner) *Scheduler {
	return &Scheduler{
		pruner: pruner,
		cron:   cron.New(),
		logger: slog.Default().With("component", "history.scheduler"),
	}
}

// Start begins scheduled pruning. If the pruner has no schedule configured
// the scheduler does nothing. The scheduler stops when ctx is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pruner.config.Schedule == "" {
		s.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if _, err := cron.ParseStandard(s.pruner.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.pruner.config.Schedule, err)
	}

	_, err := s.cron.AddFunc(s.pruner.config.Schedule, func() {
		if _, err := s.pruner.Prune(ctx); err != nil {
			s.logger.Error("scheduled prune failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("retention scheduler started",
		"schedule", s.pruner.config.Schedule,
		"retention", s.pruner.config.Retention,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop halts scheduled pruning. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false
	s.logger.Info("retention scheduler stopped")
}
