// Package retention prunes persisted policy decisions past their retention
// window. Execution records are never pruned; they are the audit trail.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/minerva/pkg/audit"
)

// Pruner deletes persisted decisions older than the retention window.
type Pruner struct {
	store  audit.Store
	window time.Duration
	logger *slog.Logger

	now func() time.Time
}

// NewPruner creates a pruner. Window must be positive.
func NewPruner(store audit.Store, window time.Duration, logger *slog.Logger) (*Pruner, error) {
	if window <= 0 {
		return nil, fmt.Errorf("retention window must be positive, got %v", window)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		store:  store,
		window: window,
		logger: logger.With("component", "audit.retention"),
		now:    time.Now,
	}, nil
}

// Prune runs one pass and returns how many decisions were removed.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.window)
	pruned, err := p.store.PruneDecisionsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		p.logger.Info("pruned persisted decisions",
			"count", pruned, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return pruned, nil
}

// Scheduler runs a pruner on a cron schedule.
type Scheduler struct {
	pruner   *Pruner
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewScheduler creates a scheduler. An empty schedule defaults to daily at
// 03:00.
func NewScheduler(pruner *Pruner, schedule string, logger *slog.Logger) *Scheduler {
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		pruner:   pruner,
		schedule: schedule,
		logger:   logger.With("component", "audit.retention.scheduler"),
	}
}

// Start schedules pruning. Returns an error for an invalid schedule.
func (s *Scheduler) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.pruner.Prune(context.Background()); err != nil {
			s.logger.Error("retention prune failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	return nil
}

// Stop stops the schedule and waits for an in-flight prune to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
