package decision

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper runs the cache's expiry eviction on a cron schedule.
// Eager eviction only bounds memory; correctness never depends on it
// because lookups check expiry themselves.
type Sweeper struct {
	cache    *Cache
	schedule string
	logger   *slog.Logger

	cron  *cron.Cron
	entry cron.EntryID

	// OnEvict, when set, is called with the eviction count after each
	// sweep. The metrics layer hooks this.
	OnEvict func(evicted int)
}

// NewSweeper creates a sweeper for the given cache. The schedule uses
// standard cron syntax; an empty schedule defaults to every ten minutes.
func NewSweeper(cache *Cache, schedule string, logger *slog.Logger) *Sweeper {
	if schedule == "" {
		schedule = "*/10 * * * *"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cache:    cache,
		schedule: schedule,
		logger:   logger.With("component", "decision.sweeper"),
	}
}

// Start schedules the sweep. It returns an error for an invalid schedule.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	entry, err := s.cron.AddFunc(s.schedule, s.sweep)
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.entry = entry
	s.cron.Start()
	return nil
}

// Stop stops the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *Sweeper) sweep() {
	evicted := s.cache.Sweep()
	if evicted > 0 {
		s.logger.Debug("evicted expired decisions", "count", evicted)
	}
	if s.OnEvict != nil {
		s.OnEvict(evicted)
	}
}
