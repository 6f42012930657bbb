package store

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/couchcryptid/air-quality-etl/internal/observability"
)

// Sweeper periodically applies age retention to a MemoryStore and publishes
// the number of stored locations.
type Sweeper struct {
	scheduler *gocron.Scheduler
	store     *MemoryStore
	interval  time.Duration
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewSweeper creates a Sweeper running every interval.
func NewSweeper(store *MemoryStore, interval time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		scheduler: gocron.NewScheduler(time.UTC),
		store:     store,
		interval:  interval,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start schedules the sweep job and starts the scheduler in the background.
func (s *Sweeper) Start() error {
	if _, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.Run); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	return nil
}

// Run performs one sweep.
func (s *Sweeper) Run() {
	removed := s.store.Sweep()
	locations := s.store.Len()
	s.metrics.StoredLocations.Set(float64(locations))
	if removed > 0 {
		s.logger.Debug("store sweep removed aged reports", "removed", removed, "locations", locations)
	}
}

// Stop stops the scheduler and cancels any future sweeps.
func (s *Sweeper) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
