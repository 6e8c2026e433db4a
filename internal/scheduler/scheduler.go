package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/weather-query-service/internal/cache"
	"github.com/i474232898/weather-query-service/internal/logging"
)

const defaultSweepInterval = time.Minute

// Scheduler runs the periodic cache sweep that drops expired entries.
type Scheduler struct {
	scheduler *gocron.Scheduler
	store     *cache.Store
	interval  time.Duration
	log       *zap.Logger
}

// New creates a Scheduler sweeping store every interval.
func New(store *cache.Store, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		store:     store,
		interval:  interval,
		log:       logging.OrNop(logger),
	}
}

// Start schedules the sweep job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).Do(func() {
		removed := s.store.Sweep()
		if removed > 0 {
			s.log.Debug("cache sweep removed expired entries",
				zap.Int("removed", removed),
				zap.Int("entries", s.store.Len()))
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
