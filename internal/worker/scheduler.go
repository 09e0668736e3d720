package worker

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Scheduler runs the refresh job on a fixed interval.
type Scheduler struct {
	interval time.Duration
	job      *RefreshJob
	clock    clockwork.Clock
	logger   zerolog.Logger
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	// Interval between refresh runs. Default: 15 minutes.
	Interval time.Duration

	// Job is the refresh job to run.
	Job *RefreshJob

	// Clock is the time source, a fake clock in tests.
	Clock clockwork.Clock

	Logger zerolog.Logger
}

// NewScheduler creates a new refresh scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		interval: interval,
		job:      cfg.Job,
		clock:    clock,
		logger:   cfg.Logger,
	}
}

// Run executes the job once immediately, then on every interval tick until
// the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("refresh scheduler started")

	s.runOnce(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("refresh scheduler stopped")
			return ctx.Err()
		case <-ticker.Chan():
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.job.Run(ctx); err != nil {
		s.logger.Error().Err(err).Msg("scheduled refresh failed")
	}
}
