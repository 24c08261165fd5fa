package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler drives the runner on a fixed interval and accepts out-of-band
// triggers from the API. A trigger during a run coalesces into at most one
// pending run; the lock makes overlap impossible either way.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	trigger  chan struct{}
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler around the given runner.
func NewScheduler(runner *Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		logger:   logger.With("component", "scheduler"),
	}
}

// Trigger requests a run outside the schedule. It never blocks; a request
// while one is already pending is dropped.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// RunTriggerLoop serves manual triggers only: no immediate run, no interval.
// Used when another process owns the schedule; the distributed lock keeps a
// triggered run here from colliding with a scheduled run there.
func (s *Scheduler) RunTriggerLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-s.trigger:
			s.logger.Info("running pipeline on trigger")
			if err := s.runner.Run(ctx); err != nil {
				s.logger.Error("triggered pipeline run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunLoop runs the pipeline immediately, then on every tick or trigger until
// the context is cancelled. Run errors are logged, not propagated: the next
// interval retries from the cursor.
func (s *Scheduler) RunLoop(ctx context.Context) error {
	if err := s.runner.Run(ctx); err != nil {
		s.logger.Error("pipeline run failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runner.Run(ctx); err != nil {
				s.logger.Error("pipeline run failed", slog.String("error", err.Error()))
			}
		case <-s.trigger:
			s.logger.Info("running pipeline on trigger")
			if err := s.runner.Run(ctx); err != nil {
				s.logger.Error("triggered pipeline run failed", slog.String("error", err.Error()))
			}
		}
	}
}
