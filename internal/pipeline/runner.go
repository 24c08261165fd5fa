package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/acyclops/marketpulse/internal/domain"
)

// State is the runner's position in its lifecycle. Terminal states describe
// the most recent run; a new run starts again from StateLockPending.
type State string

const (
	StateIdle        State = "idle"
	StateLockPending State = "lock_pending"
	StateRunning     State = "running"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
	StateSkipped     State = "skipped"
)

// Runner sequences the pipeline stages under a per-pipeline distributed
// lock. Every run either acquires the lock and executes the full stage
// order, or finds it held and exits as a clean skip, so at most one run per
// pipeline name is ever in flight across processes.
type Runner struct {
	pipeline string
	lock     domain.LockManager
	lockTTL  time.Duration
	status   domain.StatusStore

	fetch   *FetchStage
	master  *MasterIngestStage
	ticks   *TickIngestStage
	squeeze *CompressStage
	archive *ArchiveStage // nil when archival is disabled

	logger *slog.Logger

	mu    sync.Mutex
	state State
}

// NewRunner creates a Runner for one named pipeline.
func NewRunner(
	pipeline string,
	lock domain.LockManager,
	lockTTL time.Duration,
	status domain.StatusStore,
	fetch *FetchStage,
	master *MasterIngestStage,
	ticks *TickIngestStage,
	squeeze *CompressStage,
	archive *ArchiveStage,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		pipeline: pipeline,
		lock:     lock,
		lockTTL:  lockTTL,
		status:   status,
		fetch:    fetch,
		master:   master,
		ticks:    ticks,
		squeeze:  squeeze,
		archive:  archive,
		logger:   logger.With("component", "pipeline", "pipeline", pipeline),
		state:    StateIdle,
	}
}

// State returns the runner's current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Run executes one pipeline run. A lock held elsewhere is a clean skip, not
// an error. Stage failures, panics included, mark the run failed in the
// status row; the lock is released after the terminal status is written.
func (r *Runner) Run(ctx context.Context) (runErr error) {
	if err := r.status.Ensure(ctx, r.pipeline); err != nil {
		return fmt.Errorf("pipeline: ensure status row: %w", err)
	}

	r.setState(StateLockPending)
	unlock, err := r.lock.Acquire(ctx, r.pipeline, r.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			r.setState(StateSkipped)
			r.logger.Info("another run is active, skipping")
			return nil
		}
		r.setState(StateFailed)
		return fmt.Errorf("pipeline: acquire lock: %w", err)
	}
	defer unlock()

	r.setState(StateRunning)
	r.logger.Info("run started")
	start := time.Now()

	if err := r.status.StartRun(ctx, r.pipeline); err != nil {
		r.setState(StateFailed)
		return fmt.Errorf("pipeline: start run: %w", err)
	}

	// The terminal status is written in a defer so no stage failure mode,
	// panics included, can skip it. unlock was deferred first and therefore
	// runs after this, keeping the lock held until the terminal write lands.
	defer func() {
		if p := recover(); p != nil {
			runErr = fmt.Errorf("pipeline: stage panic: %v", p)
		}
		elapsed := time.Since(start).Milliseconds()

		ok := runErr == nil
		if ok {
			r.setState(StateSucceeded)
			r.logger.Info("run succeeded", slog.Int64("elapsed_ms", elapsed))
		} else {
			r.setState(StateFailed)
			r.logger.Error("run failed",
				slog.Int64("elapsed_ms", elapsed),
				slog.String("error", runErr.Error()),
			)
		}

		// Record the terminal state even when the run's context is gone, so
		// a cancelled run never leaves the status row permanently in-flight.
		finishCtx, cancel := statusContext(ctx)
		defer cancel()
		if err := r.status.FinishRun(finishCtx, r.pipeline, ok, elapsed, runErr); err != nil {
			r.logger.Error("could not record run outcome", slog.String("error", err.Error()))
			if runErr == nil {
				runErr = fmt.Errorf("pipeline: finish run: %w", err)
			}
		}
	}()

	return r.runStages(ctx)
}

func (r *Runner) runStages(ctx context.Context) error {
	fetched, err := r.fetch.Run(ctx)
	if err != nil {
		return fmt.Errorf("fetch stage: %w", err)
	}

	if err := r.master.Run(ctx, fetched.Records); err != nil {
		return fmt.Errorf("master ingest stage: %w", err)
	}

	if err := r.ticks.Run(ctx); err != nil {
		return fmt.Errorf("tick ingest stage: %w", err)
	}

	if err := r.squeeze.Run(ctx); err != nil {
		return fmt.Errorf("compress stage: %w", err)
	}

	if r.archive != nil {
		if err := r.archive.Run(ctx); err != nil {
			return fmt.Errorf("archive stage: %w", err)
		}
	}

	return nil
}

// statusContext returns ctx while it is alive, otherwise a short standalone
// timeout for the final status write.
func statusContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(context.Background(), 5*time.Second)
}
