package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/acyclops/marketpulse/internal/analytics"
	"github.com/acyclops/marketpulse/internal/ingest"
	"github.com/acyclops/marketpulse/internal/pipeline"
	"github.com/acyclops/marketpulse/internal/server"
	"github.com/acyclops/marketpulse/internal/server/handler"
)

// buildScheduler assembles the full pipeline stage chain and wraps it in a
// scheduler. The archive stage is only attached when cold storage was wired.
func (a *App) buildScheduler(deps *Dependencies) *pipeline.Scheduler {
	normalizer := ingest.NewNormalizer(a.cfg.Polymarket.ExcludedTags)

	fetch := pipeline.NewFetchStage(
		deps.Gamma,
		normalizer,
		deps.Buckets,
		a.cfg.Polymarket.PageLimit,
		a.cfg.Polymarket.VolumeMin,
		a.logger,
	)
	master := pipeline.NewMasterIngestStage(deps.Markets, deps.Status, a.cfg.Pipeline.Name, a.logger)
	ticks := pipeline.NewTickIngestStage(deps.Buckets, deps.Ticks, deps.Status, a.cfg.Pipeline.Name, a.logger)
	squeeze := pipeline.NewCompressStage(deps.Buckets, a.logger)

	var archive *pipeline.ArchiveStage
	if deps.BlobWriter != nil && deps.BlobReader != nil {
		archive = pipeline.NewArchiveStage(
			deps.Buckets,
			deps.BlobWriter,
			deps.BlobReader,
			a.cfg.Pipeline.ArchivePrefix,
			a.cfg.Pipeline.ArchiveDeleteLocal,
			a.logger,
		)
	}

	runner := pipeline.NewRunner(
		a.cfg.Pipeline.Name,
		deps.LockManager,
		a.cfg.Pipeline.LockTTL.Duration,
		deps.Status,
		fetch,
		master,
		ticks,
		squeeze,
		archive,
		a.logger,
	)

	return pipeline.NewScheduler(runner, a.cfg.Pipeline.RunInterval.Duration, a.logger)
}

// buildServer assembles the HTTP server around the analytics service and the
// given trigger sink.
func (a *App) buildServer(deps *Dependencies, trigger handler.Triggerer) *server.Server {
	svc := analytics.NewService(
		deps.Leaderboards,
		deps.Ticks,
		deps.Markets,
		deps.ResultCache,
		a.cfg.Server.CacheTTL.Duration,
		a.logger,
	)

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(deps.PG),
		Status:      handler.NewStatusHandler(deps.Status, a.cfg.Pipeline.Name, a.logger),
		Leaderboard: handler.NewLeaderboardHandler(svc, a.logger),
		Market:      handler.NewMarketHandler(svc, a.logger),
		Pipeline:    handler.NewPipelineHandler(trigger, a.logger),
	}

	return server.New(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, deps.RateLimiter, a.logger)
}

// PipelineMode runs the ingestion pipeline on its interval with no HTTP
// surface.
func (a *App) PipelineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting pipeline mode",
		"interval", a.cfg.Pipeline.RunInterval.Duration.String(),
	)

	sched := a.buildScheduler(deps)
	err := sched.RunLoop(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ServeMode runs the HTTP API only. The trigger endpoint still works: it
// feeds a trigger-only scheduler, relying on the distributed lock to stay
// out of the way of whichever process owns the interval schedule.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode", "port", a.cfg.Server.Port)

	sched := a.buildScheduler(deps)
	srv := a.buildServer(deps, sched)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.RunTriggerLoop(ctx)
	})
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// FullMode runs the scheduled pipeline and the HTTP API in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		"port", a.cfg.Server.Port,
		"interval", a.cfg.Pipeline.RunInterval.Duration.String(),
	)

	sched := a.buildScheduler(deps)
	srv := a.buildServer(deps, sched)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.RunLoop(ctx)
	})
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
