package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/acyclops/marketpulse/internal/domain"
	"github.com/acyclops/marketpulse/internal/snapshot"
)

// BucketSource lists and loads snapshot bucket files past a cursor.
type BucketSource interface {
	ListUningested(cursor domain.IngestCursor) ([]snapshot.BucketFile, error)
	Read(name string) (domain.SnapshotBucket, error)
}

// TickIngestStage replays uningested bucket files into the tick history.
// Each file is one transaction; the cursor advances only after its commit,
// so a crash mid-run re-ingests at most the in-flight file, and the tick
// upsert makes that replay a no-op.
type TickIngestStage struct {
	buckets  BucketSource
	ticks    domain.TickStore
	status   domain.StatusStore
	pipeline string
	logger   *slog.Logger
}

// NewTickIngestStage creates the tick ingest stage.
func NewTickIngestStage(buckets BucketSource, ticks domain.TickStore, status domain.StatusStore, pipeline string, logger *slog.Logger) *TickIngestStage {
	return &TickIngestStage{
		buckets:  buckets,
		ticks:    ticks,
		status:   status,
		pipeline: pipeline,
		logger:   logger.With("stage", "tick_ingest"),
	}
}

// Run ingests every bucket file newer than the cursor, in bucket-timestamp
// order. A single bad file is logged and skipped without advancing the
// cursor past it; the run fails only when every file failed.
func (s *TickIngestStage) Run(ctx context.Context) error {
	st, err := s.status.Get(ctx, s.pipeline)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("loading pipeline status: %w", err)
	}
	cursor := st.Cursor()

	files, err := s.buckets.ListUningested(cursor)
	if err != nil {
		return fmt.Errorf("listing snapshot buckets: %w", err)
	}
	if len(files) == 0 {
		s.logger.Info("no new snapshot buckets to ingest")
		return nil
	}

	var totalUpserted, totalSkipped int64
	var failed int
	var lastErr error

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("tick ingest cancelled: %w", err)
		}

		res, err := s.ingestFile(ctx, f)
		if err != nil {
			failed++
			lastErr = err
			s.logger.Error("bucket ingest failed",
				slog.String("file", f.Name),
				slog.String("error", err.Error()),
			)
			continue
		}

		totalUpserted += res.Upserted
		totalSkipped += res.Skipped
		s.logger.Info("bucket ingested",
			slog.String("file", f.Name),
			slog.Int64("upserted", res.Upserted),
			slog.Int64("skipped", res.Skipped),
			slog.Time("bucket_ts", f.BucketTS),
		)
	}

	s.logger.Info("tick ingest complete",
		slog.Int("files", len(files)),
		slog.Int("failed", failed),
		slog.Int64("upserted", totalUpserted),
		slog.Int64("skipped", totalSkipped),
	)

	if failed == len(files) {
		return fmt.Errorf("all %d bucket files failed: %w", failed, lastErr)
	}
	return nil
}

func (s *TickIngestStage) ingestFile(ctx context.Context, f snapshot.BucketFile) (domain.TickIngestResult, error) {
	bucket, err := s.buckets.Read(f.Name)
	if err != nil {
		return domain.TickIngestResult{}, fmt.Errorf("reading bucket: %w", err)
	}

	res, err := s.ticks.UpsertBucket(ctx, bucket)
	if err != nil {
		return res, fmt.Errorf("upserting ticks: %w", err)
	}
	res.File = f.Name

	cur := domain.IngestCursor{File: f.Name, BucketTS: f.BucketTS}
	if err := s.status.AdvanceCursor(ctx, s.pipeline, cur, res.Upserted); err != nil {
		return res, fmt.Errorf("advancing cursor: %w", err)
	}
	return res, nil
}
