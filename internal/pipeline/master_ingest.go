package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/acyclops/marketpulse/internal/domain"
	"github.com/acyclops/marketpulse/internal/ingest"
)

// MasterIngestStage merges freshly fetched records into the master registry.
// The registry only grows: a market that disappears upstream keeps its last
// known record.
type MasterIngestStage struct {
	registry domain.MarketStore
	status   domain.StatusStore
	pipeline string
	logger   *slog.Logger
}

// NewMasterIngestStage creates the master ingest stage.
func NewMasterIngestStage(registry domain.MarketStore, status domain.StatusStore, pipeline string, logger *slog.Logger) *MasterIngestStage {
	return &MasterIngestStage{
		registry: registry,
		status:   status,
		pipeline: pipeline,
		logger:   logger.With("stage", "master_ingest"),
	}
}

// Run loads the current registry, merges the fetched records by freshness,
// and upserts the union. The markets_ingested counter reflects this run only.
func (s *MasterIngestStage) Run(ctx context.Context, fetched []domain.MarketRecord) error {
	if err := s.status.SetMarketsIngested(ctx, s.pipeline, 0); err != nil {
		return fmt.Errorf("resetting markets counter: %w", err)
	}

	existing, err := s.registry.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("loading master registry: %w", err)
	}

	merged := ingest.Merge(existing, fetched)

	upserted, err := s.registry.UpsertBatch(ctx, merged)
	if err != nil {
		return fmt.Errorf("upserting %d registry records: %w", len(merged), err)
	}

	if err := s.status.SetMarketsIngested(ctx, s.pipeline, upserted); err != nil {
		return fmt.Errorf("recording markets counter: %w", err)
	}

	s.logger.Info("master ingest complete",
		slog.Int("existing", len(existing)),
		slog.Int("fetched", len(fetched)),
		slog.Int64("upserted", upserted),
	)
	return nil
}
