package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acyclops/marketpulse/internal/domain"
)

// StatusStore implements domain.StatusStore on the pipeline_status table.
// Each pipeline owns exactly one row keyed by name.
type StatusStore struct {
	pool *pgxpool.Pool
}

// NewStatusStore creates a new StatusStore backed by the given connection pool.
func NewStatusStore(pool *pgxpool.Pool) *StatusStore {
	return &StatusStore{pool: pool}
}

var _ domain.StatusStore = (*StatusStore)(nil)

// Ensure creates the status row for the pipeline if it does not exist.
func (s *StatusStore) Ensure(ctx context.Context, pipeline string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_status (pipeline_name)
		VALUES ($1)
		ON CONFLICT (pipeline_name) DO NOTHING`,
		pipeline,
	)
	if err != nil {
		return fmt.Errorf("postgres: ensure pipeline status %s: %w", pipeline, err)
	}
	return nil
}

// Get returns the status row for the pipeline.
func (s *StatusStore) Get(ctx context.Context, pipeline string) (domain.PipelineStatus, error) {
	const sql = `
		SELECT pipeline_name, updated_at,
			last_run_started_at, last_run_finished_at, last_run_ok,
			last_processing_ms, last_error,
			markets_ingested, ticks_upserted, files_ingested,
			last_ingested_snapshot_file, last_ingested_snapshot_ts
		FROM pipeline_status
		WHERE pipeline_name = $1`

	var st domain.PipelineStatus
	err := s.pool.QueryRow(ctx, sql, pipeline).Scan(
		&st.PipelineName, &st.UpdatedAt,
		&st.LastRunStartedAt, &st.LastRunFinishedAt, &st.LastRunOK,
		&st.LastProcessingMS, &st.LastError,
		&st.MarketsIngested, &st.TicksUpserted, &st.FilesIngested,
		&st.LastIngestedSnapshotFile, &st.LastIngestedSnapshotTS,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.PipelineStatus{}, domain.ErrNotFound
		}
		return domain.PipelineStatus{}, fmt.Errorf("postgres: get pipeline status %s: %w", pipeline, err)
	}
	return st, nil
}

// StartRun stamps the run start, clears the terminal fields, and zeroes the
// per-run counters. The cursor is deliberately left alone.
func (s *StatusStore) StartRun(ctx context.Context, pipeline string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE pipeline_status
		SET updated_at = now(),
			last_run_started_at = now(),
			last_run_finished_at = NULL,
			last_processing_ms = NULL,
			last_run_ok = NULL,
			last_error = NULL,
			files_ingested = 0,
			markets_ingested = 0,
			ticks_upserted = 0
		WHERE pipeline_name = $1`,
		pipeline,
	)
	if err != nil {
		return fmt.Errorf("postgres: start run %s: %w", pipeline, err)
	}
	return nil
}

// FinishRun records the terminal state of a run, success or failure.
func (s *StatusStore) FinishRun(ctx context.Context, pipeline string, ok bool, elapsedMS int64, runErr error) error {
	var lastError *string
	if runErr != nil {
		msg := runErr.Error()
		lastError = &msg
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE pipeline_status
		SET updated_at = now(),
			last_run_finished_at = now(),
			last_run_ok = $2,
			last_processing_ms = $3,
			last_error = $4
		WHERE pipeline_name = $1`,
		pipeline, ok, elapsedMS, lastError,
	)
	if err != nil {
		return fmt.Errorf("postgres: finish run %s: %w", pipeline, err)
	}
	return nil
}

// SetMarketsIngested records how many registry rows this run upserted.
func (s *StatusStore) SetMarketsIngested(ctx context.Context, pipeline string, n int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE pipeline_status
		SET updated_at = now(),
			markets_ingested = $2
		WHERE pipeline_name = $1`,
		pipeline, n,
	)
	if err != nil {
		return fmt.Errorf("postgres: set markets ingested %s: %w", pipeline, err)
	}
	return nil
}

// AdvanceCursor moves the ingest cursor to the given bucket and accumulates
// the tick and file counters. Called once per committed bucket, so a crash
// between commit and cursor update only causes a harmless re-ingest.
func (s *StatusStore) AdvanceCursor(ctx context.Context, pipeline string, cur domain.IngestCursor, ticks int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE pipeline_status
		SET updated_at = now(),
			last_ingested_snapshot_file = $2,
			last_ingested_snapshot_ts = $3,
			ticks_upserted = COALESCE(ticks_upserted, 0) + $4,
			files_ingested = COALESCE(files_ingested, 0) + 1
		WHERE pipeline_name = $1`,
		pipeline, cur.File, cur.BucketTS, ticks,
	)
	if err != nil {
		return fmt.Errorf("postgres: advance cursor %s: %w", pipeline, err)
	}
	return nil
}
