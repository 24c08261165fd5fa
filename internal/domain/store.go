package domain

import "context"

// MarketStore is the Master Registry: the deduplicated set of every market
// the pipeline has ever seen. Upserts never erase known fields (incoming
// NULLs coalesce to the stored value).
type MarketStore interface {
	// ListAll returns every registry record, including closed markets.
	ListAll(ctx context.Context) ([]MarketRecord, error)
	// UpsertBatch writes records inside one transaction and returns how many
	// rows were sent.
	UpsertBatch(ctx context.Context, recs []MarketRecord) (int64, error)
	// Search performs free-text question search, similarity-ranked.
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Count(ctx context.Context) (int64, error)
}

// TickStore persists the append-only tick history.
type TickStore interface {
	// UpsertBucket ingests one bucket's snapshots inside a single
	// transaction, chunked into bounded statements. Records without a market
	// id are skipped and counted, not fatal.
	UpsertBucket(ctx context.Context, bucket SnapshotBucket) (TickIngestResult, error)
	// Timeseries returns the ordered ticks for the market with the given
	// slug within the lookback window.
	Timeseries(ctx context.Context, slug string, window Window) ([]TimeseriesPoint, error)
}

// StatusStore manages the singleton per-pipeline status row.
type StatusStore interface {
	// Ensure creates the status row if it does not exist yet.
	Ensure(ctx context.Context, pipeline string) error
	Get(ctx context.Context, pipeline string) (PipelineStatus, error)
	// StartRun stamps started_at, clears terminal fields, and zeroes the
	// run counters.
	StartRun(ctx context.Context, pipeline string) error
	// FinishRun records the terminal state of a run. runErr may be nil.
	FinishRun(ctx context.Context, pipeline string, ok bool, elapsedMS int64, runErr error) error
	// SetMarketsIngested records the master-ingest counter for this run.
	SetMarketsIngested(ctx context.Context, pipeline string, n int64) error
	// AdvanceCursor moves the ingest cursor forward and accumulates the
	// tick/file counters. Called only after a bucket's transaction commits.
	AdvanceCursor(ctx context.Context, pipeline string, cur IngestCursor, ticks int64) error
}

// LeaderboardStore runs the windowed ranking queries.
type LeaderboardStore interface {
	Query(ctx context.Context, metric Metric, window Window) ([]LeaderboardRow, error)
}
