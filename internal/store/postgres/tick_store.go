package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acyclops/marketpulse/internal/domain"
)

// tickChunkSize bounds how many rows ride in one batched statement.
const tickChunkSize = 1000

// TickStore implements domain.TickStore on the market_ticks table.
type TickStore struct {
	pool *pgxpool.Pool
}

// NewTickStore creates a new TickStore backed by the given connection pool.
func NewTickStore(pool *pgxpool.Pool) *TickStore {
	return &TickStore{pool: pool}
}

var _ domain.TickStore = (*TickStore)(nil)

const upsertTickSQL = `
	INSERT INTO market_ticks (market_id, ts, fetched_at, probability, volume24hr, liquidity)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (market_id, ts) DO UPDATE SET
		fetched_at  = EXCLUDED.fetched_at,
		probability = EXCLUDED.probability,
		volume24hr  = EXCLUDED.volume24hr,
		liquidity   = EXCLUDED.liquidity`

// UpsertBucket writes every snapshot in the bucket inside one transaction,
// chunked to keep individual batches bounded. Snapshots without a market id
// are counted as skipped. Replaying a bucket overwrites the same rows, so
// re-ingestion after a partial failure is safe.
func (s *TickStore) UpsertBucket(ctx context.Context, bucket domain.SnapshotBucket) (domain.TickIngestResult, error) {
	res := domain.TickIngestResult{BucketTS: bucket.TS}

	if bucket.TS.IsZero() || bucket.FetchedAt.IsZero() {
		return res, fmt.Errorf("postgres: upsert bucket: %w", domain.ErrBadBucket)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("postgres: begin tick tx: %w", err)
	}
	defer tx.Rollback(ctx)

	snaps := bucket.Snapshots
	for start := 0; start < len(snaps); start += tickChunkSize {
		end := start + tickChunkSize
		if end > len(snaps) {
			end = len(snaps)
		}

		batch := &pgx.Batch{}
		var queued int64
		for _, sn := range snaps[start:end] {
			if sn.MarketID == "" {
				res.Skipped++
				continue
			}
			batch.Queue(upsertTickSQL,
				sn.MarketID, bucket.TS, bucket.FetchedAt,
				sn.Probability, sn.Volume24hr, sn.Liquidity,
			)
			queued++
		}
		if queued == 0 {
			continue
		}

		br := tx.SendBatch(ctx, batch)
		for i := int64(0); i < queued; i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return res, fmt.Errorf("postgres: upsert tick chunk at %d: %w", start, err)
			}
		}
		if err := br.Close(); err != nil {
			return res, fmt.Errorf("postgres: close tick batch: %w", err)
		}
		res.Upserted += queued
	}

	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("postgres: commit tick tx: %w", err)
	}
	return res, nil
}

// Timeseries returns the ordered ticks for the market with the given slug
// within the lookback window.
func (s *TickStore) Timeseries(ctx context.Context, slug string, window domain.Window) ([]domain.TimeseriesPoint, error) {
	const sql = `
		SELECT t.ts, t.probability, t.volume24hr, t.liquidity
		FROM market_ticks t
		JOIN markets m ON m.market_id = t.market_id
		WHERE m.slug = $1
			AND t.ts >= now() - ($2::interval)
		ORDER BY t.ts`

	rows, err := s.pool.Query(ctx, sql, slug, string(window))
	if err != nil {
		return nil, fmt.Errorf("postgres: timeseries for %s: %w", slug, err)
	}
	defer rows.Close()

	points := []domain.TimeseriesPoint{}
	for rows.Next() {
		var p domain.TimeseriesPoint
		if err := rows.Scan(&p.TS, &p.Probability, &p.Volume24hr, &p.Liquidity); err != nil {
			return nil, fmt.Errorf("postgres: scan timeseries point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: timeseries rows: %w", err)
	}
	return points, nil
}
