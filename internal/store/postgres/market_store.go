package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acyclops/marketpulse/internal/domain"
)

// MarketStore implements domain.MarketStore, the persistent master registry.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

var _ domain.MarketStore = (*MarketStore)(nil)

const marketCols = `market_id, event_id, question, slug, event_slug, event_title,
	icon, tags, volume, volume24hr, liquidity, probability,
	active, closed, created_at, start_date, end_date, updated_at`

// Optional text and timestamp columns coalesce so an upsert carrying NULL
// never erases a value learned on an earlier run. Scalars and booleans come
// from the incoming record unconditionally; the in-memory merge has already
// decided which run's values win.
const upsertMarketSQL = `
	INSERT INTO markets (
		market_id, event_id, question, slug, event_slug, event_title,
		icon, tags, volume, volume24hr, liquidity, probability,
		active, closed, created_at, start_date, end_date, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, $11, $12,
		$13, $14, $15, $16, $17, $18
	)
	ON CONFLICT (market_id) DO UPDATE SET
		event_id    = COALESCE(NULLIF(EXCLUDED.event_id, ''), markets.event_id),
		question    = COALESCE(EXCLUDED.question, markets.question),
		slug        = COALESCE(EXCLUDED.slug, markets.slug),
		event_slug  = COALESCE(EXCLUDED.event_slug, markets.event_slug),
		event_title = COALESCE(EXCLUDED.event_title, markets.event_title),
		icon        = COALESCE(EXCLUDED.icon, markets.icon),
		tags        = COALESCE(EXCLUDED.tags, markets.tags),
		volume      = EXCLUDED.volume,
		volume24hr  = EXCLUDED.volume24hr,
		liquidity   = EXCLUDED.liquidity,
		probability = COALESCE(EXCLUDED.probability, markets.probability),
		active      = EXCLUDED.active,
		closed      = EXCLUDED.closed,
		created_at  = COALESCE(EXCLUDED.created_at, markets.created_at),
		start_date  = COALESCE(EXCLUDED.start_date, markets.start_date),
		end_date    = COALESCE(EXCLUDED.end_date, markets.end_date),
		updated_at  = COALESCE(EXCLUDED.updated_at, markets.updated_at)`

// UpsertBatch writes records in a single batched round trip and returns how
// many rows were sent. Records without a market id are skipped.
func (s *MarketStore) UpsertBatch(ctx context.Context, recs []domain.MarketRecord) (int64, error) {
	batch := &pgx.Batch{}
	var queued int64

	for _, m := range recs {
		if m.MarketID == "" {
			continue
		}
		batch.Queue(upsertMarketSQL,
			m.MarketID, m.EventID, m.Question, m.Slug, m.EventSlug, m.EventTitle,
			m.Icon, m.Tags, m.Volume, m.Volume24hr, m.Liquidity, m.Probability,
			m.Active, m.Closed, m.CreatedAt, m.StartDate, m.EndDate, m.UpdatedAt,
		)
		queued++
	}
	if queued == 0 {
		return 0, nil
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := int64(0); i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			return 0, fmt.Errorf("postgres: upsert market batch item %d: %w", i, err)
		}
	}
	return queued, nil
}

func scanMarketRecord(rows pgx.Rows) (domain.MarketRecord, error) {
	var m domain.MarketRecord
	err := rows.Scan(
		&m.MarketID, &m.EventID, &m.Question, &m.Slug, &m.EventSlug, &m.EventTitle,
		&m.Icon, &m.Tags, &m.Volume, &m.Volume24hr, &m.Liquidity, &m.Probability,
		&m.Active, &m.Closed, &m.CreatedAt, &m.StartDate, &m.EndDate, &m.UpdatedAt,
	)
	return m, err
}

// ListAll returns every registry record, closed markets included. The
// registry only ever grows, so this is the working set for the merge step.
func (s *MarketStore) ListAll(ctx context.Context) ([]domain.MarketRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets ORDER BY market_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var recs []domain.MarketRecord
	for rows.Next() {
		m, err := scanMarketRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		recs = append(recs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return recs, nil
}

// Search performs substring matching on the question ranked by trigram
// similarity. Requires the pg_trgm extension.
func (s *MarketStore) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	q := strings.TrimSpace(query)
	if len(q) < 2 {
		return []domain.SearchResult{}, nil
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}

	const sql = `
		SELECT market_id, question, slug
		FROM markets
		WHERE question ILIKE '%' || $1 || '%'
		ORDER BY
			similarity(question, $1) DESC,
			question
		LIMIT $2`

	rows, err := s.pool.Query(ctx, sql, q, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: search markets: %w", err)
	}
	defer rows.Close()

	results := []domain.SearchResult{}
	for rows.Next() {
		var r domain.SearchResult
		if err := rows.Scan(&r.MarketID, &r.Question, &r.Slug); err != nil {
			return nil, fmt.Errorf("postgres: scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: search markets rows: %w", err)
	}
	return results, nil
}

// Count returns the total number of registry rows.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}
