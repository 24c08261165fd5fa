package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acyclops/marketpulse/internal/domain"
)

// LeaderboardStore implements domain.LeaderboardStore. Each metric is a fixed
// SQL query parameterized only by the lookback interval; dispatch goes
// through the leaderboardQueries table, never through string concatenation.
type LeaderboardStore struct {
	pool *pgxpool.Pool
}

// NewLeaderboardStore creates a new LeaderboardStore backed by the given pool.
func NewLeaderboardStore(pool *pgxpool.Pool) *LeaderboardStore {
	return &LeaderboardStore{pool: pool}
}

var _ domain.LeaderboardStore = (*LeaderboardStore)(nil)

type leaderboardQuery struct {
	sql  string
	scan func(rows pgx.Rows) (domain.LeaderboardRow, error)
}

// Query runs the ranking query for the metric over the window. Unknown
// metrics return domain.ErrInvalidMetric; callers validate windows before
// this point but the interval parameter is bound, not interpolated, either
// way.
func (s *LeaderboardStore) Query(ctx context.Context, metric domain.Metric, window domain.Window) ([]domain.LeaderboardRow, error) {
	q, ok := leaderboardQueries[metric]
	if !ok {
		return nil, fmt.Errorf("postgres: leaderboard %q: %w", metric, domain.ErrInvalidMetric)
	}

	rows, err := s.pool.Query(ctx, q.sql, string(window))
	if err != nil {
		return nil, fmt.Errorf("postgres: leaderboard %s: %w", metric, err)
	}
	defer rows.Close()

	out := []domain.LeaderboardRow{}
	for rows.Next() {
		row, err := q.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan leaderboard %s: %w", metric, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: leaderboard %s rows: %w", metric, err)
	}
	return out, nil
}

// The range family shares one NULL-padded select list so their rows scan
// identically.
func scanRangeFamily(rows pgx.Rows) (domain.LeaderboardRow, error) {
	var r domain.LeaderboardRow
	err := rows.Scan(
		&r.MarketID, &r.Question, &r.Slug,
		&r.MinP, &r.MaxP, &r.Range,
		&r.Whiplash, &r.AvgStep, &r.NPoints, &r.Stddev,
	)
	return r, err
}

func scanMomentum(rows pgx.Rows) (domain.LeaderboardRow, error) {
	var r domain.LeaderboardRow
	err := rows.Scan(
		&r.MarketID, &r.Question, &r.Slug,
		&r.Std1h, &r.StdWindow, &r.MomentumRatio,
	)
	return r, err
}

func scanSmartMoney(rows pgx.Rows) (domain.LeaderboardRow, error) {
	var r domain.LeaderboardRow
	err := rows.Scan(
		&r.MarketID, &r.Question, &r.Slug,
		&r.MaxStep, &r.AvgLiquidity, &r.SmartMoneyScore,
	)
	return r, err
}

func scanChop(rows pgx.Rows) (domain.LeaderboardRow, error) {
	var r domain.LeaderboardRow
	err := rows.Scan(
		&r.MarketID, &r.Question, &r.Slug,
		&r.NPoints, &r.ChopIndex, &r.TotalChop,
	)
	return r, err
}

func scanStability(rows pgx.Rows) (domain.LeaderboardRow, error) {
	var r domain.LeaderboardRow
	err := rows.Scan(
		&r.MarketID, &r.Question, &r.Slug,
		&r.MinP, &r.MaxP, &r.Range, &r.NPoints,
	)
	return r, err
}

var leaderboardQueries = map[domain.Metric]leaderboardQuery{
	domain.MetricAbsChange: {scan: scanRangeFamily, sql: `
		SELECT
			m.market_id,
			m.question,
			m.slug,
			MIN(t.probability) AS min_p,
			MAX(t.probability) AS max_p,
			(MAX(t.probability) - MIN(t.probability)) AS range,
			NULL::double precision AS whiplash,
			NULL::double precision AS avg_step,
			NULL::bigint AS n_points,
			NULL::double precision AS stddev
		FROM market_ticks t
		JOIN markets m ON m.market_id = t.market_id
		WHERE t.ts >= now() - ($1::interval)
			AND t.probability IS NOT NULL
		GROUP BY m.market_id, m.question, m.slug
		ORDER BY range DESC
		LIMIT 50`},

	domain.MetricWhiplash: {scan: scanRangeFamily, sql: `
		WITH series AS (
			SELECT
				t.market_id,
				m.question,
				m.slug,
				t.ts,
				t.probability,
				LAG(t.probability) OVER (PARTITION BY t.market_id ORDER BY t.ts) AS prev_p
			FROM market_ticks t
			JOIN markets m ON m.market_id = t.market_id
			WHERE t.ts >= now() - ($1::interval)
				AND t.probability IS NOT NULL
		)
		SELECT
			market_id,
			question,
			slug,
			NULL::double precision AS min_p,
			NULL::double precision AS max_p,
			NULL::double precision AS range,
			SUM(ABS(probability - prev_p)) AS whiplash,
			AVG(ABS(probability - prev_p)) AS avg_step,
			COUNT(*) AS n_points,
			NULL::double precision AS stddev
		FROM series
		WHERE prev_p IS NOT NULL
		GROUP BY market_id, question, slug
		ORDER BY whiplash DESC
		LIMIT 50`},

	domain.MetricStddev: {scan: scanRangeFamily, sql: `
		WITH series AS (
			SELECT
				t.market_id,
				m.question,
				m.slug,
				t.ts,
				t.probability,
				LAG(t.probability) OVER (PARTITION BY t.market_id ORDER BY t.ts) AS prev_p
			FROM market_ticks t
			JOIN markets m ON m.market_id = t.market_id
			WHERE t.ts >= now() - ($1::interval)
				AND t.probability IS NOT NULL
		),
		steps AS (
			SELECT
				market_id,
				question,
				slug,
				(probability - prev_p) AS step
			FROM series
			WHERE prev_p IS NOT NULL
		)
		SELECT
			market_id,
			question,
			slug,
			NULL::double precision AS min_p,
			NULL::double precision AS max_p,
			NULL::double precision AS range,
			NULL::double precision AS whiplash,
			NULL::double precision AS avg_step,
			COUNT(*) AS n_points,
			STDDEV_SAMP(step) AS stddev
		FROM steps
		GROUP BY market_id, question, slug
		ORDER BY stddev DESC NULLS LAST
		LIMIT 50`},

	domain.MetricMomentum: {scan: scanMomentum, sql: `
		WITH recent AS (
			SELECT
				market_id,
				STDDEV_SAMP(probability) AS std_1h
			FROM market_ticks
			WHERE ts >= now() - interval '1 hour'
				AND probability IS NOT NULL
			GROUP BY market_id
		),
		baseline AS (
			SELECT
				market_id,
				STDDEV_SAMP(probability) AS std_window
			FROM market_ticks
			WHERE ts >= now() - ($1::interval)
				AND probability IS NOT NULL
			GROUP BY market_id
		)
		SELECT
			m.market_id,
			m.question,
			m.slug,
			r.std_1h,
			b.std_window,
			(r.std_1h / NULLIF(b.std_window, 0)) AS momentum_ratio
		FROM recent r
		JOIN baseline b USING (market_id)
		JOIN markets m USING (market_id)
		ORDER BY momentum_ratio DESC NULLS LAST
		LIMIT 50`},

	domain.MetricSmartMoney: {scan: scanSmartMoney, sql: `
		WITH series AS (
			SELECT
				t.market_id,
				t.ts,
				t.probability,
				t.liquidity,
				LAG(t.probability) OVER (PARTITION BY t.market_id ORDER BY t.ts) AS prev_p
			FROM market_ticks t
			WHERE t.ts >= now() - ($1::interval)
				AND t.probability IS NOT NULL
		),
		scored AS (
			SELECT
				market_id,
				MAX(ABS(probability - prev_p)) AS max_step,
				AVG(liquidity) AS avg_liquidity
			FROM series
			WHERE prev_p IS NOT NULL
			GROUP BY market_id
		)
		SELECT
			m.market_id,
			m.question,
			m.slug,
			s.max_step,
			s.avg_liquidity,
			(s.max_step * LN(s.avg_liquidity + 1)) AS smart_money_score
		FROM scored s
		JOIN markets m USING (market_id)
		ORDER BY smart_money_score DESC
		LIMIT 50`},

	domain.MetricChop: {scan: scanChop, sql: `
		WITH steps AS (
			SELECT
				market_id,
				ABS(probability - LAG(probability)
				OVER (PARTITION BY market_id ORDER BY ts)) AS step
			FROM market_ticks
			WHERE ts >= now() - ($1::interval)
				AND probability IS NOT NULL
		)
		SELECT
			m.market_id,
			m.question,
			m.slug,
			COUNT(*) FILTER (WHERE step IS NOT NULL) AS n_points,
			AVG(step) AS chop_index,
			SUM(step) AS total_chop
		FROM steps s
		JOIN markets m USING (market_id)
		WHERE step IS NOT NULL
		GROUP BY m.market_id, m.question, m.slug
		ORDER BY chop_index DESC
		LIMIT 50`},

	domain.MetricStability: {scan: scanStability, sql: `
		WITH stats AS (
			SELECT
				market_id,
				MIN(probability) AS min_p,
				MAX(probability) AS max_p,
				COUNT(*) AS n_points
			FROM market_ticks
			WHERE ts >= now() - ($1::interval)
				AND probability IS NOT NULL
			GROUP BY market_id
		)
		SELECT
			m.market_id,
			m.question,
			m.slug,
			s.min_p,
			s.max_p,
			(s.max_p - s.min_p) AS range,
			s.n_points
		FROM stats s
		JOIN markets m USING (market_id)
		WHERE s.n_points >= 10
		ORDER BY range ASC
		LIMIT 50`},
}
