package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/acyclops/marketpulse/internal/domain"
)

// Service answers the read-side queries. Leaderboards, timeseries, and
// summaries go through the result cache; search does not, its input space is
// too wide to get useful hit rates.
type Service struct {
	leaderboards domain.LeaderboardStore
	ticks        domain.TickStore
	markets      domain.MarketStore
	cache        domain.ResultCache
	cacheTTL     time.Duration
	logger       *slog.Logger
}

// NewService creates the analytics service.
func NewService(
	leaderboards domain.LeaderboardStore,
	ticks domain.TickStore,
	markets domain.MarketStore,
	cache domain.ResultCache,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *Service {
	return &Service{
		leaderboards: leaderboards,
		ticks:        ticks,
		markets:      markets,
		cache:        cache,
		cacheTTL:     cacheTTL,
		logger:       logger.With("component", "analytics"),
	}
}

// Leaderboard returns the ranked rows for one metric over one window.
// Metric and window must already be validated; an unknown metric still fails
// safely at the store's dispatch table.
func (s *Service) Leaderboard(ctx context.Context, metric domain.Metric, window domain.Window) (domain.Leaderboard, error) {
	key := fmt.Sprintf("leaderboard:v1:%s:%s", metric, window)

	data, err := s.cache.GetOrCompute(ctx, key, s.cacheTTL, func(ctx context.Context) ([]byte, error) {
		rows, err := s.leaderboards.Query(ctx, metric, window)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rows)
	})
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("analytics: leaderboard %s: %w", metric, err)
	}

	var rows []domain.LeaderboardRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return domain.Leaderboard{}, fmt.Errorf("analytics: decode cached leaderboard %s: %w", metric, err)
	}

	return domain.Leaderboard{Metric: metric, Window: window, Rows: rows}, nil
}

// Timeseries returns the ordered ticks for one market slug within the window.
func (s *Service) Timeseries(ctx context.Context, slug string, window domain.Window) ([]domain.TimeseriesPoint, error) {
	key := fmt.Sprintf("timeseries:v1:%s:%s", slug, window)

	data, err := s.cache.GetOrCompute(ctx, key, s.cacheTTL, func(ctx context.Context) ([]byte, error) {
		points, err := s.ticks.Timeseries(ctx, slug, window)
		if err != nil {
			return nil, err
		}
		return json.Marshal(points)
	})
	if err != nil {
		return nil, fmt.Errorf("analytics: timeseries %s: %w", slug, err)
	}

	var points []domain.TimeseriesPoint
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("analytics: decode cached timeseries %s: %w", slug, err)
	}
	return points, nil
}

// Summary computes the per-market volatility summary from the tick series.
// It rides on the cached timeseries, so a summary right after a chart view
// costs no extra query.
func (s *Service) Summary(ctx context.Context, slug string, window domain.Window) (domain.MarketSummary, error) {
	points, err := s.Timeseries(ctx, slug, window)
	if err != nil {
		return domain.MarketSummary{}, err
	}
	return Summarize(slug, window, points), nil
}

// Search performs free-text question search. Results are not cached.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	results, err := s.markets.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("analytics: search: %w", err)
	}
	return results, nil
}
