package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/acyclops/marketpulse/internal/domain"
	"github.com/acyclops/marketpulse/internal/server/handler"
)

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type emptyStatus struct{}

func (emptyStatus) Get(context.Context, string) (domain.PipelineStatus, error) {
	return domain.PipelineStatus{}, domain.ErrNotFound
}

type noopAnalytics struct{}

func (noopAnalytics) Leaderboard(_ context.Context, m domain.Metric, w domain.Window) (domain.Leaderboard, error) {
	return domain.Leaderboard{Metric: m, Window: w}, nil
}

func (noopAnalytics) Timeseries(context.Context, string, domain.Window) ([]domain.TimeseriesPoint, error) {
	return nil, nil
}

func (noopAnalytics) Summary(_ context.Context, slug string, w domain.Window) (domain.MarketSummary, error) {
	return domain.MarketSummary{Slug: slug, Window: w}, nil
}

func (noopAnalytics) Search(context.Context, string, int) ([]domain.SearchResult, error) {
	return nil, nil
}

type noopTrigger struct{}

func (noopTrigger) Trigger() bool { return true }

func newTestServer() *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Handlers{
		Health:      handler.NewHealthHandler(okPinger{}),
		Status:      handler.NewStatusHandler(emptyStatus{}, "snapshot_ingest", logger),
		Leaderboard: handler.NewLeaderboardHandler(noopAnalytics{}, logger),
		Market:      handler.NewMarketHandler(noopAnalytics{}, logger),
		Pipeline:    handler.NewPipelineHandler(noopTrigger{}, logger),
	}
	return New(Config{Port: 0, CORSOrigins: []string{"https://app.example.com"}}, h, nil, logger)
}

func TestRouting(t *testing.T) {
	srv := newTestServer()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/api/status", http.StatusOK},
		{http.MethodGet, "/api/leaderboards/whiplash", http.StatusOK},
		{http.MethodGet, "/api/markets/search?q=rain", http.StatusOK},
		{http.MethodGet, "/api/markets/will-it-rain/timeseries", http.StatusOK},
		{http.MethodGet, "/api/markets/will-it-rain/summary", http.StatusOK},
		{http.MethodPost, "/api/pipeline/trigger", http.StatusAccepted},
		{http.MethodPost, "/api/health", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		srv.httpServer.Handler.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodOptions, "/api/leaderboards/whiplash", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestCORSUnknownOriginGetsNoHeader(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
	}
}
