package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/acyclops/marketpulse/internal/analytics"
	"github.com/acyclops/marketpulse/internal/domain"
)

const (
	defaultSearchLimit = 12
	maxSearchLimit     = 200
)

// MarketQueryService answers per-market and search queries.
type MarketQueryService interface {
	Timeseries(ctx context.Context, slug string, window domain.Window) ([]domain.TimeseriesPoint, error)
	Summary(ctx context.Context, slug string, window domain.Window) (domain.MarketSummary, error)
	Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error)
}

type MarketHandler struct {
	svc    MarketQueryService
	logger *slog.Logger
}

func NewMarketHandler(svc MarketQueryService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		svc:    svc,
		logger: logger.With("handler", "market"),
	}
}

// GetTimeseries serves GET /api/markets/{slug}/timeseries. A slug with no
// ticks in the window yields an empty points array, not a 404.
func (h *MarketHandler) GetTimeseries(w http.ResponseWriter, r *http.Request) {
	slug := pathParam(r, "slug")
	window, _ := analytics.ParseWindow(r.URL.Query().Get("window"))

	points, err := h.svc.Timeseries(r.Context(), slug, window)
	if err != nil {
		h.logger.Error("fetching timeseries", "slug", slug, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch timeseries")
		return
	}
	if points == nil {
		points = []domain.TimeseriesPoint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"slug":   slug,
		"window": window,
		"points": points,
	})
}

// GetSummary serves GET /api/markets/{slug}/summary.
func (h *MarketHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	slug := pathParam(r, "slug")
	window, _ := analytics.ParseWindow(r.URL.Query().Get("window"))

	summary, err := h.svc.Summary(r.Context(), slug, window)
	if err != nil {
		h.logger.Error("computing summary", "slug", slug, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Search serves GET /api/markets/search?q=...&limit=n. Queries shorter than
// two characters return an empty result set rather than an error.
func (h *MarketHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		h.logger.Error("searching markets", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
