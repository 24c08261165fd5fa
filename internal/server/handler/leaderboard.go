package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/acyclops/marketpulse/internal/analytics"
	"github.com/acyclops/marketpulse/internal/domain"
)

// LeaderboardService computes (or serves from cache) one ranked leaderboard.
type LeaderboardService interface {
	Leaderboard(ctx context.Context, metric domain.Metric, window domain.Window) (domain.Leaderboard, error)
}

type LeaderboardHandler struct {
	svc    LeaderboardService
	logger *slog.Logger
}

func NewLeaderboardHandler(svc LeaderboardService, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		svc:    svc,
		logger: logger.With("handler", "leaderboard"),
	}
}

// GetLeaderboard serves GET /api/leaderboards/{metric}. An unknown metric is
// a 404: the metric set is closed, so an unrecognized name is an unknown
// resource, not a bad parameter. An unknown window falls back to the default.
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	metric, err := analytics.ParseMetric(pathParam(r, "metric"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown leaderboard")
		return
	}

	window, err := analytics.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		h.logger.Debug("unknown window, using default", "window", r.URL.Query().Get("window"))
	}

	lb, err := h.svc.Leaderboard(r.Context(), metric, window)
	if err != nil {
		h.logger.Error("computing leaderboard", "metric", metric, "window", window, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, lb)
}
