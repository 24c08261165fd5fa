package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/acyclops/marketpulse/internal/domain"
)

// StatusReader fetches the status row of a named pipeline.
type StatusReader interface {
	Get(ctx context.Context, pipeline string) (domain.PipelineStatus, error)
}

type StatusHandler struct {
	status   StatusReader
	pipeline string
	logger   *slog.Logger
}

func NewStatusHandler(status StatusReader, pipeline string, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		status:   status,
		pipeline: pipeline,
		logger:   logger.With("handler", "status"),
	}
}

// GetStatus returns the pipeline status row. A pipeline that has never run
// yields a null body rather than an error, so dashboards can poll it before
// the first run.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.status.Get(r.Context(), h.pipeline)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusOK, nil)
			return
		}
		h.logger.Error("fetching pipeline status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch pipeline status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
