package handler

import (
	"log/slog"
	"net/http"
)

// Triggerer requests an out-of-schedule pipeline run. It reports false when
// a run is already pending, which callers treat as success: the work they
// asked for is going to happen either way.
type Triggerer interface {
	Trigger() bool
}

type PipelineHandler struct {
	trigger Triggerer
	logger  *slog.Logger
}

func NewPipelineHandler(trigger Triggerer, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{
		trigger: trigger,
		logger:  logger.With("handler", "pipeline"),
	}
}

// TriggerPipeline serves POST /api/pipeline/trigger. The run happens
// asynchronously; 202 means "queued", not "done".
func (h *PipelineHandler) TriggerPipeline(w http.ResponseWriter, r *http.Request) {
	queued := h.trigger.Trigger()
	h.logger.Info("pipeline trigger requested", "queued", queued)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": true,
		"queued":   queued,
	})
}
