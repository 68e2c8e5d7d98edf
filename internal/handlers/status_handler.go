package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conveyor/internal/batch"
	"github.com/ternarybob/conveyor/internal/common"
)

// StatusHandler serves the service status endpoint
type StatusHandler struct {
	manager   *batch.Manager
	logger    arbor.ILogger
	startedAt time.Time
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(manager *batch.Manager, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		manager:   manager,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// GetStatus handles GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	active := h.manager.ListActiveJobs(r.Context())

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"service":        "conveyor",
		"status":         "ok",
		"version":        common.GetVersion(),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"active_jobs":    len(active),
	})
}
