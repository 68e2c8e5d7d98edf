// -----------------------------------------------------------------------
// JobHandler - REST surface over the batch job engine
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conveyor/internal/batch"
	"github.com/ternarybob/conveyor/internal/interfaces"
	"github.com/ternarybob/conveyor/internal/models"
	"github.com/ternarybob/conveyor/internal/processor"
)

// JobHandler handles job submission, status, cancellation and result lookups
type JobHandler struct {
	manager  *batch.Manager
	history  interfaces.HistoryStorage // Optional: may be nil when history is disabled
	logger   arbor.ILogger
	validate *validator.Validate
}

// NewJobHandler creates a new job handler
func NewJobHandler(manager *batch.Manager, history interfaces.HistoryStorage, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		manager:  manager,
		history:  history,
		logger:   logger,
		validate: validator.New(),
	}
}

// SubmitJobRequest is the POST /api/jobs payload
type SubmitJobRequest struct {
	Items     []string `json:"items" validate:"required,min=1"`
	OutputDir string   `json:"output_dir" validate:"required"`
	Overwrite bool     `json:"overwrite"`
}

// SubmitJob handles POST /api/jobs
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload: "+err.Error())
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	items := make([]models.Item, len(req.Items))
	for i, item := range req.Items {
		items[i] = models.Item(item)
	}

	config := &processor.Options{
		OutputDir: req.OutputDir,
		Overwrite: req.Overwrite,
	}

	jobID, err := h.manager.StartBatchJob(r.Context(), items, config, req.OutputDir, req.Overwrite)
	if err != nil {
		h.writeJobError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": jobID,
		"items":  len(items),
	})
}

// ListJobs handles GET /api/jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ids := h.manager.ListActiveJobs(r.Context())
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  ids,
		"count": len(ids),
	})
}

// HandleJobRoutes dispatches /api/jobs/{id}, /api/jobs/{id}/cancel and
// /api/jobs/{id}/result
func (h *JobHandler) HandleJobRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if rest == "" {
		WriteError(w, http.StatusBadRequest, "Missing job id")
		return
	}

	jobID, action, _ := strings.Cut(rest, "/")
	switch action {
	case "":
		if !RequireMethod(w, r, http.MethodGet) {
			return
		}
		h.getStatus(w, r, jobID)
	case "cancel":
		if !RequireMethod(w, r, http.MethodPost) {
			return
		}
		h.cancelJob(w, r, jobID)
	case "result":
		if !RequireMethod(w, r, http.MethodGet) {
			return
		}
		h.getResult(w, r, jobID)
	default:
		WriteError(w, http.StatusNotFound, "Unknown job action: "+action)
	}
}

// getStatus handles GET /api/jobs/{id}
func (h *JobHandler) getStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	snapshot, err := h.manager.GetJobStatus(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snapshot)
}

// cancelJob handles POST /api/jobs/{id}/cancel
func (h *JobHandler) cancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	accepted, err := h.manager.CancelJob(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":    jobID,
		"cancelled": accepted,
	})
}

// getResult handles GET /api/jobs/{id}/result from the history store
func (h *JobHandler) getResult(w http.ResponseWriter, r *http.Request, jobID string) {
	if h.history == nil {
		WriteError(w, http.StatusNotFound, "Run history is disabled")
		return
	}

	result, err := h.history.GetResult(r.Context(), jobID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "No result for job: "+jobID)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// writeJobError maps engine errors onto HTTP status codes
func (h *JobHandler) writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, batch.ErrInvalidInput):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, batch.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, batch.ErrOutputDir):
		WriteError(w, http.StatusInternalServerError, err.Error())
	default:
		h.logger.Error().Err(err).Msg("Unhandled job API error")
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}
