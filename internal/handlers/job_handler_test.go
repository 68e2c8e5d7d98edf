package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conveyor/internal/batch"
	"github.com/ternarybob/conveyor/internal/interfaces"
	"github.com/ternarybob/conveyor/internal/models"
)

// stubProcessor succeeds for every item without touching the filesystem
type stubProcessor struct{}

var _ interfaces.ItemProcessor = (*stubProcessor)(nil)

func (p *stubProcessor) Process(ctx context.Context, item models.Item, config models.JobConfig) ([]string, error) {
	return []string{"/out/" + string(item)}, nil
}

func newTestJobHandler(t *testing.T) *JobHandler {
	t.Helper()
	logger := arbor.NewLogger()
	registry := batch.NewRegistry(time.Minute, logger)
	t.Cleanup(registry.Close)
	executor := batch.NewExecutor(&stubProcessor{}, nil, logger, 2)
	manager := batch.NewManager(registry, executor, nil, nil, logger)
	return NewJobHandler(manager, nil, logger)
}

func submitJob(t *testing.T, h *JobHandler, outputDir string, items []string) string {
	t.Helper()

	body, err := json.Marshal(SubmitJobRequest{Items: items, OutputDir: outputDir})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.SubmitJob(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	jobID, ok := resp["job_id"].(string)
	require.True(t, ok)
	return jobID
}

func TestSubmitJobAccepted(t *testing.T) {
	h := newTestJobHandler(t)

	jobID := submitJob(t, h, t.TempDir(), []string{"a.jpg", "b.jpg"})
	assert.Contains(t, jobID, "job_")
}

func TestSubmitJobRejectsEmptyItems(t *testing.T) {
	h := newTestJobHandler(t)

	body := fmt.Sprintf(`{"items": [], "output_dir": %q}`, t.TempDir())
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.SubmitJob(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitJobRejectsMissingOutputDir(t *testing.T) {
	h := newTestJobHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader([]byte(`{"items": ["a.jpg"]}`)))
	rec := httptest.NewRecorder()
	h.SubmitJob(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitJobRejectsInvalidJSON(t *testing.T) {
	h := newTestJobHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.SubmitJob(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStatusFlow(t *testing.T) {
	h := newTestJobHandler(t)
	jobID := submitJob(t, h, t.TempDir(), []string{"a.jpg", "b.jpg", "c.jpg"})

	var snapshot models.StatusSnapshot
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID, nil)
		rec := httptest.NewRecorder()
		h.HandleJobRoutes(rec, req)
		if rec.Code != http.StatusOK {
			return false
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
		return snapshot.State.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, models.JobStateCompleted, snapshot.State)
	assert.Equal(t, 3, snapshot.Stats.Completed)
	assert.Equal(t, float64(100), snapshot.PercentComplete)
}

func TestGetStatusNotFound(t *testing.T) {
	h := newTestJobHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job_missing", nil)
	rec := httptest.NewRecorder()
	h.HandleJobRoutes(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelJobNotFound(t *testing.T) {
	h := newTestJobHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/job_missing/cancel", nil)
	rec := httptest.NewRecorder()
	h.HandleJobRoutes(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelJobWrongMethod(t *testing.T) {
	h := newTestJobHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job_x/cancel", nil)
	rec := httptest.NewRecorder()
	h.HandleJobRoutes(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUnknownJobAction(t *testing.T) {
	h := newTestJobHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job_x/frobnicate", nil)
	rec := httptest.NewRecorder()
	h.HandleJobRoutes(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetResultWithHistoryDisabled(t *testing.T) {
	h := newTestJobHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job_x/result", nil)
	rec := httptest.NewRecorder()
	h.HandleJobRoutes(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobs(t *testing.T) {
	h := newTestJobHandler(t)
	jobID := submitJob(t, h, t.TempDir(), []string{"a.jpg"})

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	rec := httptest.NewRecorder()
	h.ListJobs(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs  []string `json:"jobs"`
		Count int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Contains(t, resp.Jobs, jobID)
}
