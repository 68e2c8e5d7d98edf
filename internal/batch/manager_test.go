package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conveyor/internal/models"
)

func newTestManager(t *testing.T, processor *mockProcessor, concurrency int, cleanupDelay time.Duration) *Manager {
	t.Helper()
	logger := arbor.NewLogger()
	registry := NewRegistry(cleanupDelay, logger)
	t.Cleanup(registry.Close)
	executor := NewExecutor(processor, nil, logger, concurrency)
	return NewManager(registry, executor, nil, nil, logger)
}

func waitForTerminal(t *testing.T, m *Manager, jobID string) models.StatusSnapshot {
	t.Helper()
	var snapshot models.StatusSnapshot
	require.Eventually(t, func() bool {
		s, err := m.GetJobStatus(context.Background(), jobID)
		if err != nil {
			return false
		}
		snapshot = s
		return s.State.IsTerminal()
	}, 5*time.Second, 2*time.Millisecond, "job never reached a terminal state")
	return snapshot
}

func TestStartBatchJobRejectsEmptyItems(t *testing.T) {
	m := newTestManager(t, &mockProcessor{}, 2, time.Minute)

	_, err := m.StartBatchJob(context.Background(), nil, nil, t.TempDir(), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestStartBatchJobRunsToCompletion(t *testing.T) {
	processor := &mockProcessor{delay: time.Millisecond}
	m := newTestManager(t, processor, 3, time.Minute)

	jobID, err := m.StartBatchJob(context.Background(), makeItems(10), nil, t.TempDir(), false)
	require.NoError(t, err)
	assert.Contains(t, jobID, "job_")

	snapshot := waitForTerminal(t, m, jobID)
	assert.Equal(t, models.JobStateCompleted, snapshot.State)
	assert.Equal(t, 10, snapshot.Stats.Completed)
	assert.Equal(t, float64(100), snapshot.PercentComplete)
	assert.Nil(t, snapshot.RemainingEstimateMS, "terminal jobs have no remaining estimate")
}

func TestStartBatchJobPartialFailuresStillComplete(t *testing.T) {
	processor := &mockProcessor{
		failItems: map[models.Item]bool{"item-01": true, "item-03": true},
	}
	m := newTestManager(t, processor, 5, time.Minute)

	jobID, err := m.StartBatchJob(context.Background(), makeItems(5), nil, t.TempDir(), false)
	require.NoError(t, err)

	snapshot := waitForTerminal(t, m, jobID)
	assert.Equal(t, models.JobStateCompleted, snapshot.State, "item failures never fail the job")
	assert.Equal(t, 3, snapshot.Stats.Completed)
	assert.Equal(t, 2, snapshot.Stats.Failed)
}

func TestCancelJobMidRun(t *testing.T) {
	gate := make(chan struct{})
	processor := &mockProcessor{gate: gate}
	m := newTestManager(t, processor, 3, time.Minute)

	jobID, err := m.StartBatchJob(context.Background(), makeItems(10), nil, t.TempDir(), false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&processor.current) == 3
	}, 2*time.Second, time.Millisecond)

	accepted, err := m.CancelJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.True(t, accepted)

	// Second cancel is a no-op
	accepted, err = m.CancelJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.False(t, accepted)

	close(gate)

	snapshot := waitForTerminal(t, m, jobID)
	assert.Equal(t, models.JobStateCancelled, snapshot.State)
	assert.Equal(t, 3, snapshot.Stats.Completed)
	assert.Equal(t, 7, snapshot.Stats.Skipped)
}

func TestCancelJobNotFound(t *testing.T) {
	m := newTestManager(t, &mockProcessor{}, 2, time.Minute)

	_, err := m.CancelJob(context.Background(), "job_missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCancelJobAfterCompletion(t *testing.T) {
	m := newTestManager(t, &mockProcessor{}, 2, time.Minute)

	jobID, err := m.StartBatchJob(context.Background(), makeItems(3), nil, t.TempDir(), false)
	require.NoError(t, err)
	waitForTerminal(t, m, jobID)

	accepted, err := m.CancelJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.False(t, accepted, "cancel after terminal state is rejected")
}

func TestGetJobStatusNotFound(t *testing.T) {
	m := newTestManager(t, &mockProcessor{}, 2, time.Minute)

	_, err := m.GetJobStatus(context.Background(), "job_missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestJobCleanupAfterDelay(t *testing.T) {
	m := newTestManager(t, &mockProcessor{}, 2, 30*time.Millisecond)

	jobID, err := m.StartBatchJob(context.Background(), makeItems(2), nil, t.TempDir(), false)
	require.NoError(t, err)

	// Terminal but still queryable inside the grace delay
	snapshot := waitForTerminal(t, m, jobID)
	assert.Equal(t, models.JobStateCompleted, snapshot.State)

	require.Eventually(t, func() bool {
		_, err := m.GetJobStatus(context.Background(), jobID)
		return errors.Is(err, ErrNotFound)
	}, 2*time.Second, 5*time.Millisecond, "job should be removed after the cleanup delay")
}

func TestListActiveJobs(t *testing.T) {
	gate := make(chan struct{})
	processor := &mockProcessor{gate: gate}
	m := newTestManager(t, processor, 1, time.Minute)

	assert.Empty(t, m.ListActiveJobs(context.Background()))

	jobID, err := m.StartBatchJob(context.Background(), makeItems(2), nil, t.TempDir(), false)
	require.NoError(t, err)

	ids := m.ListActiveJobs(context.Background())
	assert.Equal(t, []string{jobID}, ids)

	close(gate)
	waitForTerminal(t, m, jobID)
}

func TestRunningJobReportsEstimate(t *testing.T) {
	gate := make(chan struct{})
	processor := &mockProcessor{gate: gate, delay: 25 * time.Millisecond}
	m := newTestManager(t, processor, 1, time.Minute)

	jobID, err := m.StartBatchJob(context.Background(), makeItems(4), nil, t.TempDir(), false)
	require.NoError(t, err)

	// Before the first completion the estimate is unknown
	snapshot, err := m.GetJobStatus(context.Background(), jobID)
	require.NoError(t, err)
	assert.Nil(t, snapshot.RemainingEstimateMS)

	close(gate)

	// After the first completion a running job carries an estimate
	require.Eventually(t, func() bool {
		s, err := m.GetJobStatus(context.Background(), jobID)
		if err != nil || s.State != models.JobStateRunning {
			return false
		}
		return s.Stats.Completed > 0 && s.RemainingEstimateMS != nil
	}, 2*time.Second, time.Millisecond)

	waitForTerminal(t, m, jobID)
}
