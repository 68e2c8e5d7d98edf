package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conveyor/internal/interfaces"
	"github.com/ternarybob/conveyor/internal/models"
)

// mockHistory counts prune calls and records the cutoff
type mockHistory struct {
	pruneCalls int32
	pruneErr   error
	lastCutoff atomic.Value
}

var _ interfaces.HistoryStorage = (*mockHistory)(nil)

func (m *mockHistory) SaveResult(ctx context.Context, result *models.JobResult) error { return nil }
func (m *mockHistory) GetResult(ctx context.Context, jobID string) (*models.JobResult, error) {
	return nil, fmt.Errorf("not found")
}
func (m *mockHistory) ListResults(ctx context.Context, limit int) ([]*models.JobResult, error) {
	return nil, nil
}
func (m *mockHistory) Close() error { return nil }

func (m *mockHistory) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	atomic.AddInt32(&m.pruneCalls, 1)
	m.lastCutoff.Store(cutoff)
	if m.pruneErr != nil {
		return 0, m.pruneErr
	}
	return 2, nil
}

func TestSchedulerStartStop(t *testing.T) {
	history := &mockHistory{}
	svc := NewService(history, 24*time.Hour, arbor.NewLogger())

	require.NoError(t, svc.Start("0 3 * * *"))
	assert.Error(t, svc.Start("0 3 * * *"), "double start should fail")

	svc.Stop()
	// Stop is idempotent
	svc.Stop()
}

func TestSchedulerRejectsBadCron(t *testing.T) {
	svc := NewService(&mockHistory{}, 24*time.Hour, arbor.NewLogger())
	assert.Error(t, svc.Start("not a cron expression"))
}

func TestRunPruneUsesRetentionWindow(t *testing.T) {
	history := &mockHistory{}
	retention := 48 * time.Hour
	svc := NewService(history, retention, arbor.NewLogger())

	before := time.Now().Add(-retention)
	svc.runPrune()
	after := time.Now().Add(-retention)

	require.Equal(t, int32(1), atomic.LoadInt32(&history.pruneCalls))

	cutoff := history.lastCutoff.Load().(time.Time)
	assert.False(t, cutoff.Before(before))
	assert.False(t, cutoff.After(after))
}

func TestRunPruneSurvivesStorageError(t *testing.T) {
	history := &mockHistory{pruneErr: fmt.Errorf("disk on fire")}
	svc := NewService(history, time.Hour, arbor.NewLogger())

	svc.runPrune()
	svc.runPrune()

	assert.Equal(t, int32(2), atomic.LoadInt32(&history.pruneCalls))
}
