// -----------------------------------------------------------------------
// Manager - public facade for the batch job engine
// -----------------------------------------------------------------------

package batch

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conveyor/internal/common"
	"github.com/ternarybob/conveyor/internal/interfaces"
	"github.com/ternarybob/conveyor/internal/models"
)

// Manager composes the registry, executor, event bus and history store
// behind the engine's public API. Its methods are non-blocking and safe to
// call from any goroutine.
type Manager struct {
	registry *Registry
	executor *Executor
	events   interfaces.EventService   // Optional: may be nil for testing
	history  interfaces.HistoryStorage // Optional: may be nil when history is disabled
	logger   arbor.ILogger
}

// NewManager creates the engine facade
func NewManager(registry *Registry, executor *Executor, events interfaces.EventService, history interfaces.HistoryStorage, logger arbor.ILogger) *Manager {
	return &Manager{
		registry: registry,
		executor: executor,
		events:   events,
		history:  history,
		logger:   logger,
	}
}

// StartBatchJob validates the submission, prepares the output directory,
// registers the job and launches its executor in the background. Returns the
// job id immediately - the caller never waits for completion.
func (m *Manager) StartBatchJob(ctx context.Context, items []models.Item, config models.JobConfig, outputDir string, overwrite bool) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("%w: item list is empty", ErrInvalidInput)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("%w: create %s: %v", ErrOutputDir, outputDir, err)
	}

	jobID := common.NewJobID()
	job := models.NewJob(jobID, items, config, outputDir, overwrite)

	if err := m.registry.Register(job); err != nil {
		return "", fmt.Errorf("register job: %w", err)
	}

	m.logger.Info().
		Str("job_id", jobID).
		Int("items", len(items)).
		Int("concurrency", m.executor.Concurrency()).
		Str("output_dir", outputDir).
		Msg("Batch job started")

	common.SafeGo(m.logger, "job:"+jobID, func() {
		m.runJob(job)
	})

	return jobID, nil
}

// CancelJob requests cooperative cancellation. Returns false when the job is
// already terminal or a cancel was already requested; the call returns before
// in-flight items necessarily stop.
func (m *Manager) CancelJob(ctx context.Context, jobID string) (bool, error) {
	job, ok := m.registry.Get(jobID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}

	accepted := job.RequestCancel()
	if accepted {
		m.logger.Info().Str("job_id", jobID).Msg("Job cancellation requested")
	} else {
		m.logger.Debug().Str("job_id", jobID).Msg("Job cancellation ignored (terminal or already requested)")
	}
	return accepted, nil
}

// GetJobStatus returns a consistent snapshot of the job's progress. Fails
// with ErrNotFound once the job has been cleaned up after its grace delay.
func (m *Manager) GetJobStatus(ctx context.Context, jobID string) (models.StatusSnapshot, error) {
	job, ok := m.registry.Get(jobID)
	if !ok {
		return models.StatusSnapshot{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return BuildSnapshot(job, time.Now()), nil
}

// ListActiveJobs returns the ids currently present in the registry
func (m *Manager) ListActiveJobs(ctx context.Context) []string {
	return m.registry.ActiveIDs()
}

// runJob is the per-job background task: it drives the executor and performs
// the terminal transition exactly once.
func (m *Manager) runJob(job *models.Job) {
	ctx := context.Background()

	// A fault in the orchestration loop itself - not an individual item -
	// is the only path to state failed.
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)

			m.logger.Error().
				Str("job_id", job.ID()).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(buf[:n])).
				Msg("Orchestration failure - job failed")

			m.finalize(ctx, job, models.JobStateFailed)
		}
	}()

	// A cancel that raced submission leaves the job in cancelling; the
	// executor loop then skips every item.
	if err := job.SetState(models.JobStateRunning); err != nil {
		m.logger.Debug().Str("job_id", job.ID()).Msg("Job cancelled before dispatch began")
	}

	m.publish(ctx, interfaces.Event{
		Type: interfaces.EventBatchStarted,
		Payload: map[string]interface{}{
			"job_id":     job.ID(),
			"total":      len(job.Items()),
			"output_dir": job.OutputDir(),
		},
	})

	m.executor.Run(ctx, job)

	terminal := models.JobStateCompleted
	if job.CancelRequested() {
		terminal = models.JobStateCancelled
	}
	m.finalize(ctx, job, terminal)
}

// finalize performs the terminal transition: state change, result record,
// terminal event, history write and deferred registry cleanup.
func (m *Manager) finalize(ctx context.Context, job *models.Job, terminal models.JobState) {
	if err := job.SetState(terminal); err != nil {
		// Already terminal - finalize ran before (panic after finalize
		// cannot happen, but the transition guard keeps this idempotent)
		m.logger.Warn().Err(err).Str("job_id", job.ID()).Msg("Terminal transition rejected")
		return
	}

	result := job.BuildResult(time.Now())

	m.logger.Info().
		Str("job_id", job.ID()).
		Str("state", string(terminal)).
		Int("completed", result.Completed).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Dur("duration", time.Duration(result.DurationSeconds*float64(time.Second))).
		Msg("Batch job finished")

	m.publish(ctx, interfaces.Event{
		Type: terminalEventType(terminal),
		Payload: map[string]interface{}{
			"job_id":           job.ID(),
			"total":            result.Total,
			"completed":        result.Completed,
			"failed":           result.Failed,
			"skipped":          result.Skipped,
			"duration_seconds": result.DurationSeconds,
		},
	})

	// History is a best-effort side channel - a storage failure never
	// changes the job outcome
	if m.history != nil {
		common.SafeGo(m.logger, "history:"+job.ID(), func() {
			if err := m.history.SaveResult(context.Background(), result); err != nil {
				m.logger.Warn().Err(err).Str("job_id", job.ID()).Msg("Failed to persist job result")
			}
		})
	}

	m.registry.ScheduleCleanup(job.ID())
}

// publish emits an event fire-and-forget; publish errors are logged and
// swallowed, never propagated to the job outcome
func (m *Manager) publish(ctx context.Context, event interfaces.Event) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, event); err != nil {
		m.logger.Warn().Err(err).Str("event_type", string(event.Type)).Msg("Failed to publish event")
	}
}

func terminalEventType(state models.JobState) interfaces.EventType {
	switch state {
	case models.JobStateCancelled:
		return interfaces.EventBatchCancelled
	case models.JobStateFailed:
		return interfaces.EventBatchFailed
	default:
		return interfaces.EventBatchCompleted
	}
}
