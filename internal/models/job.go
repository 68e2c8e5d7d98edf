package models

import (
	"fmt"
	"sync"
	"time"
)

// JobState represents the state of a batch job
type JobState string

const (
	JobStateStarting   JobState = "starting"
	JobStateRunning    JobState = "running"
	JobStateCancelling JobState = "cancelling"
	JobStateCancelled  JobState = "cancelled"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
)

// jobTransitions is the allowed state machine. Single direction, no cycles.
// Per-item failures never drive a job to failed - only a fault in the
// orchestration loop itself does.
var jobTransitions = map[JobState][]JobState{
	JobStateStarting:   {JobStateRunning, JobStateCancelling, JobStateFailed},
	JobStateRunning:    {JobStateCompleted, JobStateCancelling, JobStateFailed},
	JobStateCancelling: {JobStateCancelled, JobStateFailed},
}

// IsTerminal reports whether the state is terminal
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateCompleted, JobStateCancelled, JobStateFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows s -> next
func (s JobState) CanTransitionTo(next JobState) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Item is an opaque reference to one unit of work (e.g. a file path).
// The engine assumes nothing beyond identity.
type Item string

// JobConfig is an opaque, immutable value shared read-only by all items in a
// job. The engine passes it to the processor unchanged and never inspects it.
type JobConfig interface{}

// JobStats holds the mutable counters for one job. Mutated only by the
// executor that owns the job; external readers get copies via Job.Snapshot.
type JobStats struct {
	Total        int `json:"total"`
	Completed    int `json:"completed"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
	CurrentIndex int `json:"current_index"`
}

// Resolved returns the number of items with a known outcome.
// Invariant: Resolved() <= Total at all times; equality holds once terminal.
func (s JobStats) Resolved() int {
	return s.Completed + s.Failed + s.Skipped
}

// ItemError records one item's processing failure
type ItemError struct {
	Item    Item   `json:"item"`
	Message string `json:"error"`
}

// Job is the record of one batch run. Submission parameters are immutable;
// state, cancellation flag, stats and accumulators are guarded by a single
// mutex so status queries always see a consistent snapshot while the executor
// mutates them.
type Job struct {
	id        string
	items     []Item
	config    JobConfig
	outputDir string
	overwrite bool
	startedAt time.Time

	mu              sync.Mutex
	state           JobState
	cancelRequested bool
	stats           JobStats
	artifacts       []string
	itemErrors      []ItemError
}

// NewJob creates a job in state starting with stats.Total fixed to len(items)
func NewJob(id string, items []Item, config JobConfig, outputDir string, overwrite bool) *Job {
	return &Job{
		id:        id,
		items:     items,
		config:    config,
		outputDir: outputDir,
		overwrite: overwrite,
		startedAt: time.Now(),
		state:     JobStateStarting,
		stats:     JobStats{Total: len(items), CurrentIndex: -1},
	}
}

// ID returns the job identifier
func (j *Job) ID() string { return j.id }

// Items returns the submitted item list. The slice is owned by the job and
// must not be mutated.
func (j *Job) Items() []Item { return j.items }

// Config returns the opaque job configuration
func (j *Job) Config() JobConfig { return j.config }

// OutputDir returns the output directory submitted with the job
func (j *Job) OutputDir() string { return j.outputDir }

// Overwrite returns the overwrite policy submitted with the job
func (j *Job) Overwrite() bool { return j.overwrite }

// StartedAt returns the submission timestamp
func (j *Job) StartedAt() time.Time { return j.startedAt }

// State returns the current state
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// SetState transitions the job to next, enforcing the state machine
func (j *Job) SetState(next JobState) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.state.CanTransitionTo(next) {
		return fmt.Errorf("invalid job state transition %s -> %s", j.state, next)
	}
	j.state = next
	return nil
}

// RequestCancel sets the cancellation flag and moves the job to cancelling.
// Returns false without effect when the job is already terminal or a cancel
// was already requested, so a second CancelJob call is a safe no-op.
func (j *Job) RequestCancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state.IsTerminal() || j.cancelRequested {
		return false
	}

	j.cancelRequested = true
	if j.state.CanTransitionTo(JobStateCancelling) {
		j.state = JobStateCancelling
	}
	return true
}

// CancelRequested reports whether cancellation has been requested.
// Read by the dispatcher before every item and by item tasks after they
// acquire a slot.
func (j *Job) CancelRequested() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelRequested
}

// MarkDispatched records the index of the last item handed to a task
func (j *Job) MarkDispatched(index int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stats.CurrentIndex = index
}

// MarkCompleted records a successful item and its produced artifacts
func (j *Job) MarkCompleted(artifacts []string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stats.Completed++
	j.artifacts = append(j.artifacts, artifacts...)
}

// MarkFailed records an isolated item failure
func (j *Job) MarkFailed(item Item, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stats.Failed++
	j.itemErrors = append(j.itemErrors, ItemError{Item: item, Message: err.Error()})
}

// MarkSkipped records an item that was never started due to cancellation
func (j *Job) MarkSkipped() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stats.Skipped++
}

// Snapshot returns a consistent copy of state, cancellation flag and stats
func (j *Job) Snapshot() (JobState, JobStats) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state, j.stats
}

// CurrentItem returns the item at the last dispatched index, or "" before
// the first dispatch
func (j *Job) CurrentItem() Item {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stats.CurrentIndex < 0 || j.stats.CurrentIndex >= len(j.items) {
		return ""
	}
	return j.items[j.stats.CurrentIndex]
}

// BuildResult constructs the immutable run record at terminal transition
func (j *Job) BuildResult(finishedAt time.Time) *JobResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	artifacts := make([]string, len(j.artifacts))
	copy(artifacts, j.artifacts)
	itemErrors := make([]ItemError, len(j.itemErrors))
	copy(itemErrors, j.itemErrors)

	return &JobResult{
		JobID:           j.id,
		State:           j.state,
		Total:           j.stats.Total,
		Completed:       j.stats.Completed,
		Failed:          j.stats.Failed,
		Skipped:         j.stats.Skipped,
		OutputDir:       j.outputDir,
		Artifacts:       artifacts,
		Errors:          itemErrors,
		StartedAt:       j.startedAt,
		FinishedAt:      finishedAt,
		DurationSeconds: finishedAt.Sub(j.startedAt).Seconds(),
	}
}
