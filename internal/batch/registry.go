package batch

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conveyor/internal/models"
)

// Registry is the process-wide map from job id to live Job. Its lock guards
// only map mutation - it is independent of any job's internal lock, so
// registering a new job never blocks on another job's execution.
//
// Terminal jobs stay registered for cleanupDelay so that a status query
// shortly after completion still sees the final result.
type Registry struct {
	mu           sync.RWMutex
	jobs         map[string]*models.Job
	timers       map[string]*time.Timer
	cleanupDelay time.Duration
	logger       arbor.ILogger
	closed       bool
}

// NewRegistry creates a registry with the given terminal-job retention delay
func NewRegistry(cleanupDelay time.Duration, logger arbor.ILogger) *Registry {
	return &Registry{
		jobs:         make(map[string]*models.Job),
		timers:       make(map[string]*time.Timer),
		cleanupDelay: cleanupDelay,
		logger:       logger,
	}
}

// Register adds a job to the registry
func (r *Registry) Register(job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("registry is closed")
	}
	if _, exists := r.jobs[job.ID()]; exists {
		return fmt.Errorf("job %s already registered", job.ID())
	}

	r.jobs[job.ID()] = job

	r.logger.Debug().
		Str("job_id", job.ID()).
		Int("items", len(job.Items())).
		Msg("Job registered")

	return nil
}

// Get returns the job for an id, if still present
func (r *Registry) Get(jobID string) (*models.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	return job, ok
}

// ActiveIDs returns the ids currently present (running or recently terminal,
// pre-cleanup), sorted for stable output
func (r *Registry) ActiveIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.jobs))
	for id := range r.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered jobs
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// ScheduleCleanup arranges removal of the job after the cleanup delay.
// Called once per job at terminal transition.
func (r *Registry) ScheduleCleanup(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if _, exists := r.timers[jobID]; exists {
		return
	}

	r.timers[jobID] = time.AfterFunc(r.cleanupDelay, func() {
		r.Remove(jobID)
	})

	r.logger.Debug().
		Str("job_id", jobID).
		Dur("delay", r.cleanupDelay).
		Msg("Job cleanup scheduled")
}

// Remove deletes a job and its cleanup timer immediately
func (r *Registry) Remove(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if timer, ok := r.timers[jobID]; ok {
		timer.Stop()
		delete(r.timers, jobID)
	}
	if _, ok := r.jobs[jobID]; ok {
		delete(r.jobs, jobID)
		r.logger.Debug().Str("job_id", jobID).Msg("Job removed from registry")
	}
}

// Close stops all pending cleanup timers. Registered jobs are left in place
// for final status reads during shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for id, timer := range r.timers {
		timer.Stop()
		delete(r.timers, id)
	}
}
