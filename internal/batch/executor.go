// -----------------------------------------------------------------------
// Executor - bounded-concurrency item loop for one batch job
// -----------------------------------------------------------------------

package batch

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conveyor/internal/interfaces"
	"github.com/ternarybob/conveyor/internal/models"
)

// Executor runs one job's item loop: fan-out over items through a counting
// semaphore of capacity concurrency, with per-item failure isolation and
// cooperative cancellation. Dispatch follows input order; completion order
// across items is unordered.
type Executor struct {
	processor   interfaces.ItemProcessor
	events      interfaces.EventService // Optional: may be nil for testing
	logger      arbor.ILogger
	concurrency int
}

// NewExecutor creates an executor with the given per-job item concurrency.
// Values below 1 are clamped to 1 (strictly sequential processing).
func NewExecutor(processor interfaces.ItemProcessor, events interfaces.EventService, logger arbor.ILogger, concurrency int) *Executor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Executor{
		processor:   processor,
		events:      events,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Concurrency returns the per-job item concurrency bound
func (e *Executor) Concurrency() int {
	return e.concurrency
}

// Run drives the item loop for one job and returns once every item is
// resolved (completed, failed or skipped). It does not decide the terminal
// state - the manager does that from the cancellation flag after Run returns.
func (e *Executor) Run(ctx context.Context, job *models.Job) {
	// Semaphore bounding how many items are inside the processor at once
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup

	for i, item := range job.Items() {
		// Cancelled items are skipped cheaply, without touching the semaphore
		if job.CancelRequested() {
			job.MarkSkipped()
			continue
		}

		job.MarkDispatched(i)

		// Blocks the dispatcher, not the whole process, until a slot frees
		sem <- struct{}{}
		wg.Add(1)
		go e.runItem(ctx, job, item, sem, &wg)
	}

	wg.Wait()
}

// runItem executes one item task. The semaphore slot is released by defer in
// every path - success, error, skip and panic - so a slot is never leaked.
func (e *Executor) runItem(ctx context.Context, job *models.Job, item models.Item, sem chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() { <-sem }()

	resolved := false
	defer func() {
		if r := recover(); r != nil {
			// A processor panic counts as that item's failure, nothing more
			err := fmt.Errorf("processor panic: %v", r)
			if !resolved {
				job.MarkFailed(item, err)
			}
			e.logger.Error().
				Str("job_id", job.ID()).
				Str("item", string(item)).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Recovered from panic in item task")
			e.emitItemError(ctx, job, item, err)
		}
	}()

	// A cancellation may have arrived while waiting for the slot
	if job.CancelRequested() {
		job.MarkSkipped()
		resolved = true
		return
	}

	artifacts, err := e.processor.Process(ctx, item, job.Config())
	if err != nil {
		job.MarkFailed(item, err)
		resolved = true

		e.logger.Warn().
			Err(err).
			Str("job_id", job.ID()).
			Str("item", string(item)).
			Msg("Item failed")

		e.emitItemError(ctx, job, item, err)
		return
	}

	job.MarkCompleted(artifacts)
	resolved = true

	e.logger.Debug().
		Str("job_id", job.ID()).
		Str("item", string(item)).
		Int("artifacts", len(artifacts)).
		Msg("Item processed")

	e.emitItemProcessed(ctx, job, item, artifacts)
}

func (e *Executor) emitItemProcessed(ctx context.Context, job *models.Job, item models.Item, artifacts []string) {
	if e.events == nil {
		return
	}

	_, stats := job.Snapshot()
	event := interfaces.Event{
		Type: interfaces.EventItemProcessed,
		Payload: map[string]interface{}{
			"job_id":           job.ID(),
			"item":             string(item),
			"artifacts":        artifacts,
			"percent_complete": PercentComplete(stats),
		},
	}

	if err := e.events.Publish(ctx, event); err != nil {
		e.logger.Warn().Err(err).Str("job_id", job.ID()).Msg("Failed to publish item event")
	}
}

func (e *Executor) emitItemError(ctx context.Context, job *models.Job, item models.Item, itemErr error) {
	if e.events == nil {
		return
	}

	event := interfaces.Event{
		Type: interfaces.EventItemError,
		Payload: map[string]interface{}{
			"job_id": job.ID(),
			"item":   string(item),
			"error":  itemErr.Error(),
		},
	}

	if err := e.events.Publish(ctx, event); err != nil {
		e.logger.Warn().Err(err).Str("job_id", job.ID()).Msg("Failed to publish item event")
	}
}
