package batch

import "errors"

// Engine error taxonomy. Submission-time and lookup errors are surfaced
// synchronously and classified with errors.Is; per-item failures are never
// returned as errors - they are isolated into the job's result.
var (
	// ErrInvalidInput marks a malformed submission, rejected before the job
	// enters the registry.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks operations referencing an unknown or already
	// cleaned-up job id.
	ErrNotFound = errors.New("job not found")

	// ErrOutputDir marks a failure to prepare the job's output directory,
	// surfaced from StartBatchJob before the job is registered.
	ErrOutputDir = errors.New("output directory unavailable")
)
