package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/conveyor/internal/models"
)

// HistoryStorage persists immutable JobResult records after terminal
// transition. It is a post-mortem record only - the live registry never
// reads from it and job state is not resurrected across restarts.
type HistoryStorage interface {
	// SaveResult stores one finished run record
	SaveResult(ctx context.Context, result *models.JobResult) error

	// GetResult retrieves the record for a job id
	GetResult(ctx context.Context, jobID string) (*models.JobResult, error)

	// ListResults returns the most recent records, newest first
	ListResults(ctx context.Context, limit int) ([]*models.JobResult, error)

	// PruneOlderThan removes records finished before the cutoff and returns
	// the number removed
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases the underlying store
	Close() error
}
