package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conveyor/internal/interfaces"
	"github.com/ternarybob/conveyor/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// HistoryStorage implements interfaces.HistoryStorage backed by BadgerDB.
// Records are keyed by job id; FinishedAt drives listing order and pruning.
type HistoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewHistoryStorage creates a BadgerDB-backed run history store
func NewHistoryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.HistoryStorage {
	return &HistoryStorage{
		db:     db,
		logger: logger,
	}
}

// SaveResult stores one finished run record
func (s *HistoryStorage) SaveResult(ctx context.Context, result *models.JobResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}
	if result.JobID == "" {
		return fmt.Errorf("result job id cannot be empty")
	}

	if err := s.db.Store().Upsert(result.JobID, result); err != nil {
		return fmt.Errorf("failed to save job result: %w", err)
	}

	s.logger.Debug().
		Str("job_id", result.JobID).
		Str("state", string(result.State)).
		Msg("Job result persisted")

	return nil
}

// GetResult retrieves the record for a job id
func (s *HistoryStorage) GetResult(ctx context.Context, jobID string) (*models.JobResult, error) {
	var result models.JobResult
	if err := s.db.Store().Get(jobID, &result); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("job result not found: %s", jobID)
		}
		return nil, fmt.Errorf("failed to get job result: %w", err)
	}
	return &result, nil
}

// ListResults returns the most recent records, newest first
func (s *HistoryStorage) ListResults(ctx context.Context, limit int) ([]*models.JobResult, error) {
	if limit <= 0 {
		limit = 50
	}

	var results []*models.JobResult
	query := badgerhold.Where("JobID").Ne("").SortBy("FinishedAt").Reverse().Limit(limit)
	if err := s.db.Store().Find(&results, query); err != nil {
		return nil, fmt.Errorf("failed to list job results: %w", err)
	}

	return results, nil
}

// PruneOlderThan removes records finished before the cutoff and returns the
// number removed
func (s *HistoryStorage) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	query := badgerhold.Where("FinishedAt").Lt(cutoff)

	count, err := s.db.Store().Count(&models.JobResult{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count prunable job results: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	if err := s.db.Store().DeleteMatching(&models.JobResult{}, query); err != nil {
		return 0, fmt.Errorf("failed to prune job results: %w", err)
	}

	s.logger.Info().
		Int("removed", int(count)).
		Str("cutoff", cutoff.Format(time.RFC3339)).
		Msg("Pruned old job results")

	return int(count), nil
}

// Close releases the underlying store
func (s *HistoryStorage) Close() error {
	return s.db.Close()
}
