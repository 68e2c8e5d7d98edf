// -----------------------------------------------------------------------
// Scheduler - cron-driven maintenance for the run history store
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conveyor/internal/interfaces"
)

// Service runs the periodic prune sweep over the history store, removing run
// records older than the retention window.
type Service struct {
	history   interfaces.HistoryStorage
	cron      *cron.Cron
	logger    arbor.ILogger
	retention time.Duration
	mu        sync.Mutex // Protects running and isPruning
	running   bool
	isPruning bool
}

// NewService creates a scheduler for the given history store and retention
// window
func NewService(history interfaces.HistoryStorage, retention time.Duration, logger arbor.ILogger) *Service {
	return &Service{
		history:   history,
		cron:      cron.New(),
		logger:    logger,
		retention: retention,
	}
}

// Start registers the prune sweep with the given cron expression and begins
// scheduling
func (s *Service) Start(cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if cronExpr == "" {
		cronExpr = "0 3 * * *" // Default: daily at 03:00
	}

	if _, err := s.cron.AddFunc(cronExpr, s.runPrune); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("cron_expr", cronExpr).
		Dur("retention", s.retention).
		Msg("History prune schedule started")

	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	// Stop returns a context that completes when running cron jobs exit
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.logger.Info().Msg("History prune schedule stopped")
}

// runPrune performs one prune sweep. Overlapping sweeps are skipped.
func (s *Service) runPrune() {
	s.mu.Lock()
	if s.isPruning {
		s.mu.Unlock()
		s.logger.Warn().Msg("Prune sweep already in progress, skipping")
		return
	}
	s.isPruning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isPruning = false
		s.mu.Unlock()
	}()

	cutoff := time.Now().Add(-s.retention)
	removed, err := s.history.PruneOlderThan(context.Background(), cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("History prune sweep failed")
		return
	}

	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("History prune sweep completed")
	} else {
		s.logger.Debug().Msg("History prune sweep completed, nothing to remove")
	}
}
