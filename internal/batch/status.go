package batch

import (
	"time"

	"github.com/ternarybob/conveyor/internal/models"
)

// Progress/ETA computation. Pure functions of a stats snapshot plus
// timestamps - no side effects, safe to call concurrently with the executor.

// PercentComplete returns the share of resolved items, 0-100.
// A zero total reports 0, never a division by zero.
func PercentComplete(stats models.JobStats) float64 {
	if stats.Total == 0 {
		return 0
	}
	return float64(stats.Resolved()) / float64(stats.Total) * 100
}

// RemainingEstimate extrapolates current throughput over the unresolved
// items. Throughput counts completed items only - failed and skipped items
// have a different cost profile. Returns nil when the job is not running or
// no item has completed yet.
func RemainingEstimate(state models.JobState, stats models.JobStats, elapsed time.Duration) *time.Duration {
	if state != models.JobStateRunning {
		return nil
	}
	if stats.Completed == 0 || elapsed <= 0 {
		return nil
	}

	throughput := float64(stats.Completed) / elapsed.Seconds()
	remaining := stats.Total - stats.Resolved()
	estimate := time.Duration(float64(remaining) / throughput * float64(time.Second))
	return &estimate
}

// BuildSnapshot assembles the read-only status view for one job at a given
// instant
func BuildSnapshot(job *models.Job, now time.Time) models.StatusSnapshot {
	state, stats := job.Snapshot()
	elapsed := now.Sub(job.StartedAt())

	snapshot := models.StatusSnapshot{
		JobID:           job.ID(),
		State:           state,
		Stats:           stats,
		PercentComplete: PercentComplete(stats),
		OutputDir:       job.OutputDir(),
		StartedAt:       job.StartedAt(),
		ElapsedSeconds:  elapsed.Seconds(),
	}

	if state == models.JobStateRunning {
		snapshot.CurrentItem = job.CurrentItem()
	}

	if estimate := RemainingEstimate(state, stats, elapsed); estimate != nil {
		remainingMS := estimate.Milliseconds()
		snapshot.RemainingEstimateMS = &remainingMS
	}

	return snapshot
}
