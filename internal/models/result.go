package models

import "time"

// JobResult is the immutable record of one finished batch run, produced once
// at terminal transition. Persisted to the history store when enabled.
type JobResult struct {
	JobID           string      `json:"job_id"`
	State           JobState    `json:"state"`
	Total           int         `json:"total"`
	Completed       int         `json:"completed"`
	Failed          int         `json:"failed"`
	Skipped         int         `json:"skipped"`
	OutputDir       string      `json:"output_dir"`
	Artifacts       []string    `json:"artifacts,omitempty"`
	Errors          []ItemError `json:"errors,omitempty"`
	StartedAt       time.Time   `json:"started_at"`
	FinishedAt      time.Time   `json:"finished_at"`
	DurationSeconds float64     `json:"duration_seconds"`
}

// StatusSnapshot is the read-only view returned by status queries.
// RemainingEstimateMS is nil when the job is not running or throughput is
// still unknown.
type StatusSnapshot struct {
	JobID               string    `json:"job_id"`
	State               JobState  `json:"state"`
	Stats               JobStats  `json:"stats"`
	PercentComplete     float64   `json:"percent_complete"`
	CurrentItem         Item      `json:"current_item,omitempty"`
	OutputDir           string    `json:"output_dir"`
	StartedAt           time.Time `json:"started_at"`
	ElapsedSeconds      float64   `json:"elapsed_seconds"`
	RemainingEstimateMS *int64    `json:"remaining_estimate_ms,omitempty"`
}
