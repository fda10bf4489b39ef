package api

import (
	"time"

	"matchsync/internal/season"
	"matchsync/pkg/types"
)

// StartJobRequest captures the payload used to trigger a sync job.
type StartJobRequest struct {
	// Kind is "pass" for a one-off reconciliation pass or "season" for
	// a full calendar sync.
	Kind     string `json:"kind"`
	LeagueID string `json:"league_id,omitempty"`
}

// JobStatus captures the lifecycle stage of a triggered job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusRunning    JobStatus = "running"
	JobStatusCancelling JobStatus = "cancelling"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusFailed     JobStatus = "failed"
)

// JobSummary surfaces the high-level state of a triggered job.
type JobSummary struct {
	JobID         string            `json:"job_id"`
	Kind          string            `json:"kind"`
	LeagueID      string            `json:"league_id,omitempty"`
	RunID         string            `json:"run_id"`
	Status        JobStatus         `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	Message       string            `json:"message,omitempty"`
	Error         string            `json:"error,omitempty"`
	PassReport    *types.PassReport `json:"pass_report,omitempty"`
	SeasonReports []season.Report   `json:"season_reports,omitempty"`
}

// SSEEvent envelopes job state for Server-Sent Event clients.
type SSEEvent struct {
	Type      string     `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Job       JobSummary `json:"job"`
}
