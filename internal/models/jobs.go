package models

import "time"

// Job status constants
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// IngestionJob is one bulk refresh of risk statistics. It is created by a
// submit call, mutated only by the coordinator executing it and read by pollers.
type IngestionJob struct {
	ID                    string    `json:"id"`
	Status                string    `json:"status"`
	Source                string    `json:"source,omitempty"` // human-readable description of the input
	BatchSize             int       `json:"batch_size"`
	Workers               int       `json:"workers"`
	CreatedAt             time.Time `json:"created_at"`
	StartedAt             time.Time `json:"started_at"`
	CompletedAt           time.Time `json:"completed_at"`
	ExpectedRecords       int       `json:"expected_records"` // -1 when unknown upfront
	ProcessedRecords      int       `json:"processed_records"`
	TotalRecords          int       `json:"total_records"` // set on completion
	BatchesCompleted      int       `json:"batches_completed"`
	ProgressEstimate      float64   `json:"progress_estimate"`
	ProgressIndeterminate bool      `json:"progress_indeterminate"`
	ErrorMessage          string    `json:"error_message,omitempty"`
	DurationMS            int64     `json:"duration_ms"`
}

// IsTerminal reports whether the job can no longer change state.
func (j *IngestionJob) IsTerminal() bool {
	return IsTerminalJobStatus(j.Status)
}

// IsTerminalJobStatus reports whether status is completed or failed.
func IsTerminalJobStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// jobStatusRank orders statuses along the only permitted path.
func jobStatusRank(status string) int {
	switch status {
	case JobStatusPending:
		return 0
	case JobStatusRunning:
		return 1
	case JobStatusCompleted, JobStatusFailed:
		return 2
	default:
		return -1
	}
}

// CanTransitionJob reports whether a job may move from one status to another.
// Staying in the same non-terminal status is allowed (progress updates);
// pending may fail directly (e.g. rejected before any worker started).
func CanTransitionJob(from, to string) bool {
	rf, rt := jobStatusRank(from), jobStatusRank(to)
	if rf < 0 || rt < 0 {
		return false
	}
	if IsTerminalJobStatus(from) {
		return false
	}
	if from == to {
		return true
	}
	if from == JobStatusPending && to == JobStatusCompleted {
		return false
	}
	return rt > rf
}

// JobEvent is broadcast via WebSocket when job state changes.
type JobEvent struct {
	Type      string        `json:"type"` // "job_queued", "job_started", "job_progress", "job_completed", "job_failed"
	Job       *IngestionJob `json:"job"`
	Timestamp time.Time     `json:"timestamp"`
	QueueSize int           `json:"queue_size"`
}
