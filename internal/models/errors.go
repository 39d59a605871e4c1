package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRollupInvariant means a parent total differed from the sum of its children.
	// This is a defect, never a rounding artifact.
	ErrRollupInvariant = errors.New("rollup invariant violated")

	// ErrSnapshotExists is returned when a position snapshot for a date is ingested twice.
	ErrSnapshotExists = errors.New("position snapshot already exists for date")

	// ErrPartitionBusy is returned when a risk-stat date is already being written by another job.
	ErrPartitionBusy = errors.New("risk-stat partition is open by another job")

	// ErrInvalidJobRequest wraps submit validation failures.
	ErrInvalidJobRequest = errors.New("invalid job request")

	// ErrInvalidTransition is returned when a job status change would move backward
	// or leave a terminal state.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrQueueFull is returned when the job queue cannot accept more work.
	ErrQueueFull = errors.New("job queue is full")

	// ErrInvalidPosition wraps position snapshot validation failures.
	ErrInvalidPosition = errors.New("invalid position")

	// ErrAmbiguousKey is returned when a level key matches more than one node.
	ErrAmbiguousKey = errors.New("ambiguous hierarchy key")
)

// MalformedHierarchyError reports an inconsistent ownership graph. The build
// that produced it is aborted; a partially built tree is never returned.
type MalformedHierarchyError struct {
	Reason    string
	Conflicts []string
}

func (e *MalformedHierarchyError) Error() string {
	if len(e.Conflicts) == 0 {
		return "malformed hierarchy: " + e.Reason
	}
	return fmt.Sprintf("malformed hierarchy: %s (%s)", e.Reason, strings.Join(e.Conflicts, "; "))
}

// NotFoundError is returned when a requested entity does not exist.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// JobBatchFailure marks an ingestion job failed. It is retryable only by
// submitting a new job; the manager never retries automatically.
type JobBatchFailure struct {
	JobID   string
	Worker  int
	Batch   int
	Records int
	Err     error
}

func (e *JobBatchFailure) Error() string {
	return fmt.Sprintf("job %s: batch %d (worker %d, %d records) failed: %v", e.JobID, e.Batch, e.Worker, e.Records, e.Err)
}

func (e *JobBatchFailure) Unwrap() error { return e.Err }
