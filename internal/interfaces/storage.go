// Package interfaces defines service contracts for the rollup engine
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/rollup/internal/models"
)

// StorageManager coordinates all storage backends
type StorageManager interface {
	PositionStore() PositionStore
	OwnershipStore() OwnershipStore
	RiskStatStore() RiskStatStore
	JobStore() JobStore

	// Lifecycle
	Close() error
}

// PositionStore holds position snapshots partitioned by date.
// A date's snapshot is immutable once written.
type PositionStore interface {
	// PutSnapshot writes every position of one snapshot date.
	// Returns models.ErrSnapshotExists if the date was already ingested.
	PutSnapshot(ctx context.Context, date time.Time, positions []*models.Position) error

	// ListByAccounts returns positions for the given accounts on exactly date.
	ListByAccounts(ctx context.Context, date time.Time, accountIDs []string) ([]*models.Position, error)

	// HasSnapshot reports whether any snapshot exists for date.
	HasSnapshot(ctx context.Context, date time.Time) (bool, error)

	// SnapshotDates returns all snapshot dates in ascending order.
	SnapshotDates(ctx context.Context) ([]time.Time, error)

	// ListSnapshots returns snapshot summaries in ascending date order.
	ListSnapshots(ctx context.Context) ([]*models.SnapshotInfo, error)
}

// OwnershipStore holds the ownership rows, keyed by account number.
type OwnershipStore interface {
	// ReplaceRows atomically replaces the full ownership source.
	ReplaceRows(ctx context.Context, rows []*models.OwnershipRow) error
	ListRows(ctx context.Context) ([]*models.OwnershipRow, error)
}

// RiskStatStore holds risk statistics keyed by (ticker, date) together with
// the per-date partitions that control what readers may see.
type RiskStatStore interface {
	// UpsertBatch writes records keyed by (ticker, date). Re-writing a key
	// replaces it; it never creates a duplicate.
	UpsertBatch(ctx context.Context, records []*models.RiskStatRecord) error

	// Latest returns, per ticker, the record with the greatest date <= asOf
	// among sealed partitions. Tickers without such a record are absent.
	Latest(ctx context.Context, tickers []string, asOf time.Time) (map[string]*models.RiskStatRecord, error)

	// Count returns the number of distinct (ticker, date) keys stored.
	Count(ctx context.Context) (int, error)

	// OpenPartitions hides dates from readers while jobID writes them.
	// Returns models.ErrPartitionBusy if another job holds one of them open.
	OpenPartitions(ctx context.Context, jobID string, dates []time.Time) error

	// SealPartitions publishes every partition jobID opened.
	SealPartitions(ctx context.Context, jobID string) error

	// AbandonPartitions releases jobID's partitions without publishing its
	// writes. A date that was sealed before jobID claimed it is sealed again
	// under its previous publisher; any other date becomes abandoned.
	AbandonPartitions(ctx context.Context, jobID string) error

	ListPartitions(ctx context.Context) ([]*models.RiskStatPartition, error)
}

// JobStore persists ingestion jobs, keyed by job id.
type JobStore interface {
	Create(ctx context.Context, job *models.IngestionJob) error

	// Update replaces a job record. Returns models.ErrInvalidTransition when the
	// stored status cannot move to job.Status.
	Update(ctx context.Context, job *models.IngestionJob) error

	// Get returns a copy of the job or a *models.NotFoundError.
	Get(ctx context.Context, id string) (*models.IngestionJob, error)

	// List returns jobs newest first.
	List(ctx context.Context, limit int) ([]*models.IngestionJob, error)

	// FailUnfinished marks every pending or running job failed with reason.
	// Used at start-up: jobs are never resumed across processes.
	FailUnfinished(ctx context.Context, reason string) (int, error)
}
