package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/rollup/internal/models"
)

// ValueCipher converts monetary values to and from their at-rest tokens.
type ValueCipher interface {
	Encrypt(value decimal.Decimal) (string, error)
	Decrypt(token string) (decimal.Decimal, error)
}

// Hierarchy is a read-only, fully validated ownership forest.
type Hierarchy interface {
	// Resolve maps "level X, key Y" to a node. Returns *models.NotFoundError when absent.
	Resolve(level models.NodeType, key string) (*models.OwnershipNode, error)

	Node(id string) (*models.OwnershipNode, bool)
	Children(id string) []*models.OwnershipNode
	Ancestors(id string) []*models.OwnershipNode

	// Path returns the nodes from the client down to id, inclusive.
	Path(id string) []*models.OwnershipNode

	// DescendantAccounts returns the account ids under id (id itself when it is an account).
	DescendantAccounts(id string) []string

	// Tree renders the subtree at rootKey; an empty key yields the "All Clients" root.
	Tree(rootKey string) (*models.OwnershipTree, error)
}

// OwnershipService owns the current ownership hierarchy.
type OwnershipService interface {
	// ReplaceRows validates and stores a new ownership source. The stored rows
	// and the cached hierarchy are left untouched when validation fails.
	ReplaceRows(ctx context.Context, rows []*models.OwnershipRow) (Hierarchy, error)

	// Hierarchy returns the current hierarchy, building it from storage on first use.
	Hierarchy(ctx context.Context) (Hierarchy, error)

	GetOwnershipTree(ctx context.Context, rootKey string) (*models.OwnershipTree, error)
}

// PositionService ingests position snapshots.
type PositionService interface {
	IngestSnapshot(ctx context.Context, date time.Time, inputs []*models.PositionInput) (*models.SnapshotInfo, error)
	ListSnapshots(ctx context.Context) ([]*models.SnapshotInfo, error)
}

// RollupService aggregates positions over the ownership hierarchy.
type RollupService interface {
	// Aggregate computes the rollup of nodeID and every descendant on date.
	Aggregate(ctx context.Context, h Hierarchy, nodeID string, date time.Time) (*models.RollupResult, error)

	// TotalValue computes only the total value of nodeID on date.
	// noData is true when no position exists for the node on that date.
	TotalValue(ctx context.Context, h Hierarchy, nodeID string, date time.Time) (total decimal.Decimal, noData bool, err error)
}

// PerformanceService derives period returns from snapshot totals.
type PerformanceService interface {
	Compute(ctx context.Context, h Hierarchy, nodeID string, date time.Time, current decimal.Decimal) (map[string]*models.PeriodReturn, error)
}

// ReportService assembles reports for presentation layers.
type ReportService interface {
	GetReport(ctx context.Context, date time.Time, level models.NodeType, key string) (*models.Report, error)
}

// RiskStatSource yields risk-stat rows for an ingestion job.
type RiskStatSource interface {
	// Len returns the number of rows, or -1 if unknown upfront.
	Len() int
	// Next returns the next row, or io.EOF when exhausted.
	Next(ctx context.Context) (*models.RiskStatRecord, error)
	// Describe returns a short label recorded on the job.
	Describe() string
}

// SubmitOptions configures a risk-stats ingestion job.
type SubmitOptions struct {
	BatchSize int
	Workers   int
}

// JobManager runs risk-stats ingestion jobs in the background.
type JobManager interface {
	Submit(ctx context.Context, source RiskStatSource, opts SubmitOptions) (string, error)
	GetStatus(ctx context.Context, id string) (*models.IngestionJob, error)
	ListJobs(ctx context.Context, limit int) ([]*models.IngestionJob, error)
}
