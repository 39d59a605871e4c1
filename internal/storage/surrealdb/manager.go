// Package surrealdb implements the storage interfaces on SurrealDB.
package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/interfaces"
)

// tables are defined up front; SurrealDB v3 errors when querying a table that does not exist.
var tables = []string{"position", "snapshot", "ownership", "risk_stat", "risk_partition", "ingest_job"}

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	positionStore  *PositionStore
	ownershipStore *OwnershipStore
	riskStatStore  *RiskStatStore
	jobStore       *JobStore
}

// NewManager creates a new StorageManager connected to SurrealDB.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.Username,
		"pass": config.Storage.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	m, err := newManagerFromDB(ctx, db, logger)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

// newManagerFromDB defines the schema on an already selected database.
func newManagerFromDB(ctx context.Context, db *surrealdb.DB, logger *common.Logger) (*Manager, error) {
	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	indexes := []string{
		"DEFINE INDEX IF NOT EXISTS position_date_account ON position FIELDS snapshot_date, account_id",
		"DEFINE INDEX IF NOT EXISTS risk_stat_ticker ON risk_stat FIELDS ticker, snapshot_date",
		"DEFINE INDEX IF NOT EXISTS risk_partition_job ON risk_partition FIELDS job_id",
	}
	for _, sql := range indexes {
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define index: %w", err)
		}
	}

	return &Manager{
		db:             db,
		logger:         logger,
		positionStore:  NewPositionStore(db, logger),
		ownershipStore: NewOwnershipStore(db, logger),
		riskStatStore:  NewRiskStatStore(db, logger),
		jobStore:       NewJobStore(db, logger),
	}, nil
}

func (m *Manager) PositionStore() interfaces.PositionStore   { return m.positionStore }
func (m *Manager) OwnershipStore() interfaces.OwnershipStore { return m.ownershipStore }
func (m *Manager) RiskStatStore() interfaces.RiskStatStore   { return m.riskStatStore }
func (m *Manager) JobStore() interfaces.JobStore             { return m.jobStore }

func (m *Manager) Close() error {
	return m.db.Close(context.Background())
}

// firstResult unwraps the result set of the first statement of a query.
func firstResult[T any](results *[]surrealdb.QueryResult[[]T]) []T {
	if results == nil || len(*results) == 0 {
		return nil
	}
	return (*results)[0].Result
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
