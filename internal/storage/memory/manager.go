// Package memory implements the storage interfaces with in-process maps.
// It is the default backend for single-node deployments and the test double
// for every service.
package memory

import (
	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/interfaces"
)

// Manager implements interfaces.StorageManager in memory.
type Manager struct {
	logger *common.Logger

	positionStore  *PositionStore
	ownershipStore *OwnershipStore
	riskStatStore  *RiskStatStore
	jobStore       *JobStore
}

// NewManager creates an empty in-memory storage manager.
func NewManager(logger *common.Logger) *Manager {
	logger.Info().Msg("In-memory storage manager initialized")
	return &Manager{
		logger:         logger,
		positionStore:  NewPositionStore(),
		ownershipStore: NewOwnershipStore(),
		riskStatStore:  NewRiskStatStore(),
		jobStore:       NewJobStore(),
	}
}

func (m *Manager) PositionStore() interfaces.PositionStore   { return m.positionStore }
func (m *Manager) OwnershipStore() interfaces.OwnershipStore { return m.ownershipStore }
func (m *Manager) RiskStatStore() interfaces.RiskStatStore   { return m.riskStatStore }
func (m *Manager) JobStore() interfaces.JobStore             { return m.jobStore }

func (m *Manager) Close() error { return nil }

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
