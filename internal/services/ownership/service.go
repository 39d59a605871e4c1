package ownership

import (
	"context"
	"fmt"
	"sync"

	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
)

// Compile-time interface check
var _ interfaces.OwnershipService = (*Service)(nil)

// Service implements OwnershipService. The built graph is cached until the
// ownership rows are replaced.
type Service struct {
	storage interfaces.StorageManager
	logger  *common.Logger

	mu    sync.RWMutex
	graph *Graph
}

// NewService creates a new ownership service
func NewService(storage interfaces.StorageManager, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// ReplaceRows validates rows before storing them, so a malformed source never
// replaces a good one.
func (s *Service) ReplaceRows(ctx context.Context, rows []*models.OwnershipRow) (interfaces.Hierarchy, error) {
	g, err := Build(rows)
	if err != nil {
		s.logger.Warn().Err(err).Int("rows", len(rows)).Msg("Ownership rows rejected")
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.OwnershipStore().ReplaceRows(ctx, rows); err != nil {
		return nil, fmt.Errorf("failed to store ownership rows: %w", err)
	}
	s.graph = g

	s.logger.Info().Int("rows", len(rows)).Int("nodes", g.Size()).Msg("Ownership hierarchy rebuilt")
	return g, nil
}

func (s *Service) Hierarchy(ctx context.Context) (interfaces.Hierarchy, error) {
	s.mu.RLock()
	g := s.graph
	s.mu.RUnlock()
	if g != nil {
		return g, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph != nil {
		return s.graph, nil
	}

	rows, err := s.storage.OwnershipStore().ListRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ownership rows: %w", err)
	}
	g, err = Build(rows)
	if err != nil {
		return nil, err
	}
	s.graph = g
	return g, nil
}

func (s *Service) GetOwnershipTree(ctx context.Context, rootKey string) (*models.OwnershipTree, error) {
	h, err := s.Hierarchy(ctx)
	if err != nil {
		return nil, err
	}
	return h.Tree(rootKey)
}
