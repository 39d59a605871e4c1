package memory

import (
	"context"
	"sync"

	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
)

// OwnershipStore holds the current ownership source.
type OwnershipStore struct {
	mu   sync.RWMutex
	rows []*models.OwnershipRow
}

// NewOwnershipStore creates an empty OwnershipStore.
func NewOwnershipStore() *OwnershipStore {
	return &OwnershipStore{}
}

func (s *OwnershipStore) ReplaceRows(_ context.Context, rows []*models.OwnershipRow) error {
	cp := make([]*models.OwnershipRow, len(rows))
	for i, r := range rows {
		row := *r
		cp[i] = &row
	}

	s.mu.Lock()
	s.rows = cp
	s.mu.Unlock()
	return nil
}

func (s *OwnershipStore) ListRows(_ context.Context) ([]*models.OwnershipRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.OwnershipRow, len(s.rows))
	for i, r := range s.rows {
		row := *r
		out[i] = &row
	}
	return out, nil
}

var _ interfaces.OwnershipStore = (*OwnershipStore)(nil)
