package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
)

type snapshot struct {
	date       time.Time
	byAccount  map[string][]*models.Position
	count      int
	ingestedAt time.Time
}

// PositionStore keeps one immutable snapshot per date.
type PositionStore struct {
	mu        sync.RWMutex
	snapshots map[string]*snapshot
}

// NewPositionStore creates an empty PositionStore.
func NewPositionStore() *PositionStore {
	return &PositionStore{snapshots: make(map[string]*snapshot)}
}

func (s *PositionStore) PutSnapshot(_ context.Context, date time.Time, positions []*models.Position) error {
	date = models.DateOf(date)
	key := models.FormatDate(date)

	snap := &snapshot{
		date:       date,
		byAccount:  make(map[string][]*models.Position),
		count:      len(positions),
		ingestedAt: time.Now(),
	}
	for _, p := range positions {
		cp := *p
		cp.AsOf = date
		snap.byAccount[cp.AccountID] = append(snap.byAccount[cp.AccountID], &cp)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.snapshots[key]; exists {
		return fmt.Errorf("%w: %s", models.ErrSnapshotExists, key)
	}
	s.snapshots[key] = snap
	return nil
}

func (s *PositionStore) ListByAccounts(_ context.Context, date time.Time, accountIDs []string) ([]*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[models.FormatDate(date)]
	if !ok {
		return nil, nil
	}

	var out []*models.Position
	for _, id := range accountIDs {
		for _, p := range snap.byAccount[id] {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *PositionStore) HasSnapshot(_ context.Context, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.snapshots[models.FormatDate(date)]
	return ok, nil
}

func (s *PositionStore) SnapshotDates(_ context.Context) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dates := make([]time.Time, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		dates = append(dates, snap.date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func (s *PositionStore) ListSnapshots(_ context.Context) ([]*models.SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]*models.SnapshotInfo, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		infos = append(infos, &models.SnapshotInfo{
			Date:          snap.date,
			PositionCount: snap.count,
			IngestedAt:    snap.ingestedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Date.Before(infos[j].Date) })
	return infos, nil
}

var _ interfaces.PositionStore = (*PositionStore)(nil)
