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

// RiskStatStore keeps risk statistics per ticker and date, with per-date
// partitions gating reader visibility.
type RiskStatStore struct {
	mu         sync.RWMutex
	records    map[string]map[string]*models.RiskStatRecord // ticker -> date -> record
	count      int
	partitions map[string]*models.RiskStatPartition // date -> partition
}

// NewRiskStatStore creates an empty RiskStatStore.
func NewRiskStatStore() *RiskStatStore {
	return &RiskStatStore{
		records:    make(map[string]map[string]*models.RiskStatRecord),
		partitions: make(map[string]*models.RiskStatPartition),
	}
}

func cloneRecord(r *models.RiskStatRecord) *models.RiskStatRecord {
	cp := *r
	return &cp
}

func (s *RiskStatStore) UpsertBatch(_ context.Context, records []*models.RiskStatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		cp := cloneRecord(r)
		cp.Ticker = models.NormalizeTicker(cp.Ticker)
		cp.AsOf = models.DateOf(cp.AsOf)
		if cp.Ticker == "" {
			return fmt.Errorf("risk stat record without ticker")
		}

		byDate, ok := s.records[cp.Ticker]
		if !ok {
			byDate = make(map[string]*models.RiskStatRecord)
			s.records[cp.Ticker] = byDate
		}
		key := models.FormatDate(cp.AsOf)
		if _, exists := byDate[key]; !exists {
			s.count++
		}
		byDate[key] = cp
	}
	return nil
}

func (s *RiskStatStore) Latest(_ context.Context, tickers []string, asOf time.Time) (map[string]*models.RiskStatRecord, error) {
	asOf = models.DateOf(asOf)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.RiskStatRecord)
	for _, t := range tickers {
		t = models.NormalizeTicker(t)
		var best *models.RiskStatRecord
		for dateKey, rec := range s.records[t] {
			if rec.AsOf.After(asOf) {
				continue
			}
			if p, ok := s.partitions[dateKey]; !ok || p.Status != models.PartitionSealed {
				continue
			}
			if best == nil || rec.AsOf.After(best.AsOf) {
				best = rec
			}
		}
		if best != nil {
			out[t] = cloneRecord(best)
		}
	}
	return out, nil
}

func (s *RiskStatStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count, nil
}

func (s *RiskStatStore) OpenPartitions(_ context.Context, jobID string, dates []time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range dates {
		if p, ok := s.partitions[models.FormatDate(d)]; ok && p.Status == models.PartitionOpen && p.JobID != jobID {
			return fmt.Errorf("%w: %s held by job %s", models.ErrPartitionBusy, models.FormatDate(d), p.JobID)
		}
	}

	now := time.Now()
	for _, d := range dates {
		d = models.DateOf(d)
		key := models.FormatDate(d)
		prev, ok := s.partitions[key]
		if !ok {
			prev = &models.RiskStatPartition{Date: d}
		}
		s.partitions[key] = prev.Reopen(jobID, now)
	}
	return nil
}

// transition applies fn to every partition jobID holds open.
func (s *RiskStatStore) transition(jobID string, fn func(*models.RiskStatPartition, time.Time)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, p := range s.partitions {
		if p.JobID == jobID && p.Status == models.PartitionOpen {
			fn(p, now)
		}
	}
}

func (s *RiskStatStore) SealPartitions(_ context.Context, jobID string) error {
	s.transition(jobID, (*models.RiskStatPartition).Seal)
	return nil
}

func (s *RiskStatStore) AbandonPartitions(_ context.Context, jobID string) error {
	s.transition(jobID, (*models.RiskStatPartition).Abandon)
	return nil
}

func (s *RiskStatStore) ListPartitions(_ context.Context) ([]*models.RiskStatPartition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.RiskStatPartition, 0, len(s.partitions))
	for _, p := range s.partitions {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

var _ interfaces.RiskStatStore = (*RiskStatStore)(nil)
