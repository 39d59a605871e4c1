package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
)

// JobStore keeps ingestion jobs in a map guarded by a mutex. Records are
// copied in and out so callers never share state with the store.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.IngestionJob
}

// NewJobStore creates an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*models.IngestionJob)}
}

func (s *JobStore) Create(_ context.Context, job *models.IngestionJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *JobStore) Update(_ context.Context, job *models.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[job.ID]
	if !ok {
		return &models.NotFoundError{Kind: "job", Key: job.ID}
	}
	if !models.CanTransitionJob(stored.Status, job.Status) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, stored.Status, job.Status)
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *JobStore) Get(_ context.Context, id string) (*models.IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.jobs[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "job", Key: id}
	}
	cp := *stored
	return &cp, nil
}

func (s *JobStore) List(_ context.Context, limit int) ([]*models.IngestionJob, error) {
	s.mu.RLock()
	out := make([]*models.IngestionJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		cp := *j
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *JobStore) FailUnfinished(_ context.Context, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for _, j := range s.jobs {
		if j.IsTerminal() {
			continue
		}
		j.Status = models.JobStatusFailed
		j.ErrorMessage = reason
		j.CompletedAt = now
		count++
	}
	return count, nil
}

var _ interfaces.JobStore = (*JobStore)(nil)
