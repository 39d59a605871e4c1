package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
)

// jobSelectFields lists the fields to select from ingest_job, aliasing job_id to id for struct mapping.
const jobSelectFields = "job_id AS id, status, source, batch_size, workers, created_at, started_at, completed_at, " +
	"expected_records, processed_records, total_records, batches_completed, progress_estimate, " +
	"progress_indeterminate, error_message, duration_ms"

// JobStore implements interfaces.JobStore using SurrealDB.
type JobStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *surrealdb.DB, logger *common.Logger) *JobStore {
	return &JobStore{db: db, logger: logger}
}

func jobContent(job *models.IngestionJob) map[string]any {
	return map[string]any{
		"job_id":                 job.ID,
		"status":                 job.Status,
		"source":                 job.Source,
		"batch_size":             job.BatchSize,
		"workers":                job.Workers,
		"created_at":             job.CreatedAt,
		"started_at":             job.StartedAt,
		"completed_at":           job.CompletedAt,
		"expected_records":       job.ExpectedRecords,
		"processed_records":      job.ProcessedRecords,
		"total_records":          job.TotalRecords,
		"batches_completed":      job.BatchesCompleted,
		"progress_estimate":      job.ProgressEstimate,
		"progress_indeterminate": job.ProgressIndeterminate,
		"error_message":          job.ErrorMessage,
		"duration_ms":            job.DurationMS,
	}
}

func (s *JobStore) Create(ctx context.Context, job *models.IngestionJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	sql := "CREATE $rid CONTENT $job"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("ingest_job", job.ID),
		"job": jobContent(job),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *JobStore) Update(ctx context.Context, job *models.IngestionJob) error {
	current, err := s.Get(ctx, job.ID)
	if err != nil {
		return err
	}
	if !models.CanTransitionJob(current.Status, job.Status) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current.Status, job.Status)
	}

	sql := "UPSERT $rid CONTENT $job"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("ingest_job", job.ID),
		"job": jobContent(job),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*models.IngestionJob, error) {
	sql := "SELECT " + jobSelectFields + " FROM ingest_job WHERE job_id = $id LIMIT 1"
	results, err := surrealdb.Query[[]models.IngestionJob](ctx, s.db, sql, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	rows := firstResult(results)
	if len(rows) == 0 {
		return nil, &models.NotFoundError{Kind: "job", Key: id}
	}
	job := rows[0]
	return &job, nil
}

func (s *JobStore) List(ctx context.Context, limit int) ([]*models.IngestionJob, error) {
	if limit <= 0 {
		limit = 50
	}
	sql := "SELECT " + jobSelectFields + " FROM ingest_job ORDER BY created_at DESC LIMIT $limit"
	results, err := surrealdb.Query[[]models.IngestionJob](ctx, s.db, sql, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	rows := firstResult(results)
	out := make([]*models.IngestionJob, 0, len(rows))
	for i := range rows {
		out = append(out, &rows[i])
	}
	return out, nil
}

func (s *JobStore) FailUnfinished(ctx context.Context, reason string) (int, error) {
	sql := `UPDATE ingest_job SET status = $failed, error_message = $reason, completed_at = $now
		WHERE status IN [$pending, $running] RETURN job_id`
	vars := map[string]any{
		"failed":  models.JobStatusFailed,
		"pending": models.JobStatusPending,
		"running": models.JobStatusRunning,
		"reason":  reason,
		"now":     time.Now(),
	}
	results, err := surrealdb.Query[[]map[string]any](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to fail unfinished jobs: %w", err)
	}
	n := len(firstResult(results))
	if n > 0 {
		s.logger.Warn().Int("count", n).Msg("Unfinished ingestion jobs marked failed")
	}
	return n, nil
}

var _ interfaces.JobStore = (*JobStore)(nil)
