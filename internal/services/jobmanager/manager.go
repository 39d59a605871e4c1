// Package jobmanager runs risk-stats ingestion jobs in the background.
// Each job is executed by one coordinator goroutine that owns the job record
// and a pool of workers that write batches in parallel.
package jobmanager

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
)

// InterruptedReason is recorded on jobs that a previous process left unfinished.
const InterruptedReason = "interrupted: process restarted before the job finished"

// JobManager accepts ingestion jobs and executes them on a fixed number of
// processor goroutines.
type JobManager struct {
	storage interfaces.StorageManager
	logger  *common.Logger
	hub     *EventHub
	config  common.JobsConfig

	queue  chan *queuedJob
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJobManager creates a job manager. Call Start before Submit, since
// Start fails every job that is not already terminal.
func NewJobManager(storage interfaces.StorageManager, logger *common.Logger, config common.JobsConfig) *JobManager {
	return &JobManager{
		storage: storage,
		logger:  logger,
		hub:     NewEventHub(logger),
		config:  config,
		queue:   make(chan *queuedJob, config.GetQueueSize()),
	}
}

// safeGo launches a goroutine with panic recovery and logging.
func (jm *JobManager) safeGo(name string, fn func()) {
	jm.wg.Add(1)
	go func() {
		defer jm.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				jm.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in job manager goroutine")
			}
		}()
		fn()
	}()
}

// Start fails jobs orphaned by a previous process, then launches the event
// hub and the processor pool. Calling Start again restarts the loops.
func (jm *JobManager) Start() {
	jm.start(true)
}

// StartAttached launches the processors without failing unfinished jobs.
// Short-lived processes that share storage with a server use it so the
// server's running jobs are left alone.
func (jm *JobManager) StartAttached() {
	jm.start(false)
}

func (jm *JobManager) start(recoverOrphans bool) {
	jm.Stop()

	jm.mu.Lock()
	defer jm.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	jm.cancel = cancel

	if recoverOrphans {
		if count, err := jm.storage.JobStore().FailUnfinished(ctx, InterruptedReason); err != nil {
			jm.logger.Warn().Err(err).Msg("Failed to mark orphaned ingestion jobs failed")
		} else if count > 0 {
			jm.logger.Info().Int("count", count).Msg("Marked orphaned ingestion jobs failed")
		}
	}

	jm.hub = NewEventHub(jm.logger)
	hub := jm.hub
	jm.safeGo("event-hub", hub.Run)

	processors := jm.config.GetMaxConcurrentJobs()
	for i := range processors {
		jm.safeGo(fmt.Sprintf("processor-%d", i), func() { jm.processLoop(ctx) })
	}

	jm.logger.Info().
		Int("max_concurrent_jobs", processors).
		Int("queue_size", cap(jm.queue)).
		Msg("Job manager started")
}

// Stop cancels running jobs, waits for every goroutine to exit and fails
// the jobs that never left the queue.
func (jm *JobManager) Stop() {
	jm.mu.Lock()
	cancel := jm.cancel
	jm.cancel = nil
	jm.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	jm.Hub().Stop()
	jm.wg.Wait()
	jm.drain()
	jm.logger.Info().Msg("Job manager stopped")
}

// drain fails every job still waiting in the queue.
func (jm *JobManager) drain() {
	for {
		select {
		case q := <-jm.queue:
			q.job.Status = models.JobStatusFailed
			q.job.ErrorMessage = "job manager stopped before the job started"
			q.job.CompletedAt = time.Now()
			jm.save(context.Background(), q.job, EventJobFailed)
		default:
			return
		}
	}
}

// Hub returns the current event hub. A restart replaces it, so handlers
// should look it up per request.
func (jm *JobManager) Hub() *EventHub {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	return jm.hub
}

// Submit validates the request, records a pending job and queues it.
// It returns as soon as the job is queued.
func (jm *JobManager) Submit(ctx context.Context, source interfaces.RiskStatSource, opts interfaces.SubmitOptions) (string, error) {
	if source == nil {
		return "", fmt.Errorf("%w: source is required", models.ErrInvalidJobRequest)
	}

	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = jm.config.GetDefaultBatchSize()
	}
	if batchSize < 0 || batchSize > jm.config.GetMaxBatchSize() {
		return "", fmt.Errorf("%w: batch_size must be between 1 and %d", models.ErrInvalidJobRequest, jm.config.GetMaxBatchSize())
	}

	workers := opts.Workers
	if workers == 0 {
		workers = jm.config.GetDefaultWorkers()
	}
	if workers < 0 || workers > jm.config.GetMaxWorkers() {
		return "", fmt.Errorf("%w: workers must be between 1 and %d", models.ErrInvalidJobRequest, jm.config.GetMaxWorkers())
	}

	expected := source.Len()
	job := &models.IngestionJob{
		ID:                    uuid.New().String(),
		Status:                models.JobStatusPending,
		Source:                source.Describe(),
		BatchSize:             batchSize,
		Workers:               workers,
		CreatedAt:             time.Now(),
		ExpectedRecords:       expected,
		ProgressIndeterminate: expected < 0,
	}
	if err := jm.storage.JobStore().Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create ingestion job: %w", err)
	}

	// After a successful enqueue only the coordinator touches job.
	id, label := job.ID, job.Source
	if err := jm.enqueue(&queuedJob{job: job, source: source}); err != nil {
		job.Status = models.JobStatusFailed
		job.ErrorMessage = err.Error()
		job.CompletedAt = time.Now()
		jm.save(ctx, job, EventJobFailed)
		return "", err
	}

	jm.logger.Info().
		Str("job_id", id).
		Str("source", label).
		Int("batch_size", batchSize).
		Int("workers", workers).
		Msg("Ingestion job queued")
	return id, nil
}

// GetStatus returns the current state of a job.
func (jm *JobManager) GetStatus(ctx context.Context, id string) (*models.IngestionJob, error) {
	return jm.storage.JobStore().Get(ctx, id)
}

// ListJobs returns the most recent jobs, newest first.
func (jm *JobManager) ListJobs(ctx context.Context, limit int) ([]*models.IngestionJob, error) {
	return jm.storage.JobStore().List(ctx, limit)
}

// Wait polls a job until it reaches a terminal status or ctx ends.
func (jm *JobManager) Wait(ctx context.Context, id string, interval time.Duration) (*models.IngestionJob, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := jm.GetStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// processLoop executes queued jobs one at a time until ctx ends.
func (jm *JobManager) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-jm.queue:
			jm.run(ctx, q)
		}
	}
}

var _ interfaces.JobManager = (*JobManager)(nil)
