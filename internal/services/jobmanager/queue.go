package jobmanager

import (
	"context"
	"time"

	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
)

// Job event types
const (
	EventJobQueued    = "job_queued"
	EventJobStarted   = "job_started"
	EventJobProgress  = "job_progress"
	EventJobCompleted = "job_completed"
	EventJobFailed    = "job_failed"
)

// queuedJob pairs a persisted job with the source it will read.
type queuedJob struct {
	job    *models.IngestionJob
	source interfaces.RiskStatSource
}

// enqueue hands a job to the processors without blocking. Once sent, the
// job belongs to the coordinator that picks it up, so the queued event is
// built and published before the send.
func (jm *JobManager) enqueue(q *queuedJob) error {
	queued := *q.job
	if len(jm.queue) == cap(jm.queue) {
		return models.ErrQueueFull
	}
	jm.broadcast(EventJobQueued, queued)
	select {
	case jm.queue <- q:
		return nil
	default:
		return models.ErrQueueFull
	}
}

// save persists the coordinator's copy of a job and announces the change.
// Terminal writes use a context that outlives cancellation of the run.
func (jm *JobManager) save(ctx context.Context, job *models.IngestionJob, eventType string) error {
	if job.IsTerminal() {
		ctx = context.WithoutCancel(ctx)
	}
	if err := jm.storage.JobStore().Update(ctx, job); err != nil {
		jm.logger.Warn().Str("job_id", job.ID).Str("status", job.Status).Err(err).Msg("Failed to update ingestion job")
		return err
	}
	jm.broadcast(eventType, *job)
	return nil
}

// broadcast publishes a copy of the job; the hub never sees a live record.
func (jm *JobManager) broadcast(eventType string, job models.IngestionJob) {
	hub := jm.Hub()
	if hub == nil {
		return
	}
	hub.Broadcast(models.JobEvent{
		Type:      eventType,
		Job:       &job,
		Timestamp: time.Now(),
		QueueSize: len(jm.queue),
	})
}
