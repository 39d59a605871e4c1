package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
)

// maxRunningProgress is the ceiling reported until the job has sealed its partitions.
const maxRunningProgress = 99.0

// run is the coordinator for one job. It is the only goroutine that writes
// the job record; workers report back over a channel.
func (jm *JobManager) run(ctx context.Context, q *queuedJob) {
	job := q.job
	start := time.Now()

	job.Status = models.JobStatusRunning
	job.StartedAt = start
	if err := jm.save(ctx, job, EventJobStarted); err != nil {
		// Failed by a restart or drain in the meantime.
		return
	}
	jm.logger.Info().Str("job_id", job.ID).Int("workers", job.Workers).Msg("Ingestion job started")

	progress := make(chan int, job.Workers*2)
	done := make(chan error, 1)
	go func() {
		done <- jm.execute(ctx, q, progress)
		close(progress)
	}()

	for n := range progress {
		job.ProcessedRecords += n
		job.BatchesCompleted++
		job.ProgressEstimate = max(job.ProgressEstimate, estimateProgress(job))
		jm.save(ctx, job, EventJobProgress)
	}
	err := <-done

	store := jm.storage.RiskStatStore()
	if err == nil {
		if sealErr := store.SealPartitions(context.WithoutCancel(ctx), job.ID); sealErr != nil {
			err = fmt.Errorf("failed to seal risk-stat partitions: %w", sealErr)
		}
	}

	job.CompletedAt = time.Now()
	job.DurationMS = job.CompletedAt.Sub(start).Milliseconds()

	if err != nil {
		if abandonErr := store.AbandonPartitions(context.WithoutCancel(ctx), job.ID); abandonErr != nil {
			jm.logger.Error().Str("job_id", job.ID).Err(abandonErr).Msg("Failed to abandon risk-stat partitions")
		}
		job.Status = models.JobStatusFailed
		job.ErrorMessage = err.Error()
		jm.save(ctx, job, EventJobFailed)
		jm.logger.Warn().
			Str("job_id", job.ID).
			Int("processed", job.ProcessedRecords).
			Int64("duration_ms", job.DurationMS).
			Err(err).
			Msg("Ingestion job failed")
		return
	}

	job.Status = models.JobStatusCompleted
	job.TotalRecords = job.ProcessedRecords
	job.ProgressEstimate = 100
	jm.save(ctx, job, EventJobCompleted)
	jm.logger.Info().
		Str("job_id", job.ID).
		Int("total_records", job.TotalRecords).
		Int("batches", job.BatchesCompleted).
		Int64("duration_ms", job.DurationMS).
		Msg("Ingestion job completed")
}

// execute reads the source, shards rows across workers by ticker hash and
// waits for every batch to be written. Each completed batch's size is sent
// on progress. The first error cancels the remaining work.
func (jm *JobManager) execute(ctx context.Context, q *queuedJob, progress chan<- int) error {
	job := q.job
	g, gctx := errgroup.WithContext(ctx)

	var limiter *rate.Limiter
	if ups := jm.config.UpsertsPerSecond; ups > 0 {
		limiter = rate.NewLimiter(rate.Limit(ups), 1)
	}

	shards := make([]chan []*models.RiskStatRecord, job.Workers)
	for i := range shards {
		shards[i] = make(chan []*models.RiskStatRecord, 2)
	}

	g.Go(guard("dispatcher", func() error {
		return jm.dispatch(gctx, job, q.source, shards)
	}))

	var batchSeq atomic.Int64
	for w, batches := range shards {
		g.Go(guard(fmt.Sprintf("worker-%d", w), func() error {
			return jm.work(gctx, job.ID, w, batches, limiter, &batchSeq, progress)
		}))
	}

	return g.Wait()
}

// dispatch owns the source. Partitions are opened the first time a date is
// seen, before any row of that date reaches a worker.
func (jm *JobManager) dispatch(ctx context.Context, job *models.IngestionJob, source interfaces.RiskStatSource, shards []chan []*models.RiskStatRecord) error {
	defer func() {
		for _, ch := range shards {
			close(ch)
		}
	}()

	store := jm.storage.RiskStatStore()
	opened := make(map[string]bool)
	pending := make([][]*models.RiskStatRecord, len(shards))

	send := func(i int) error {
		if len(pending[i]) == 0 {
			return nil
		}
		select {
		case shards[i] <- pending[i]:
			pending[i] = nil
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for row := 1; ; row++ {
		rec, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read source row %d: %w", row, err)
		}
		if models.NormalizeTicker(rec.Ticker) == "" {
			return fmt.Errorf("source row %d: ticker is required", row)
		}
		if rec.AsOf.IsZero() {
			return fmt.Errorf("source row %d: as_of_date is required", row)
		}

		date := models.FormatDate(rec.AsOf)
		if !opened[date] {
			if err := store.OpenPartitions(ctx, job.ID, []time.Time{rec.AsOf}); err != nil {
				return fmt.Errorf("open partition %s: %w", date, err)
			}
			opened[date] = true
		}

		i := shardFor(rec.Ticker, len(shards))
		pending[i] = append(pending[i], rec)
		if len(pending[i]) >= job.BatchSize {
			if err := send(i); err != nil {
				return err
			}
		}
	}

	for i := range pending {
		if err := send(i); err != nil {
			return err
		}
	}
	return nil
}

// work writes batches for one shard. A ticker always lands on the same
// worker, so no two workers ever write the same key.
func (jm *JobManager) work(ctx context.Context, jobID string, worker int, batches <-chan []*models.RiskStatRecord, limiter *rate.Limiter, seq *atomic.Int64, progress chan<- int) error {
	store := jm.storage.RiskStatStore()
	for batch := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := int(seq.Add(1))
		fail := func(err error) error {
			return &models.JobBatchFailure{JobID: jobID, Worker: worker, Batch: n, Records: len(batch), Err: err}
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return fail(err)
			}
		}
		if err := store.UpsertBatch(ctx, batch); err != nil {
			return fail(err)
		}
		select {
		case progress <- len(batch):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func shardFor(ticker string, shards int) int {
	return int(xxhash.Sum64String(models.NormalizeTicker(ticker)) % uint64(shards))
}

// estimateProgress scales processed rows against the expected count, or
// follows an asymptotic curve when the source length is unknown. It never
// reaches 100 while the job is running.
func estimateProgress(job *models.IngestionJob) float64 {
	var p float64
	switch {
	case job.ExpectedRecords > 0:
		p = float64(job.ProcessedRecords) * 100 / float64(job.ExpectedRecords)
	case job.ExpectedRecords < 0:
		scale := float64(job.BatchSize * 10)
		p = maxRunningProgress * float64(job.ProcessedRecords) / (float64(job.ProcessedRecords) + scale)
	}
	return min(p, maxRunningProgress)
}

// guard turns a panic in an errgroup function into an error so the job fails
// instead of the process.
func guard(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s panicked: %v\n%s", name, r, debug.Stack())
			}
		}()
		return fn()
	}
}
