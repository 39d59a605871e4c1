package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/rollup/internal/models"
)

func day(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func f64(v float64) *float64 { return &v }

func TestPositionStore_SnapshotImmutable(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore()

	pos := []*models.Position{{ID: "p1", AccountID: "A1", ValueToken: "100"}}
	require.NoError(t, s.PutSnapshot(ctx, day("2024-03-29"), pos))

	err := s.PutSnapshot(ctx, day("2024-03-29"), pos)
	assert.ErrorIs(t, err, models.ErrSnapshotExists)

	got, err := s.ListByAccounts(ctx, day("2024-03-29"), []string{"A1", "A2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, day("2024-03-29"), got[0].AsOf)

	// Mutating the returned copy must not leak into the store
	got[0].ValueToken = "999"
	again, _ := s.ListByAccounts(ctx, day("2024-03-29"), []string{"A1"})
	assert.Equal(t, "100", again[0].ValueToken)
}

func TestPositionStore_MissingDateReturnsEmpty(t *testing.T) {
	s := NewPositionStore()
	got, err := s.ListByAccounts(context.Background(), day("2024-01-01"), []string{"A1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPositionStore_SnapshotDatesSorted(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore()
	for _, d := range []string{"2024-03-02", "2024-01-15", "2024-02-10"} {
		require.NoError(t, s.PutSnapshot(ctx, day(d), nil))
	}

	dates, err := s.SnapshotDates(ctx)
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.Equal(t, day("2024-01-15"), dates[0])
	assert.Equal(t, day("2024-03-02"), dates[2])
}

func TestRiskStatStore_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewRiskStatStore()

	batch := []*models.RiskStatRecord{
		{Ticker: "aapl", Beta: f64(1.2), AsOf: day("2024-03-29")},
		{Ticker: "MSFT", Beta: f64(0.9), AsOf: day("2024-03-29")},
	}
	require.NoError(t, s.UpsertBatch(ctx, batch))
	require.NoError(t, s.UpsertBatch(ctx, batch))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRiskStatStore_OnlySealedPartitionsVisible(t *testing.T) {
	ctx := context.Background()
	s := NewRiskStatStore()

	require.NoError(t, s.OpenPartitions(ctx, "job-1", []time.Time{day("2024-03-28")}))
	require.NoError(t, s.UpsertBatch(ctx, []*models.RiskStatRecord{{Ticker: "AAPL", Beta: f64(1.1), AsOf: day("2024-03-28")}}))

	got, err := s.Latest(ctx, []string{"AAPL"}, day("2024-03-29"))
	require.NoError(t, err)
	assert.Empty(t, got, "open partition must not be readable")

	require.NoError(t, s.SealPartitions(ctx, "job-1"))
	got, err = s.Latest(ctx, []string{"aapl"}, day("2024-03-29"))
	require.NoError(t, err)
	require.Contains(t, got, "AAPL")
	assert.Equal(t, 1.1, *got["AAPL"].Beta)
}

func TestRiskStatStore_LatestDateWins(t *testing.T) {
	ctx := context.Background()
	s := NewRiskStatStore()

	dates := []time.Time{day("2024-03-01"), day("2024-03-15"), day("2024-04-01")}
	require.NoError(t, s.OpenPartitions(ctx, "job-1", dates))
	require.NoError(t, s.UpsertBatch(ctx, []*models.RiskStatRecord{
		{Ticker: "AAPL", Beta: f64(1.0), AsOf: dates[0]},
		{Ticker: "AAPL", Beta: f64(1.5), AsOf: dates[1]},
		{Ticker: "AAPL", Beta: f64(2.0), AsOf: dates[2]},
	}))
	require.NoError(t, s.SealPartitions(ctx, "job-1"))

	got, _ := s.Latest(ctx, []string{"AAPL"}, day("2024-03-20"))
	assert.Equal(t, 1.5, *got["AAPL"].Beta)
}

func TestRiskStatStore_PartitionBusyAcrossJobs(t *testing.T) {
	ctx := context.Background()
	s := NewRiskStatStore()

	require.NoError(t, s.OpenPartitions(ctx, "job-1", []time.Time{day("2024-03-28")}))
	err := s.OpenPartitions(ctx, "job-2", []time.Time{day("2024-03-28")})
	assert.True(t, errors.Is(err, models.ErrPartitionBusy))

	// Same job may reopen its own partition
	assert.NoError(t, s.OpenPartitions(ctx, "job-1", []time.Time{day("2024-03-28")}))
}

func TestRiskStatStore_AbandonedPartitionHidden(t *testing.T) {
	ctx := context.Background()
	s := NewRiskStatStore()
	d := day("2024-03-28")

	require.NoError(t, s.OpenPartitions(ctx, "job-1", []time.Time{d}))
	require.NoError(t, s.UpsertBatch(ctx, []*models.RiskStatRecord{{Ticker: "AAPL", Beta: f64(1.1), AsOf: d}}))
	require.NoError(t, s.AbandonPartitions(ctx, "job-1"))

	got, _ := s.Latest(ctx, []string{"AAPL"}, d)
	assert.Empty(t, got)

	// Rows are kept (not rolled back)
	n, _ := s.Count(ctx)
	assert.Equal(t, 1, n)

	// A later job may take the date over and publish it
	require.NoError(t, s.OpenPartitions(ctx, "job-2", []time.Time{d}))
	require.NoError(t, s.SealPartitions(ctx, "job-2"))
	got, _ = s.Latest(ctx, []string{"AAPL"}, d)
	assert.Contains(t, got, "AAPL")
}

func TestRiskStatStore_FailedReingestKeepsSealedDate(t *testing.T) {
	ctx := context.Background()
	s := NewRiskStatStore()
	d := day("2024-03-28")

	require.NoError(t, s.OpenPartitions(ctx, "job-1", []time.Time{d}))
	require.NoError(t, s.UpsertBatch(ctx, []*models.RiskStatRecord{{Ticker: "AAPL", Beta: f64(1.1), AsOf: d}}))
	require.NoError(t, s.SealPartitions(ctx, "job-1"))

	require.NoError(t, s.OpenPartitions(ctx, "job-2", []time.Time{d}))
	got, _ := s.Latest(ctx, []string{"AAPL"}, d)
	assert.Empty(t, got, "date is hidden while job-2 writes it")

	require.NoError(t, s.AbandonPartitions(ctx, "job-2"))
	got, _ = s.Latest(ctx, []string{"AAPL"}, d)
	require.Contains(t, got, "AAPL")
	assert.Equal(t, 1.1, *got["AAPL"].Beta)

	partitions, _ := s.ListPartitions(ctx)
	require.Len(t, partitions, 1)
	assert.Equal(t, models.PartitionSealed, partitions[0].Status)
	assert.Equal(t, "job-1", partitions[0].JobID)

	// job-1 owns the date again, so job-2 abandoning twice changes nothing
	require.NoError(t, s.AbandonPartitions(ctx, "job-2"))
	partitions, _ = s.ListPartitions(ctx)
	assert.Equal(t, models.PartitionSealed, partitions[0].Status)
}

func TestRiskStatStore_ReopenedByOwnerKeepsPublisher(t *testing.T) {
	ctx := context.Background()
	s := NewRiskStatStore()
	d := day("2024-03-28")

	require.NoError(t, s.OpenPartitions(ctx, "job-1", []time.Time{d}))
	require.NoError(t, s.SealPartitions(ctx, "job-1"))
	require.NoError(t, s.OpenPartitions(ctx, "job-2", []time.Time{d}))
	require.NoError(t, s.OpenPartitions(ctx, "job-2", []time.Time{d}))
	require.NoError(t, s.AbandonPartitions(ctx, "job-2"))

	partitions, _ := s.ListPartitions(ctx)
	require.Len(t, partitions, 1)
	assert.Equal(t, models.PartitionSealed, partitions[0].Status)
	assert.Equal(t, "job-1", partitions[0].JobID)
}

func TestJobStore_TransitionsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()

	job := &models.IngestionJob{}
	require.NoError(t, s.Create(ctx, job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobStatusPending, job.Status)

	job.Status = models.JobStatusRunning
	require.NoError(t, s.Update(ctx, job))

	job.Status = models.JobStatusPending
	assert.ErrorIs(t, s.Update(ctx, job), models.ErrInvalidTransition)

	job.Status = models.JobStatusCompleted
	require.NoError(t, s.Update(ctx, job))

	job.Status = models.JobStatusFailed
	assert.ErrorIs(t, s.Update(ctx, job), models.ErrInvalidTransition)
}

func TestJobStore_GetUnknown(t *testing.T) {
	_, err := NewJobStore().Get(context.Background(), "nope")
	assert.True(t, models.IsNotFound(err))
}

func TestJobStore_FailUnfinished(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()

	pending := &models.IngestionJob{}
	done := &models.IngestionJob{}
	require.NoError(t, s.Create(ctx, pending))
	require.NoError(t, s.Create(ctx, done))
	done.Status = models.JobStatusRunning
	require.NoError(t, s.Update(ctx, done))
	done.Status = models.JobStatusCompleted
	require.NoError(t, s.Update(ctx, done))

	n, err := s.FailUnfinished(ctx, "interrupted")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := s.Get(ctx, pending.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, "interrupted", got.ErrorMessage)
}

func TestJobStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Create(ctx, &models.IngestionJob{CreatedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	jobs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.True(t, jobs[0].CreatedAt.After(jobs[1].CreatedAt))
}
