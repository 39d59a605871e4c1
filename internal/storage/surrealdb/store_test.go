package surrealdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/rollup/internal/models"
)

func TestPositionStore_SnapshotRoundTrip(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	store := m.PositionStore()

	positions := []*models.Position{
		{ID: "p1", AccountID: "A1", Ticker: "VTI", AssetClass: "equities", SecondLevel: "us_markets", Liquidity: "Liquid", ValueToken: "500000"},
		{ID: "p2", AccountID: "A2", Ticker: "BIL", AssetClass: "fixed_income", SecondLevel: "government_bonds", Liquidity: "Liquid", ValueToken: "300000"},
	}
	require.NoError(t, store.PutSnapshot(ctx, day("2024-03-31"), positions))

	has, err := store.HasSnapshot(ctx, day("2024-03-31"))
	require.NoError(t, err)
	assert.True(t, has)

	has, err = store.HasSnapshot(ctx, day("2024-03-30"))
	require.NoError(t, err)
	assert.False(t, has)

	got, err := store.ListByAccounts(ctx, day("2024-03-31"), []string{"A1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, "500000", got[0].ValueToken)

	err = store.PutSnapshot(ctx, day("2024-03-31"), positions)
	if !errors.Is(err, models.ErrSnapshotExists) {
		t.Fatalf("expected ErrSnapshotExists, got %v", err)
	}

	infos, err := store.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 2, infos[0].PositionCount)
}

func TestOwnershipStore_ReplaceKeepsOrder(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	store := m.OwnershipStore()

	first := []*models.OwnershipRow{
		{HoldingAccount: "Old", HoldingAccountNumber: "X1", TopLevelClient: "C", Portfolio: "P"},
	}
	require.NoError(t, store.ReplaceRows(ctx, first))

	second := []*models.OwnershipRow{
		{HoldingAccount: "Brokerage", HoldingAccountNumber: "A2", TopLevelClient: "Smith", Portfolio: "Growth", Groups: "Family"},
		{HoldingAccount: "IRA", HoldingAccountNumber: "A1", TopLevelClient: "Smith", Portfolio: "Growth", Groups: "Family"},
	}
	require.NoError(t, store.ReplaceRows(ctx, second))

	rows, err := store.ListRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A2", rows[0].HoldingAccountNumber)
	assert.Equal(t, "A1", rows[1].HoldingAccountNumber)
}

func TestRiskStatStore_SealedVisibility(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	store := m.RiskStatStore()
	date := day("2024-03-29")

	rec := &models.RiskStatRecord{Ticker: "vti", Beta: ptr(1.02), Volatility: ptr(0.15), AsOf: date}
	require.NoError(t, store.OpenPartitions(ctx, "job-1", []time.Time{date}))
	require.NoError(t, store.UpsertBatch(ctx, []*models.RiskStatRecord{rec}))

	latest, err := store.Latest(ctx, []string{"VTI"}, day("2024-03-31"))
	require.NoError(t, err)
	assert.Empty(t, latest, "open partition must not be readable")

	err = store.OpenPartitions(ctx, "job-2", []time.Time{date})
	if !errors.Is(err, models.ErrPartitionBusy) {
		t.Fatalf("expected ErrPartitionBusy, got %v", err)
	}

	require.NoError(t, store.SealPartitions(ctx, "job-1"))

	latest, err = store.Latest(ctx, []string{"VTI"}, day("2024-03-31"))
	require.NoError(t, err)
	require.Contains(t, latest, "VTI")
	require.NotNil(t, latest["VTI"].Beta)
	assert.InDelta(t, 1.02, *latest["VTI"].Beta, 1e-9)

	// Re-upserting the same key replaces, never duplicates
	rec.Beta = ptr(1.10)
	require.NoError(t, store.UpsertBatch(ctx, []*models.RiskStatRecord{rec}))
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRiskStatStore_LatestPicksGreatestSealedDate(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	store := m.RiskStatStore()

	older := &models.RiskStatRecord{Ticker: "AGG", Duration: ptr(6.1), AsOf: day("2024-03-01")}
	newer := &models.RiskStatRecord{Ticker: "AGG", Duration: ptr(6.4), AsOf: day("2024-03-15")}
	future := &models.RiskStatRecord{Ticker: "AGG", Duration: ptr(7.0), AsOf: day("2024-04-15")}

	require.NoError(t, store.OpenPartitions(ctx, "job-1", []time.Time{older.AsOf, newer.AsOf, future.AsOf}))
	require.NoError(t, store.UpsertBatch(ctx, []*models.RiskStatRecord{older, newer, future}))
	require.NoError(t, store.SealPartitions(ctx, "job-1"))

	latest, err := store.Latest(ctx, []string{"agg"}, day("2024-03-31"))
	require.NoError(t, err)
	require.Contains(t, latest, "AGG")
	assert.InDelta(t, 6.4, *latest["AGG"].Duration, 1e-9)
}

func TestRiskStatStore_AbandonedPartitionHidden(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	store := m.RiskStatStore()
	date := day("2024-03-29")

	require.NoError(t, store.OpenPartitions(ctx, "job-1", []time.Time{date}))
	require.NoError(t, store.UpsertBatch(ctx, []*models.RiskStatRecord{{Ticker: "GLD", BetaToGold: ptr(1), AsOf: date}}))
	require.NoError(t, store.AbandonPartitions(ctx, "job-1"))

	latest, err := store.Latest(ctx, []string{"GLD"}, date)
	require.NoError(t, err)
	assert.Empty(t, latest)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "abandoned rows are kept")

	// A later job may reopen and seal the abandoned date
	require.NoError(t, store.OpenPartitions(ctx, "job-2", []time.Time{date}))
	require.NoError(t, store.SealPartitions(ctx, "job-2"))

	parts, err := store.ListPartitions(ctx)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, models.PartitionSealed, parts[0].Status)
	assert.Equal(t, "job-2", parts[0].JobID)
}

func TestRiskStatStore_FailedReingestKeepsSealedDate(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	store := m.RiskStatStore()
	date := day("2024-03-29")

	require.NoError(t, store.OpenPartitions(ctx, "job-1", []time.Time{date}))
	require.NoError(t, store.UpsertBatch(ctx, []*models.RiskStatRecord{{Ticker: "GLD", BetaToGold: ptr(1), AsOf: date}}))
	require.NoError(t, store.SealPartitions(ctx, "job-1"))

	require.NoError(t, store.OpenPartitions(ctx, "job-2", []time.Time{date}))
	require.NoError(t, store.AbandonPartitions(ctx, "job-2"))

	latest, err := store.Latest(ctx, []string{"GLD"}, date)
	require.NoError(t, err)
	assert.Contains(t, latest, "GLD")

	parts, err := store.ListPartitions(ctx)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, models.PartitionSealed, parts[0].Status)
	assert.Equal(t, "job-1", parts[0].JobID)
}

func TestRiskStatStore_ConcurrentOpenHasOneWinner(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	store := m.RiskStatStore()
	date := day("2024-03-29")

	const jobs = 8
	errs := make([]error, jobs)
	var wg sync.WaitGroup
	for i := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = store.OpenPartitions(ctx, fmt.Sprintf("job-%d", i), []time.Time{date})
		}()
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		if !errors.Is(err, models.ErrPartitionBusy) {
			t.Fatalf("expected ErrPartitionBusy, got %v", err)
		}
	}
	assert.Equal(t, 1, winners)

	parts, err := store.ListPartitions(ctx)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, models.PartitionOpen, parts[0].Status)
}

func TestRiskStatStore_TickerSpellingsStayDistinct(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	store := m.RiskStatStore()
	date := day("2024-03-29")

	require.NoError(t, store.OpenPartitions(ctx, "job-1", []time.Time{date}))
	require.NoError(t, store.UpsertBatch(ctx, []*models.RiskStatRecord{
		{Ticker: "BRK/B", Beta: ptr(0.9), AsOf: date},
		{Ticker: "BRK B", Beta: ptr(1.0), AsOf: date},
		{Ticker: "BRK_B", Beta: ptr(1.1), AsOf: date},
	}))
	require.NoError(t, store.SealPartitions(ctx, "job-1"))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	latest, err := store.Latest(ctx, []string{"BRK/B", "BRK B", "BRK_B"}, date)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Equal(t, 0.9, *latest["BRK/B"].Beta)
	assert.Equal(t, 1.1, *latest["BRK_B"].Beta)
}

func TestJobStore_Lifecycle(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	store := m.JobStore()

	job := &models.IngestionJob{Source: "test", BatchSize: 100, Workers: 2, ExpectedRecords: 10}
	require.NoError(t, store.Create(ctx, job))
	require.NotEmpty(t, job.ID)

	job.Status = models.JobStatusRunning
	job.StartedAt = time.Now()
	require.NoError(t, store.Update(ctx, job))

	job.Status = models.JobStatusCompleted
	job.ProgressEstimate = 100
	require.NoError(t, store.Update(ctx, job))

	job.Status = models.JobStatusRunning
	err := store.Update(ctx, job)
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 100.0, got.ProgressEstimate)

	_, err = store.Get(ctx, "missing")
	assert.True(t, models.IsNotFound(err))
}

func TestJobStore_FailUnfinished(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	store := m.JobStore()

	pending := &models.IngestionJob{Source: "a"}
	done := &models.IngestionJob{Source: "b"}
	require.NoError(t, store.Create(ctx, pending))
	require.NoError(t, store.Create(ctx, done))
	done.Status = models.JobStatusFailed
	require.NoError(t, store.Update(ctx, done))

	n, err := store.FailUnfinished(ctx, "server restarted")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Get(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, "server restarted", got.ErrorMessage)

	jobs, err := store.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}
