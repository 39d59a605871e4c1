package performance

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
	"github.com/bobmcallan/rollup/internal/storage/memory"
)

func d(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

// mockRollup returns fixed totals per date.
type mockRollup struct {
	totals map[string]decimal.Decimal
	calls  int
}

func (m *mockRollup) Aggregate(ctx context.Context, h interfaces.Hierarchy, nodeID string, date time.Time) (*models.RollupResult, error) {
	return nil, nil
}

func (m *mockRollup) TotalValue(ctx context.Context, h interfaces.Hierarchy, nodeID string, date time.Time) (decimal.Decimal, bool, error) {
	m.calls++
	v, ok := m.totals[models.FormatDate(date)]
	if !ok {
		return decimal.Zero, true, nil
	}
	return v, false, nil
}

func TestReferenceDate(t *testing.T) {
	dates := []time.Time{d("2023-12-29"), d("2024-01-02"), d("2024-02-15"), d("2024-03-27"), d("2024-03-28")}

	tests := []struct {
		period string
		date   string
		want   string
		ok     bool
	}{
		{models.Period1D, "2024-03-28", "2024-03-27", true},
		{models.Period1D, "2024-03-30", "2024-03-28", true},
		{models.Period1D, "2023-12-29", "", false},
		{models.PeriodMTD, "2024-03-28", "2024-03-27", true},
		{models.PeriodQTD, "2024-03-28", "2024-01-02", true},
		{models.PeriodYTD, "2024-03-28", "2024-01-02", true},
		{models.PeriodMTD, "2024-04-10", "", false},
		{models.PeriodYTD, "2023-12-31", "2023-12-29", true},
		{"5Y", "2024-03-28", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.period+"_"+tt.date, func(t *testing.T) {
			got, ok := ReferenceDate(tt.period, dates, d(tt.date))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, models.FormatDate(got))
			}
		})
	}
}

func TestCompute(t *testing.T) {
	logger := common.NewSilentLogger()
	store := memory.NewManager(logger)
	ctx := context.Background()
	for _, day := range []string{"2024-01-02", "2024-03-01", "2024-03-27", "2024-03-28"} {
		require.NoError(t, store.PositionStore().PutSnapshot(ctx, d(day), nil))
	}

	rollup := &mockRollup{totals: map[string]decimal.Decimal{
		"2024-01-02": decimal.NewFromInt(800),
		"2024-03-01": decimal.NewFromInt(0),
		"2024-03-27": decimal.NewFromInt(1000),
	}}
	svc := NewService(store, rollup, logger)

	got, err := svc.Compute(ctx, nil, "client:C", d("2024-03-28"), decimal.NewFromInt(1100))
	require.NoError(t, err)
	require.Len(t, got, 4)

	require.NotNil(t, got[models.Period1D].ReturnPct)
	assert.InDelta(t, 10.0, *got[models.Period1D].ReturnPct, 1e-9)

	// Zero-valued reference is null, not zero
	assert.NotNil(t, got[models.PeriodMTD].ReferenceDate)
	assert.Nil(t, got[models.PeriodMTD].ReturnPct)

	require.NotNil(t, got[models.PeriodQTD].ReturnPct)
	assert.InDelta(t, 37.5, *got[models.PeriodQTD].ReturnPct, 1e-9)
	assert.InDelta(t, 37.5, *got[models.PeriodYTD].ReturnPct, 1e-9)

	// QTD and YTD share a reference date and are valued once
	assert.Equal(t, 3, rollup.calls)
}

func TestCompute_MissingReferenceIsNull(t *testing.T) {
	logger := common.NewSilentLogger()
	store := memory.NewManager(logger)
	ctx := context.Background()
	require.NoError(t, store.PositionStore().PutSnapshot(ctx, d("2024-03-28"), nil))

	svc := NewService(store, &mockRollup{}, logger)
	got, err := svc.Compute(ctx, nil, "client:C", d("2024-03-28"), decimal.NewFromInt(1100))
	require.NoError(t, err)

	assert.Nil(t, got[models.Period1D].ReferenceDate)
	assert.Nil(t, got[models.Period1D].ReturnPct)
}
