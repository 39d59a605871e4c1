package surrealdb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/rollup/internal/models"
)

func TestRiskStatRecordID_DistinctPerTickerSpelling(t *testing.T) {
	date := day("2024-03-29")
	seen := make(map[string]string)
	for _, ticker := range []string{"BRK/B", "BRK B", "BRK_B", "BRK@B", "BRK:B"} {
		id := riskStatRecordID(&models.RiskStatRecord{Ticker: ticker, AsOf: date})
		key := id[0].(string) + "|" + id[1].(string)
		if other, ok := seen[key]; ok {
			t.Fatalf("%q and %q share record id %v", ticker, other, id)
		}
		seen[key] = ticker
	}

	id := riskStatRecordID(&models.RiskStatRecord{Ticker: " brk/b ", AsOf: date})
	assert.Equal(t, []any{"BRK/B", "2024-03-29"}, id)
}

func TestPartitionClaimError(t *testing.T) {
	thrown := errors.New("An error occurred: " + partitionBusyMarker + " 2024-03-29 held by job job-7\nThe query was not executed due to a failed transaction")
	err := partitionClaimError(thrown)
	require.ErrorIs(t, err, models.ErrPartitionBusy)
	assert.Contains(t, err.Error(), "2024-03-29 held by job job-7")
	assert.NotContains(t, err.Error(), "failed transaction")

	conflict := errors.New("Failed to commit transaction due to a read or write conflict. This transaction can be retried")
	assert.ErrorIs(t, partitionClaimError(conflict), models.ErrPartitionBusy)

	other := partitionClaimError(errors.New("connection refused"))
	assert.False(t, errors.Is(other, models.ErrPartitionBusy))
	assert.Contains(t, other.Error(), "failed to open partitions")
}
