package position

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/models"
	"github.com/bobmcallan/rollup/internal/storage/memory"
	"github.com/bobmcallan/rollup/internal/valuecipher"
)

var day = time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC)

func TestIngestSnapshot_EncryptsValues(t *testing.T) {
	logger := common.NewSilentLogger()
	store := memory.NewManager(logger)
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	cipher, err := valuecipher.New(common.SecurityConfig{ValueCipher: "secretbox", ValueKey: key})
	require.NoError(t, err)
	svc := NewService(store, cipher, logger)
	ctx := context.Background()

	info, err := svc.IngestSnapshot(ctx, day, []*models.PositionInput{
		{ID: "p1", AccountID: "A1", Ticker: "VTI", AssetClass: "equities", SecondLevel: "us_markets", Liquidity: "Liquid", Value: decimal.NewFromInt(500000)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, info.PositionCount)

	stored, err := store.PositionStore().ListByAccounts(ctx, day, []string{"A1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotContains(t, stored[0].ValueToken, "500000")

	v, err := cipher.Decrypt(stored[0].ValueToken)
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(500000)))
}

func TestIngestSnapshot_Validation(t *testing.T) {
	logger := common.NewSilentLogger()
	svc := NewService(memory.NewManager(logger), valuecipher.Plain{}, logger)
	ctx := context.Background()

	_, err := svc.IngestSnapshot(ctx, day, []*models.PositionInput{{ID: "p1"}})
	assert.Error(t, err)

	_, err = svc.IngestSnapshot(ctx, day, []*models.PositionInput{
		{ID: "p1", AccountID: "A1"},
		{ID: "p1", AccountID: "A2"},
	})
	assert.ErrorContains(t, err, "duplicate")
}

func TestIngestSnapshot_DateIsImmutable(t *testing.T) {
	logger := common.NewSilentLogger()
	svc := NewService(memory.NewManager(logger), valuecipher.Plain{}, logger)
	ctx := context.Background()
	in := []*models.PositionInput{{ID: "p1", AccountID: "A1", Value: decimal.NewFromInt(1)}}

	_, err := svc.IngestSnapshot(ctx, day, in)
	require.NoError(t, err)

	_, err = svc.IngestSnapshot(ctx, day.Add(5*time.Hour), in)
	assert.True(t, errors.Is(err, models.ErrSnapshotExists))

	infos, err := svc.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}
