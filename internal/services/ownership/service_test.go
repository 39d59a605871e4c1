package ownership

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/models"
	"github.com/bobmcallan/rollup/internal/storage/memory"
)

func TestService_ReplaceRowsCachesHierarchy(t *testing.T) {
	logger := common.NewSilentLogger()
	store := memory.NewManager(logger)
	svc := NewService(store, logger)
	ctx := context.Background()

	h, err := svc.ReplaceRows(ctx, sampleRows())
	require.NoError(t, err)

	cached, err := svc.Hierarchy(ctx)
	require.NoError(t, err)
	assert.Same(t, h, cached)

	tree, err := svc.GetOwnershipTree(ctx, "Smith")
	require.NoError(t, err)
	assert.Equal(t, "client:Smith", tree.ID)
}

func TestService_RejectedRowsKeepPreviousSource(t *testing.T) {
	logger := common.NewSilentLogger()
	store := memory.NewManager(logger)
	svc := NewService(store, logger)
	ctx := context.Background()

	_, err := svc.ReplaceRows(ctx, sampleRows())
	require.NoError(t, err)

	bad := append(sampleRows(), &models.OwnershipRow{HoldingAccountNumber: "A1", TopLevelClient: "Jones", Portfolio: "Core"})
	_, err = svc.ReplaceRows(ctx, bad)
	var mh *models.MalformedHierarchyError
	require.True(t, errors.As(err, &mh))

	rows, err := store.OwnershipStore().ListRows(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, len(sampleRows()))

	h, err := svc.Hierarchy(ctx)
	require.NoError(t, err)
	_, ok := h.Node("account:A1")
	assert.True(t, ok)
}

func TestService_LoadsFromStorageOnFirstUse(t *testing.T) {
	logger := common.NewSilentLogger()
	store := memory.NewManager(logger)
	require.NoError(t, store.OwnershipStore().ReplaceRows(context.Background(), sampleRows()))

	svc := NewService(store, logger)
	h, err := svc.Hierarchy(context.Background())
	require.NoError(t, err)
	assert.Len(t, h.DescendantAccounts(models.AllClientsID), 4)
}
