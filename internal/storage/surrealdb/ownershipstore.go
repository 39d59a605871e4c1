package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
)

// OwnershipStore implements interfaces.OwnershipStore using SurrealDB.
// Rows keep a sequence number so the source order survives a round trip.
type OwnershipStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewOwnershipStore creates a new OwnershipStore.
func NewOwnershipStore(db *surrealdb.DB, logger *common.Logger) *OwnershipStore {
	return &OwnershipStore{db: db, logger: logger}
}

func (s *OwnershipStore) ReplaceRows(ctx context.Context, rows []*models.OwnershipRow) error {
	content := make([]map[string]any, 0, len(rows))
	for i, r := range rows {
		content = append(content, map[string]any{
			"seq":                    i,
			"holding_account":        r.HoldingAccount,
			"holding_account_number": r.HoldingAccountNumber,
			"top_level_client":       r.TopLevelClient,
			"entity_id":              r.EntityID,
			"portfolio":              r.Portfolio,
			"groups":                 r.Groups,
		})
	}

	sql := `BEGIN TRANSACTION;
		DELETE ownership;
		IF array::len($rows) > 0 { INSERT INTO ownership $rows; };
		COMMIT TRANSACTION;`
	if _, err := surrealdb.Query[any](ctx, s.db, sql, map[string]any{"rows": content}); err != nil {
		return fmt.Errorf("failed to replace ownership rows: %w", err)
	}

	s.logger.Info().Int("rows", len(rows)).Msg("Ownership rows replaced")
	return nil
}

func (s *OwnershipStore) ListRows(ctx context.Context) ([]*models.OwnershipRow, error) {
	sql := "SELECT holding_account, holding_account_number, top_level_client, entity_id, portfolio, groups, seq FROM ownership ORDER BY seq ASC"
	results, err := surrealdb.Query[[]models.OwnershipRow](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list ownership rows: %w", err)
	}

	rows := firstResult(results)
	out := make([]*models.OwnershipRow, 0, len(rows))
	for i := range rows {
		out = append(out, &rows[i])
	}
	return out, nil
}

var _ interfaces.OwnershipStore = (*OwnershipStore)(nil)
