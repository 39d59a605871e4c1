package surrealdb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
)

// positionSelectFields aliases position_id to id for struct mapping.
const positionSelectFields = "position_id AS id, account_id, ticker, asset_class, second_level, third_level, liquidity, value_token, as_of_date"

// PositionStore implements interfaces.PositionStore using SurrealDB.
// Every position row carries its snapshot_date so a date partition can be
// read with a single indexed query.
type PositionStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(db *surrealdb.DB, logger *common.Logger) *PositionStore {
	return &PositionStore{db: db, logger: logger}
}

type snapshotRow struct {
	Date          time.Time `json:"date"`
	DateKey       string    `json:"date_key"`
	PositionCount int       `json:"position_count"`
	IngestedAt    time.Time `json:"ingested_at"`
}

func (s *PositionStore) PutSnapshot(ctx context.Context, date time.Time, positions []*models.Position) error {
	date = models.DateOf(date)
	key := models.FormatDate(date)

	exists, err := s.HasSnapshot(ctx, date)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", models.ErrSnapshotExists, key)
	}

	rows := make([]map[string]any, 0, len(positions))
	for _, p := range positions {
		rows = append(rows, map[string]any{
			"position_id":   p.ID,
			"account_id":    p.AccountID,
			"ticker":        p.Ticker,
			"asset_class":   p.AssetClass,
			"second_level":  p.SecondLevel,
			"third_level":   p.ThirdLevel,
			"liquidity":     p.Liquidity,
			"value_token":   p.ValueToken,
			"as_of_date":    date,
			"snapshot_date": key,
		})
	}

	// The snapshot marker and its rows commit together; CREATE fails if a
	// concurrent writer got there first.
	sql := `BEGIN TRANSACTION;
		CREATE $sid CONTENT $snapshot;
		IF array::len($rows) > 0 { INSERT INTO position $rows; };
		COMMIT TRANSACTION;`
	vars := map[string]any{
		"sid": surrealmodels.NewRecordID("snapshot", key),
		"snapshot": snapshotRow{
			Date:          date,
			DateKey:       key,
			PositionCount: len(positions),
			IngestedAt:    time.Now(),
		},
		"rows": rows,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", key, err)
	}

	s.logger.Debug().Str("date", key).Int("positions", len(positions)).Msg("Position snapshot stored")
	return nil
}

func (s *PositionStore) ListByAccounts(ctx context.Context, date time.Time, accountIDs []string) ([]*models.Position, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}

	sql := "SELECT " + positionSelectFields + " FROM position WHERE snapshot_date = $date AND account_id IN $accounts"
	vars := map[string]any{
		"date":     models.FormatDate(date),
		"accounts": accountIDs,
	}

	results, err := surrealdb.Query[[]models.Position](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	rows := firstResult(results)
	out := make([]*models.Position, 0, len(rows))
	for i := range rows {
		out = append(out, &rows[i])
	}
	return out, nil
}

func (s *PositionStore) HasSnapshot(ctx context.Context, date time.Time) (bool, error) {
	snap, err := surrealdb.Select[snapshotRow](ctx, s.db, surrealmodels.NewRecordID("snapshot", models.FormatDate(date)))
	if err != nil {
		return false, fmt.Errorf("failed to check snapshot: %w", err)
	}
	return snap != nil && snap.DateKey != "", nil
}

func (s *PositionStore) ListSnapshots(ctx context.Context) ([]*models.SnapshotInfo, error) {
	sql := "SELECT date, date_key, position_count, ingested_at FROM snapshot ORDER BY date_key ASC"
	results, err := surrealdb.Query[[]snapshotRow](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var infos []*models.SnapshotInfo
	for _, r := range firstResult(results) {
		infos = append(infos, &models.SnapshotInfo{
			Date:          models.DateOf(r.Date),
			PositionCount: r.PositionCount,
			IngestedAt:    r.IngestedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Date.Before(infos[j].Date) })
	return infos, nil
}

func (s *PositionStore) SnapshotDates(ctx context.Context) ([]time.Time, error) {
	infos, err := s.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, len(infos))
	for i, info := range infos {
		dates[i] = info.Date
	}
	return dates, nil
}

var _ interfaces.PositionStore = (*PositionStore)(nil)
