package surrealdb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
)

// riskStatFields lists the risk_stat fields read back into models.RiskStatRecord.
const riskStatFields = "ticker, asset_class, volatility, beta, duration, beta_to_gold, as_of_date, snapshot_date"

// RiskStatStore implements interfaces.RiskStatStore using SurrealDB.
// Records live in risk_stat keyed by ticker and date; visibility is decided
// by the risk_partition row for each date.
type RiskStatStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewRiskStatStore creates a new RiskStatStore.
func NewRiskStatStore(db *surrealdb.DB, logger *common.Logger) *RiskStatStore {
	return &RiskStatStore{db: db, logger: logger}
}

type riskStatRow struct {
	models.RiskStatRecord
	SnapshotDate string `json:"snapshot_date"`
}

type partitionRow struct {
	DateKey   string    `json:"date_key"`
	Date      time.Time `json:"date"`
	Status    string    `json:"status"`
	JobID     string    `json:"job_id"`
	SealedBy  string    `json:"sealed_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// riskStatRecordID keys a record by the array [ticker, date], so any ticker
// spelling maps to its own record.
func riskStatRecordID(r *models.RiskStatRecord) []any {
	return []any{models.NormalizeTicker(r.Ticker), models.FormatDate(r.AsOf)}
}

// partitionBusyMarker prefixes the error thrown when another job holds a date.
const partitionBusyMarker = "risk partition busy:"

// partitionClaimError maps a failed claim transaction to ErrPartitionBusy when
// the date was held by another job or a concurrent claim won the commit.
func partitionClaimError(err error) error {
	msg := err.Error()
	if i := strings.Index(msg, partitionBusyMarker); i >= 0 {
		detail := msg[i+len(partitionBusyMarker):]
		if j := strings.IndexAny(detail, "\n\""); j >= 0 {
			detail = detail[:j]
		}
		return fmt.Errorf("%w: %s", models.ErrPartitionBusy, strings.TrimSpace(detail))
	}
	if strings.Contains(msg, "read or write conflict") {
		return fmt.Errorf("%w: claimed concurrently: %v", models.ErrPartitionBusy, err)
	}
	return fmt.Errorf("failed to open partitions: %w", err)
}

func (s *RiskStatStore) UpsertBatch(ctx context.Context, records []*models.RiskStatRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]map[string]any, 0, len(records))
	for _, r := range records {
		date := models.DateOf(r.AsOf)
		rows = append(rows, map[string]any{
			"rid":           riskStatRecordID(r),
			"ticker":        models.NormalizeTicker(r.Ticker),
			"asset_class":   r.AssetClass,
			"volatility":    r.Volatility,
			"beta":          r.Beta,
			"duration":      r.Duration,
			"beta_to_gold":  r.BetaToGold,
			"as_of_date":    date,
			"snapshot_date": models.FormatDate(date),
		})
	}

	sql := "FOR $r IN $rows { UPSERT type::record('risk_stat', $r.rid) CONTENT $r; };"
	if _, err := surrealdb.Query[any](ctx, s.db, sql, map[string]any{"rows": rows}); err != nil {
		return fmt.Errorf("failed to upsert risk stats: %w", err)
	}
	return nil
}

func (s *RiskStatStore) Latest(ctx context.Context, tickers []string, asOf time.Time) (map[string]*models.RiskStatRecord, error) {
	out := make(map[string]*models.RiskStatRecord)
	if len(tickers) == 0 {
		return out, nil
	}

	dateKey := models.FormatDate(asOf)

	sealedResults, err := surrealdb.Query[[]partitionRow](ctx, s.db,
		"SELECT date_key FROM risk_partition WHERE status = $sealed AND date_key <= $date",
		map[string]any{"sealed": models.PartitionSealed, "date": dateKey})
	if err != nil {
		return nil, fmt.Errorf("failed to read sealed partitions: %w", err)
	}
	sealed := make(map[string]bool)
	for _, p := range firstResult(sealedResults) {
		sealed[p.DateKey] = true
	}
	if len(sealed) == 0 {
		return out, nil
	}

	normalized := make([]string, 0, len(tickers))
	for _, t := range tickers {
		normalized = append(normalized, models.NormalizeTicker(t))
	}

	sql := "SELECT " + riskStatFields + " FROM risk_stat WHERE ticker IN $tickers AND snapshot_date <= $date"
	results, err := surrealdb.Query[[]riskStatRow](ctx, s.db, sql, map[string]any{
		"tickers": normalized,
		"date":    dateKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read risk stats: %w", err)
	}

	for _, row := range firstResult(results) {
		if !sealed[row.SnapshotDate] {
			continue
		}
		cur, ok := out[row.Ticker]
		if ok && !row.AsOf.After(cur.AsOf) {
			continue
		}
		rec := row.RiskStatRecord
		rec.AsOf = models.DateOf(rec.AsOf)
		out[row.Ticker] = &rec
	}
	return out, nil
}

func (s *RiskStatStore) Count(ctx context.Context) (int, error) {
	type countResult struct {
		Cnt int `json:"cnt"`
	}
	results, err := surrealdb.Query[[]countResult](ctx, s.db, "SELECT count() AS cnt FROM risk_stat GROUP ALL", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count risk stats: %w", err)
	}
	rows := firstResult(results)
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Cnt, nil
}

func (s *RiskStatStore) OpenPartitions(ctx context.Context, jobID string, dates []time.Time) error {
	seen := make(map[string]bool)
	var rows []map[string]any
	var keys []string
	for _, d := range dates {
		key := models.FormatDate(d)
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
		rows = append(rows, map[string]any{"date_key": key, "date": models.DateOf(d)})
	}
	if len(rows) == 0 {
		return nil
	}

	// Check and claim run in one transaction so two jobs cannot both pass
	// the check. A sealed partition keeps its publisher in sealed_by; SET
	// assignments apply in order, so sealed_by reads the previous status.
	sql := `BEGIN TRANSACTION;
	LET $held = (SELECT date_key, job_id FROM risk_partition WHERE date_key IN $keys AND status = $open AND job_id != $job);
	IF array::len($held) > 0 {
		THROW string::concat($marker, " ", $held[0].date_key, " held by job ", $held[0].job_id);
	};
	FOR $p IN $rows {
		UPSERT type::record('risk_partition', $p.date_key) SET
			sealed_by = IF status = $sealed { job_id } ELSE IF status = $open { sealed_by } ELSE { NONE },
			date_key = $p.date_key, date = $p.date, status = $open, job_id = $job, updated_at = $now;
	};
	COMMIT TRANSACTION;`
	vars := map[string]any{
		"keys":   keys,
		"rows":   rows,
		"open":   models.PartitionOpen,
		"sealed": models.PartitionSealed,
		"job":    jobID,
		"marker": partitionBusyMarker,
		"now":    time.Now(),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return partitionClaimError(err)
	}
	return nil
}

func (s *RiskStatStore) SealPartitions(ctx context.Context, jobID string) error {
	return s.closePartitions(ctx, jobID, models.PartitionSealed,
		"status = $sealed, sealed_by = job_id, updated_at = $now")
}

// AbandonPartitions hands a partition back to the job that sealed it before
// jobID claimed it; partitions never sealed become abandoned.
func (s *RiskStatStore) AbandonPartitions(ctx context.Context, jobID string) error {
	return s.closePartitions(ctx, jobID, models.PartitionAbandoned,
		"status = IF sealed_by { $sealed } ELSE { $abandoned }, job_id = IF sealed_by { sealed_by } ELSE { job_id }, updated_at = $now")
}

func (s *RiskStatStore) closePartitions(ctx context.Context, jobID, outcome, set string) error {
	sql := "UPDATE risk_partition SET " + set + " WHERE job_id = $job AND status = $open"
	vars := map[string]any{
		"sealed":    models.PartitionSealed,
		"abandoned": models.PartitionAbandoned,
		"now":       time.Now(),
		"job":       jobID,
		"open":      models.PartitionOpen,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to mark partitions %s: %w", outcome, err)
	}
	s.logger.Debug().Str("job_id", jobID).Str("outcome", outcome).Msg("Risk-stat partitions closed")
	return nil
}

func (s *RiskStatStore) ListPartitions(ctx context.Context) ([]*models.RiskStatPartition, error) {
	results, err := surrealdb.Query[[]partitionRow](ctx, s.db,
		"SELECT date_key, date, status, job_id, sealed_by, updated_at FROM risk_partition ORDER BY date_key ASC", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}

	var out []*models.RiskStatPartition
	for _, p := range firstResult(results) {
		out = append(out, &models.RiskStatPartition{
			Date:      models.DateOf(p.Date),
			Status:    p.Status,
			JobID:     p.JobID,
			SealedBy:  p.SealedBy,
			UpdatedAt: p.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

var _ interfaces.RiskStatStore = (*RiskStatStore)(nil)
