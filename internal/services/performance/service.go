// Package performance derives simple period returns from snapshot totals.
package performance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
)

// Compile-time interface check
var _ interfaces.PerformanceService = (*Service)(nil)

var hundred = decimal.NewFromInt(100)

// Service implements PerformanceService
type Service struct {
	storage interfaces.StorageManager
	rollup  interfaces.RollupService
	logger  *common.Logger
}

// NewService creates a new performance service
func NewService(storage interfaces.StorageManager, rollup interfaces.RollupService, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		rollup:  rollup,
		logger:  logger,
	}
}

// ReferenceDate picks the reference snapshot for period out of ascending
// snapshot dates. 1D uses the latest snapshot before date; MTD, QTD and YTD
// use the first snapshot on or after the period start and not after date.
func ReferenceDate(period string, dates []time.Time, date time.Time) (time.Time, bool) {
	date = models.DateOf(date)

	var start time.Time
	switch period {
	case models.Period1D:
		idx := sort.Search(len(dates), func(i int) bool {
			return !dates[i].Before(date)
		})
		if idx == 0 {
			return time.Time{}, false
		}
		return dates[idx-1], true
	case models.PeriodMTD:
		start = models.StartOfMonth(date)
	case models.PeriodQTD:
		start = models.StartOfQuarter(date)
	case models.PeriodYTD:
		start = models.StartOfYear(date)
	default:
		return time.Time{}, false
	}

	idx := sort.Search(len(dates), func(i int) bool {
		return !dates[i].Before(start)
	})
	if idx >= len(dates) || dates[idx].After(date) {
		return time.Time{}, false
	}
	return dates[idx], true
}

// Compute returns one PeriodReturn per period. A missing reference snapshot,
// or one worth zero, yields a nil ReturnPct rather than zero.
func (s *Service) Compute(ctx context.Context, h interfaces.Hierarchy, nodeID string, date time.Time, current decimal.Decimal) (map[string]*models.PeriodReturn, error) {
	dates, err := s.storage.PositionStore().SnapshotDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot dates: %w", err)
	}

	type refTotal struct {
		value  decimal.Decimal
		noData bool
	}
	totals := make(map[time.Time]refTotal)

	out := make(map[string]*models.PeriodReturn, len(models.Periods))
	for _, period := range models.Periods {
		pr := &models.PeriodReturn{Period: period}
		out[period] = pr

		ref, ok := ReferenceDate(period, dates, date)
		if !ok {
			continue
		}
		refDate := ref
		pr.ReferenceDate = &refDate

		rt, cached := totals[ref]
		if !cached {
			v, noData, err := s.rollup.TotalValue(ctx, h, nodeID, ref)
			if err != nil {
				return nil, fmt.Errorf("failed to value %s on %s: %w", nodeID, models.FormatDate(ref), err)
			}
			rt = refTotal{value: v, noData: noData}
			totals[ref] = rt
		}
		if rt.noData {
			continue
		}

		refValue := rt.value
		pr.ReferenceValue = &refValue
		pr.ReturnPct = periodReturn(current, refValue)
	}
	return out, nil
}

func periodReturn(current, reference decimal.Decimal) *float64 {
	if reference.IsZero() {
		return nil
	}
	f, _ := current.Sub(reference).Mul(hundred).DivRound(reference, 10).Float64()
	return &f
}
