// Package report assembles rollup and performance output into reports.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
)

// Compile-time interface check
var _ interfaces.ReportService = (*Service)(nil)

var hundred = decimal.NewFromInt(100)

// Service implements ReportService
type Service struct {
	ownership   interfaces.OwnershipService
	rollup      interfaces.RollupService
	performance interfaces.PerformanceService
	timeout     time.Duration
	logger      *common.Logger
}

// NewService creates a new report service. timeout bounds the performance
// step; when it elapses the report is returned with a warning instead.
func NewService(
	ownership interfaces.OwnershipService,
	rollup interfaces.RollupService,
	performance interfaces.PerformanceService,
	timeout time.Duration,
	logger *common.Logger,
) *Service {
	return &Service{
		ownership:   ownership,
		rollup:      rollup,
		performance: performance,
		timeout:     timeout,
		logger:      logger,
	}
}

// GetReport builds the report for the node at level/key on date.
func (s *Service) GetReport(ctx context.Context, date time.Time, level models.NodeType, key string) (*models.Report, error) {
	date = models.DateOf(date)

	h, err := s.ownership.Hierarchy(ctx)
	if err != nil {
		return nil, fmt.Errorf("load hierarchy: %w", err)
	}

	node, err := h.Resolve(level, key)
	if err != nil {
		return nil, err
	}

	res, err := s.rollup.Aggregate(ctx, h, node.ID, date)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", node.ID, err)
	}
	agg := res.Node

	report := &models.Report{
		Date:         date,
		Level:        node.Type,
		Key:          key,
		NodeID:       node.ID,
		DisplayName:  node.DisplayName,
		NoData:       agg.NoData,
		TotalValue:   agg.TotalValue,
		AssetClasses: agg.AssetClasses,
		Liquidity:    agg.Liquidity,
		Metrics:      agg.Metrics,
		Performance:  emptyPerformance(),
		Children:     childSummaries(agg),
		Unmatched:    res.Unmatched,
		Excluded:     res.Excluded,
		Warnings:     res.Warnings,
		GeneratedAt:  time.Now(),
	}

	var perfFailed bool
	if !agg.NoData {
		perfFailed = s.addPerformance(ctx, h, report)
	}

	report.Warning = summarize(report, perfFailed)

	s.logger.Info().
		Str("node", node.ID).
		Str("date", models.FormatDate(date)).
		Bool("no_data", report.NoData).
		Int("warnings", len(report.Warnings)).
		Msg("Report generated")

	return report, nil
}

// addPerformance fills report.Performance within the configured timeout.
// It reports whether the step failed; failures become warnings.
func (s *Service) addPerformance(ctx context.Context, h interfaces.Hierarchy, report *models.Report) bool {
	pctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	perf, err := s.performance.Compute(pctx, h, report.NodeID, report.Date, report.TotalValue)
	if err != nil {
		s.logger.Warn().Err(err).Str("node", report.NodeID).Msg("Performance unavailable")
		report.Warnings = append(report.Warnings, models.Warning{
			Code:    models.WarnPerformanceUnavailable,
			Message: "performance could not be computed: " + err.Error(),
		})
		return true
	}
	report.Performance = perf
	return false
}

func emptyPerformance() map[string]*models.PeriodReturn {
	out := make(map[string]*models.PeriodReturn, len(models.Periods))
	for _, p := range models.Periods {
		out[p] = &models.PeriodReturn{Period: p}
	}
	return out
}

func childSummaries(agg *models.AggregatedNode) []models.ChildSummary {
	if len(agg.Children) == 0 {
		return nil
	}
	out := make([]models.ChildSummary, 0, len(agg.Children))
	for _, c := range agg.Children {
		cs := models.ChildSummary{
			NodeID:      c.NodeID,
			NodeType:    c.NodeType,
			DisplayName: c.DisplayName,
			TotalValue:  c.TotalValue,
		}
		if !agg.TotalValue.IsZero() {
			f, _ := c.TotalValue.Mul(hundred).DivRound(agg.TotalValue, 10).Float64()
			cs.PctOfParent = &f
		}
		out = append(out, cs)
	}
	return out
}

// summarize produces the single-line warning presentation layers display.
func summarize(r *models.Report, perfFailed bool) string {
	var parts []string
	if r.NoData {
		parts = append(parts, "no data for "+models.FormatDate(r.Date))
	}
	if perfFailed {
		parts = append(parts, "performance unavailable")
	}
	if n := len(r.Unmatched); n > 0 {
		parts = append(parts, fmt.Sprintf("%d securities without risk statistics", n))
	}
	if n := len(r.Excluded); n > 0 {
		parts = append(parts, fmt.Sprintf("%d positions excluded", n))
	}
	return strings.Join(parts, "; ")
}
