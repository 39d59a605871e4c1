package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/models"
	"github.com/bobmcallan/rollup/internal/services/classify"
)

// FormatMarkdown renders a report as markdown with amounts in currency.
func FormatMarkdown(r *models.Report, currency string) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# %s (%s)\n\n", r.DisplayName, r.Level))
	sb.WriteString(fmt.Sprintf("**Date:** %s\n", models.FormatDate(r.Date)))
	sb.WriteString(fmt.Sprintf("**Total Value:** %s\n", common.FormatMoney(r.TotalValue, currency)))
	if r.Warning != "" {
		sb.WriteString(fmt.Sprintf("**Warning:** %s\n", r.Warning))
	}
	sb.WriteString("\n")

	if r.NoData {
		sb.WriteString("_No positions for this date._\n")
		return sb.String()
	}

	sb.WriteString("## Allocation\n\n")
	sb.WriteString("| Asset Class | Subcategory | Band | Value | Weight | Beta | Volatility | Duration |\n")
	sb.WriteString("|-------------|-------------|------|-------|--------|------|------------|----------|\n")
	for _, class := range classify.AssetClasses() {
		ac, ok := r.AssetClasses[class]
		if !ok {
			continue
		}
		sb.WriteString(allocationRow(class, "", "", ac.Value, ac.TotalPct, ac.Metrics, currency, true))
		for _, subName := range sortedKeys(ac.Subcategories) {
			sub := ac.Subcategories[subName]
			sb.WriteString(allocationRow("", subName, "", sub.Value, sub.Pct, sub.Metrics, currency, false))
			for _, bandName := range sortedKeys(sub.Bands) {
				b := sub.Bands[bandName]
				sb.WriteString(allocationRow("", "", bandName, b.Value, b.Pct, b.Metrics, currency, false))
			}
		}
	}
	sb.WriteString("\n")

	sb.WriteString("## Liquidity\n\n")
	sb.WriteString(fmt.Sprintf("- Liquid: %s (%s)\n", common.FormatMoney(r.Liquidity.LiquidValue, currency), common.FormatPct(r.Liquidity.LiquidPct)))
	sb.WriteString(fmt.Sprintf("- Illiquid: %s (%s)\n\n", common.FormatMoney(r.Liquidity.IlliquidValue, currency), common.FormatPct(r.Liquidity.IlliquidPct)))

	sb.WriteString("## Performance\n\n")
	sb.WriteString("| Period | Reference | Return |\n")
	sb.WriteString("|--------|-----------|--------|\n")
	for _, p := range models.Periods {
		pr := r.Performance[p]
		ref := "-"
		var ret *float64
		if pr != nil {
			if pr.ReferenceDate != nil {
				ref = models.FormatDate(*pr.ReferenceDate)
			}
			ret = pr.ReturnPct
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n", p, ref, common.FormatSignedPct(ret)))
	}
	sb.WriteString("\n")

	if len(r.Children) > 0 {
		sb.WriteString("## Breakdown\n\n")
		sb.WriteString("| Name | Level | Value | Share |\n")
		sb.WriteString("|------|-------|-------|-------|\n")
		for _, c := range r.Children {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				c.DisplayName, c.NodeType, common.FormatMoney(c.TotalValue, currency), common.FormatPct(c.PctOfParent)))
		}
		sb.WriteString("\n")
	}

	if len(r.Unmatched) > 0 {
		sb.WriteString("## Unmatched Securities\n\n")
		sb.WriteString("Excluded from weighted metrics.\n\n")
		for _, u := range r.Unmatched {
			sb.WriteString(fmt.Sprintf("- %s (%s, account %s)\n", u.Ticker, u.AssetClass, u.AccountID))
		}
		sb.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		sb.WriteString("## Warnings\n\n")
		for _, w := range r.Warnings {
			sb.WriteString(fmt.Sprintf("- `%s` %s\n", w.Code, w.Message))
		}
	}

	return sb.String()
}

func allocationRow(class, sub, band string, value decimal.Decimal, pct *float64, m models.WeightedMetrics, currency string, bold bool) string {
	v := common.FormatMoney(value, currency)
	if bold {
		class = "**" + class + "**"
	}
	return fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s | %s |\n",
		class, sub, band, v, common.FormatPct(pct),
		common.FormatMetric(m.Beta), common.FormatMetric(m.Volatility), common.FormatMetric(m.Duration))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
