// Package classify maps positions onto the fixed allocation taxonomy.
package classify

import (
	"slices"
	"strings"

	"github.com/bobmcallan/rollup/internal/models"
)

// Duration band thresholds in years.
const (
	ShortDurationMax  = 3.0
	MarketDurationMax = 10.0
)

// taxonomy lists the recognised subcategories per asset class.
var taxonomy = map[string][]string{
	models.AssetClassEquities: {
		"us_markets", "global_markets", "emerging_markets", "commodities", "real_estate",
		"private_equity", "high_yield", "venture_capital", "low_beta_alpha",
		"equity_derivatives", "income_notes",
	},
	models.AssetClassFixedIncome: {
		"municipal_bonds", "investment_grade", "government_bonds", "fixed_income_derivatives",
	},
	models.AssetClassHardCurrency: {
		"gold", "silver", "precious_metals_miners", "digital_assets",
	},
	models.AssetClassAlternatives: {
		"hedge_funds", "private_credit", "structured_notes", "collectibles", "real_assets",
	},
	models.AssetClassCash: nil,
}

var bands = []string{models.BandShortDuration, models.BandMarketDuration, models.BandLongDuration}

// assetClassAliases maps common spellings from upstream files onto taxonomy keys.
var assetClassAliases = map[string]string{
	"equity":           models.AssetClassEquities,
	"fixedincome":      models.AssetClassFixedIncome,
	"bonds":            models.AssetClassFixedIncome,
	"alternatives":     models.AssetClassAlternatives,
	"cash_equivalents": models.AssetClassCash,
}

var bandAliases = map[string]string{
	"short":           models.BandShortDuration,
	"short_duration":  models.BandShortDuration,
	"market":          models.BandMarketDuration,
	"market_duration": models.BandMarketDuration,
	"intermediate":    models.BandMarketDuration,
	"long":            models.BandLongDuration,
	"long_duration":   models.BandLongDuration,
}

// Classification is the allocation path and liquidity bucket of one position.
type Classification struct {
	AssetClass  string
	Subcategory string // empty for asset classes without subcategories
	Band        string // fixed income only
	Liquidity   string

	// Unclassified is set when any level fell back to the "other" bucket.
	Unclassified bool

	// UnknownLiquidity is set when the liquidity flag was not recognised.
	UnknownLiquidity bool
}

// Normalize lower-cases a taxonomy label and folds separators to underscores,
// so "US Markets", "us-markets" and "us_markets" compare equal.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '/'
	}), "_")
}

// Classify maps a position to its allocation path and liquidity bucket.
// duration is the position's risk-stat duration, used for fixed income when
// third_level does not name a band; nil when unavailable.
func Classify(p *models.Position, duration *float64) Classification {
	c := Classification{}

	c.AssetClass = assetClass(p.AssetClass)
	if c.AssetClass == models.AssetClassOther {
		c.Unclassified = true
	}

	subs, known := taxonomy[c.AssetClass]
	if known && len(subs) > 0 {
		sub := Normalize(p.SecondLevel)
		if slices.Contains(subs, sub) {
			c.Subcategory = sub
		} else {
			c.Subcategory = models.OtherBucket
			c.Unclassified = true
		}
	} else if c.AssetClass == models.AssetClassOther {
		c.Subcategory = models.OtherBucket
	}

	if c.AssetClass == models.AssetClassFixedIncome {
		c.Band = band(p.ThirdLevel, duration)
		if c.Band == models.OtherBucket {
			c.Unclassified = true
		}
	}

	c.Liquidity, c.UnknownLiquidity = liquidity(p.Liquidity)
	return c
}

func assetClass(raw string) string {
	n := Normalize(raw)
	if _, ok := taxonomy[n]; ok {
		return n
	}
	if alias, ok := assetClassAliases[n]; ok {
		return alias
	}
	return models.AssetClassOther
}

// band prefers an explicit third level, then the risk-stat duration.
func band(thirdLevel string, duration *float64) string {
	if b, ok := bandAliases[Normalize(thirdLevel)]; ok {
		return b
	}
	if duration == nil {
		return models.OtherBucket
	}
	return BandForDuration(*duration)
}

// BandForDuration buckets a duration in years: below 3 short, 3 to 10 market, above 10 long.
func BandForDuration(d float64) string {
	switch {
	case d < ShortDurationMax:
		return models.BandShortDuration
	case d <= MarketDurationMax:
		return models.BandMarketDuration
	default:
		return models.BandLongDuration
	}
}

func liquidity(raw string) (string, bool) {
	switch Normalize(raw) {
	case "liquid":
		return models.LiquidityLiquid, false
	case "illiquid":
		return models.LiquidityIlliquid, false
	default:
		return models.LiquidityIlliquid, true
	}
}

// Subcategories returns the recognised subcategories of an asset class.
func Subcategories(assetClass string) []string {
	return append([]string(nil), taxonomy[assetClass]...)
}

// Bands returns the fixed income duration bands in display order.
func Bands() []string {
	return append([]string(nil), bands...)
}

// AssetClasses returns the asset classes in display order, "other" last.
func AssetClasses() []string {
	return []string{
		models.AssetClassEquities,
		models.AssetClassFixedIncome,
		models.AssetClassHardCurrency,
		models.AssetClassAlternatives,
		models.AssetClassCash,
		models.AssetClassOther,
	}
}
