package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset class keys used in reports
const (
	AssetClassEquities     = "equities"
	AssetClassFixedIncome  = "fixed_income"
	AssetClassHardCurrency = "hard_currency"
	AssetClassAlternatives = "uncorrelated_alternatives"
	AssetClassCash         = "cash"
	AssetClassOther        = "other"
)

// OtherBucket collects values whose second or third level is not in the taxonomy.
const OtherBucket = "other"

// Duration bands for fixed income subcategories
const (
	BandShortDuration  = "short_duration"
	BandMarketDuration = "market_duration"
	BandLongDuration   = "long_duration"
)

// WeightedMetrics are value-weighted averages over positions with a matching
// risk statistic. A nil field means no matched position carried that metric.
type WeightedMetrics struct {
	Beta       *float64 `json:"beta"`
	Volatility *float64 `json:"volatility"`
	Duration   *float64 `json:"duration"`
	BetaToGold *float64 `json:"beta_to_gold"`
}

// BandAllocation is a duration band within a fixed income subcategory.
type BandAllocation struct {
	Value   decimal.Decimal `json:"value"`
	Pct     *float64        `json:"pct"`
	Metrics WeightedMetrics `json:"metrics"`
}

// SubcategoryAllocation is the second level of the allocation path. Fixed
// income duration bands sit one level down under "bands", so the share held
// as short-duration government bonds serialises at
// asset_classes.fixed_income.subcategories.government_bonds.bands.short_duration.pct.
type SubcategoryAllocation struct {
	Value   decimal.Decimal            `json:"value"`
	Pct     *float64                   `json:"pct"`
	Metrics WeightedMetrics            `json:"metrics"`
	Bands   map[string]*BandAllocation `json:"bands,omitempty"`
}

// AssetClassAllocation is the first level of the allocation path.
type AssetClassAllocation struct {
	Value         decimal.Decimal                   `json:"value"`
	TotalPct      *float64                          `json:"total_pct"`
	Metrics       WeightedMetrics                   `json:"metrics"`
	Subcategories map[string]*SubcategoryAllocation `json:"subcategories,omitempty"`
}

// LiquiditySplit is the value-weighted liquid/illiquid breakdown.
type LiquiditySplit struct {
	LiquidValue   decimal.Decimal `json:"liquid_value"`
	IlliquidValue decimal.Decimal `json:"illiquid_value"`
	LiquidPct     *float64        `json:"liquid_pct"`
	IlliquidPct   *float64        `json:"illiquid_pct"`
}

// UnmatchedSecurity is a position that had no usable risk statistic for the
// report date. It is excluded from every weighted metric.
type UnmatchedSecurity struct {
	PositionID string `json:"position_id"`
	AccountID  string `json:"account_id"`
	Ticker     string `json:"ticker"`
	AssetClass string `json:"asset_class"`
}

// ExcludedPosition is a position that could not be valued and was left out of the rollup.
type ExcludedPosition struct {
	PositionID string `json:"position_id"`
	AccountID  string `json:"account_id"`
	Reason     string `json:"reason"`
}

// AggregatedNode is the rollup of every position under one ownership node on one date.
// It is derived on demand and never persisted.
type AggregatedNode struct {
	NodeID        string                           `json:"node_id"`
	NodeType      NodeType                         `json:"node_type"`
	Key           string                           `json:"key"`
	DisplayName   string                           `json:"display_name"`
	Date          time.Time                        `json:"date"`
	NoData        bool                             `json:"no_data"`
	TotalValue    decimal.Decimal                  `json:"total_value"`
	PositionCount int                              `json:"position_count"`
	AssetClasses  map[string]*AssetClassAllocation `json:"asset_classes"`
	Liquidity     LiquiditySplit                   `json:"liquidity"`
	Metrics       WeightedMetrics                  `json:"metrics"`
	Children      []*AggregatedNode                `json:"children,omitempty"`
}

// Performance periods
const (
	Period1D  = "1D"
	PeriodMTD = "MTD"
	PeriodQTD = "QTD"
	PeriodYTD = "YTD"
)

// Periods lists performance periods in display order.
var Periods = []string{Period1D, PeriodMTD, PeriodQTD, PeriodYTD}

// PeriodReturn is a simple period-over-period change in total value.
// ReturnPct is nil when the reference snapshot is missing or worth zero.
type PeriodReturn struct {
	Period         string           `json:"period"`
	ReferenceDate  *time.Time       `json:"reference_date"`
	ReferenceValue *decimal.Decimal `json:"reference_value"`
	ReturnPct      *float64         `json:"return_pct"`
}

// ChildSummary is one direct child of the reported node.
type ChildSummary struct {
	NodeID      string          `json:"node_id"`
	NodeType    NodeType        `json:"node_type"`
	DisplayName string          `json:"display_name"`
	TotalValue  decimal.Decimal `json:"total_value"`
	PctOfParent *float64        `json:"pct_of_parent"`
}

// Report is the assembled output served to presentation layers.
type Report struct {
	Date         time.Time                        `json:"date"`
	Level        NodeType                         `json:"level"`
	Key          string                           `json:"key"`
	NodeID       string                           `json:"node_id"`
	DisplayName  string                           `json:"display_name"`
	NoData       bool                             `json:"no_data"`
	TotalValue   decimal.Decimal                  `json:"total_value"`
	AssetClasses map[string]*AssetClassAllocation `json:"asset_classes"`
	Liquidity    LiquiditySplit                   `json:"liquidity"`
	Metrics      WeightedMetrics                  `json:"metrics"`
	Performance  map[string]*PeriodReturn         `json:"performance"`
	Children     []ChildSummary                   `json:"children,omitempty"`
	Unmatched    []UnmatchedSecurity              `json:"unmatched_securities,omitempty"`
	Excluded     []ExcludedPosition               `json:"excluded_positions,omitempty"`
	Warnings     []Warning                        `json:"warnings,omitempty"`
	Warning      string                           `json:"warning,omitempty"` // summary line for presentation layers
	GeneratedAt  time.Time                        `json:"generated_at"`
}

// RollupResult is the aggregator output for one requested node: the node's
// subtree plus the diagnostics gathered while computing it.
type RollupResult struct {
	Node      *AggregatedNode     `json:"node"`
	Unmatched []UnmatchedSecurity `json:"unmatched_securities,omitempty"`
	Excluded  []ExcludedPosition  `json:"excluded_positions,omitempty"`
	Warnings  []Warning           `json:"warnings,omitempty"`
}
