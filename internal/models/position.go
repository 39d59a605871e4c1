package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Liquidity buckets
const (
	LiquidityLiquid   = "Liquid"
	LiquidityIlliquid = "Illiquid"
)

// Position is a stored holding for one account on one snapshot date.
// The monetary value is held as an opaque token produced by the value cipher;
// plaintext only exists while a rollup is being computed.
type Position struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Ticker      string    `json:"ticker,omitempty"`
	AssetClass  string    `json:"asset_class"`
	SecondLevel string    `json:"second_level,omitempty"`
	ThirdLevel  string    `json:"third_level,omitempty"`
	Liquidity   string    `json:"liquidity"`
	ValueToken  string    `json:"value_token"`
	AsOf        time.Time `json:"as_of_date"`
}

// RiskKey returns the key used to match a position against risk statistics:
// the ticker when present, otherwise the position id.
func (p *Position) RiskKey() string {
	if t := NormalizeTicker(p.Ticker); t != "" {
		return t
	}
	return NormalizeTicker(p.ID)
}

// PositionInput is the plaintext shape accepted when a snapshot is ingested.
type PositionInput struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	Ticker      string          `json:"ticker,omitempty"`
	AssetClass  string          `json:"asset_class"`
	SecondLevel string          `json:"second_level,omitempty"`
	ThirdLevel  string          `json:"third_level,omitempty"`
	Liquidity   string          `json:"liquidity"`
	Value       decimal.Decimal `json:"value"`
}

// SnapshotInfo summarises one ingested position snapshot.
type SnapshotInfo struct {
	Date          time.Time `json:"date"`
	PositionCount int       `json:"position_count"`
	IngestedAt    time.Time `json:"ingested_at"`
}
