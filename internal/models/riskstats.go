package models

import (
	"strings"
	"time"
)

// RiskStatRecord holds risk statistics for one security on one date.
// Which metrics are populated depends on the asset class: beta for equities,
// duration for fixed income, beta_to_gold for hard currency.
type RiskStatRecord struct {
	Ticker     string    `json:"ticker"` // ticker symbol, or position id for unlisted holdings
	AssetClass string    `json:"asset_class,omitempty"`
	Volatility *float64  `json:"volatility,omitempty"`
	Beta       *float64  `json:"beta,omitempty"`
	Duration   *float64  `json:"duration,omitempty"`
	BetaToGold *float64  `json:"beta_to_gold,omitempty"`
	AsOf       time.Time `json:"as_of_date"`
}

// Key returns the normalised (ticker, date) identity of the record.
func (r *RiskStatRecord) Key() string {
	return NormalizeTicker(r.Ticker) + "@" + FormatDate(r.AsOf)
}

// NormalizeTicker upper-cases and trims a ticker so lookups are case-insensitive.
func NormalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

// Partition states for risk-stat dates
const (
	PartitionOpen      = "open"      // a job is writing; not readable
	PartitionSealed    = "sealed"    // published by a completed job
	PartitionAbandoned = "abandoned" // last writer failed; not readable until resealed
)

// RiskStatPartition tracks the visibility of one risk-stat date.
// SealedBy names the job whose seal is restored if the current writer fails.
type RiskStatPartition struct {
	Date      time.Time `json:"date"`
	Status    string    `json:"status"`
	JobID     string    `json:"job_id"`
	SealedBy  string    `json:"sealed_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reopen returns the partition as claimed by jobID. A previously sealed
// partition keeps its publisher in SealedBy.
func (p *RiskStatPartition) Reopen(jobID string, now time.Time) *RiskStatPartition {
	next := &RiskStatPartition{Date: p.Date, Status: PartitionOpen, JobID: jobID, UpdatedAt: now}
	switch p.Status {
	case PartitionSealed:
		next.SealedBy = p.JobID
	case PartitionOpen:
		next.SealedBy = p.SealedBy
	}
	return next
}

// Abandon releases a failed writer's claim: a partition that was sealed
// before the claim goes back to its publisher, any other becomes abandoned.
func (p *RiskStatPartition) Abandon(now time.Time) {
	p.UpdatedAt = now
	if p.SealedBy != "" {
		p.Status = PartitionSealed
		p.JobID = p.SealedBy
		return
	}
	p.Status = PartitionAbandoned
}

// Seal publishes the partition under its current writer.
func (p *RiskStatPartition) Seal(now time.Time) {
	p.Status = PartitionSealed
	p.SealedBy = p.JobID
	p.UpdatedAt = now
}
