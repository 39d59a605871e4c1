package models

// WarningCode categorizes non-fatal report diagnostics.
// W1xxx = data availability, W2xxx = per-position, W3xxx = partial computation.
type WarningCode string

const (
	WarnNoDataForDate          WarningCode = "W1001" // no positions for the node on the requested date
	WarnUnmatchedSecurity      WarningCode = "W2001" // position without a risk statistic; excluded from weighted metrics
	WarnUndecryptableValue     WarningCode = "W2002" // value token could not be decrypted; position excluded
	WarnUnknownLiquidity       WarningCode = "W2003" // liquidity flag not recognised; counted as illiquid
	WarnUnclassifiedPath       WarningCode = "W2004" // second/third level outside the taxonomy; counted under "other"
	WarnPerformanceUnavailable WarningCode = "W3001" // performance could not be computed in time
)

// Warning represents a non-fatal issue encountered while building a report.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}
