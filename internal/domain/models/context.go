package models

// Regime classifies the market-wide risk posture.
type Regime string

const (
	RegimeRiskOn  Regime = "RISK_ON"
	RegimeNeutral Regime = "NEUTRAL"
	RegimeRiskOff Regime = "RISK_OFF"
	RegimeUnknown Regime = "UNKNOWN"
)

// MarketContext is the tape regime computed from the reference symbols.
// Created fresh per evaluation, never persisted.
//
// RS30m is the relative strength of the scored symbol versus the second
// reference over the last 30 minutes; nil when either return is unavailable.
// Audit carries short explanation strings in evaluation order.
type MarketContext struct {
	Regime  Regime   `json:"regime"`
	RiskOff bool     `json:"risk_off"`
	RS30m   *float64 `json:"rs_30m"`
	Audit   []string `json:"audit"`
}
