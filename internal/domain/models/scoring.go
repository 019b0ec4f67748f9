package models

import "time"

// Signal is the gated trading decision.
type Signal string

const (
	SignalHold Signal = "HOLD"
	SignalBuy  Signal = "BUY"
	SignalExit Signal = "EXIT"
)

// MomentumState is the EMA-relationship state machine output.
type MomentumState string

const (
	StateNoMomo   MomentumState = "NO_MOMO"
	StateBuilding MomentumState = "BUILDING"
	StateActive   MomentumState = "ACTIVE"
	StateFailing  MomentumState = "FAILING"
	StateFailed   MomentumState = "FAILED"
)

// PriceRange is an inclusive [low, high] price band.
type PriceRange [2]float64

// Levels holds suggested price levels. Nil fields mean the inputs needed to
// compute them were unavailable.
type Levels struct {
	EntryRange   *PriceRange `json:"entry_range"`
	Stop         *float64    `json:"stop"`
	Targets      []float64   `json:"targets"`
	SupportRange *PriceRange `json:"support_range"`
	Resistance1  *PriceRange `json:"resistance_1"`
	Resistance2  *PriceRange `json:"resistance_2"`
}

// IndicatorBundle groups per-timeframe indicator outputs. Values use named
// keys ("ema9", "atr14", "vwap50", ...); a missing key means the indicator
// could not be computed from current history.
type IndicatorBundle struct {
	EMA    map[string]map[string]float64 `json:"ema"`
	ATR    map[string]map[string]float64 `json:"atr"`
	Priors map[string]map[string]float64 `json:"prior_levels"`
	OBV    map[string]map[string]float64 `json:"obv"`
	VWAP   map[string]map[string]float64 `json:"vwap"`
	RelVol map[string]map[string]float64 `json:"relvol"`
}

// TimeframeStatus reports repository freshness for one timeframe.
type TimeframeStatus struct {
	HasData       bool       `json:"has_data"`
	LastUpdated   *time.Time `json:"last_updated"`
	Fresh         bool       `json:"fresh"`
	MaxAgeSeconds int        `json:"max_age_seconds"`
}

// Snapshot is the per-symbol repository + indicator view.
type Snapshot struct {
	Ticker            string                     `json:"ticker"`
	Timeframes        map[string]TimeframeStatus `json:"timeframes"`
	MissingTimeframes []string                   `json:"missing_timeframes"`
	Indicators        IndicatorBundle            `json:"indicators"`
}

// ScoringResult is the full gated decision for one symbol. Computed fresh per
// request, never persisted.
type ScoringResult struct {
	Ticker          string         `json:"ticker"`
	Signal          Signal         `json:"signal"`
	State           MomentumState  `json:"state"`
	Confidence      float64        `json:"confidence"`
	SuggestedSize   float64        `json:"suggested_size"`
	Levels          Levels         `json:"levels"`
	LastPrice       *float64       `json:"last_price"`
	LastPriceTS     *time.Time     `json:"last_price_ts"`
	LastPriceSource string         `json:"last_price_source"`
	Tape            *MarketContext `json:"tape"`
	Audit           []string       `json:"audit"`
}
