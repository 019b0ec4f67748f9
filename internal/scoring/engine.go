// Package scoring turns indicator outputs, market context, and repository
// freshness into a gated trading decision. The scoring path never fails: any
// missing, stale, or gappy input degrades to HOLD/NO_MOMO with an audit entry
// naming the failing gate.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"momentum/internal/candles"
	"momentum/internal/domain/models"
	"momentum/internal/domain/repository"
	"momentum/internal/indicators"
)

// Config tunes the gate thresholds.
type Config struct {
	RSRiskOffThreshold  float64 // rs_30m needed to override risk-off
	NoChaseATRMultiple  float64 // max distance from anchor, in ATR14(5m)
	ThinRelVolThreshold float64 // min relvol during extended hours
	MaxGaps             int     // tolerated gaps per required timeframe
}

// DefaultConfig matches the documented thresholds.
func DefaultConfig() Config {
	return Config{
		RSRiskOffThreshold:  0.002,
		NoChaseATRMultiple:  2.0,
		ThinRelVolThreshold: 0.5,
		MaxGaps:             2,
	}
}

// requiredTimeframes must have fresh, gap-free data before scoring proceeds.
var requiredTimeframes = []repository.Timeframe{repository.TF5m, repository.TF15m}

// Input carries the per-request indicator maps the engine consumes. Maps use
// named keys; a missing key means the value could not be computed.
type Input struct {
	Symbol   string
	Context  *models.MarketContext
	Missing  []string // timeframes without data
	Stale    []string // timeframes with data older than max age
	EMA5m    map[string]float64
	EMA15m   map[string]float64
	ATR5m    map[string]float64
	VWAP5m   map[string]float64
	ATR15m   map[string]float64
	Priors15 map[string]float64
	RelVol5m map[string]float64
	RelVol15 map[string]float64
}

// Engine scores one symbol per call from current repository state.
type Engine struct {
	store *candles.Store
	cfg   Config
	loc   *time.Location
}

// New creates a scoring engine. The reference exchange calendar is
// America/New_York.
func New(store *candles.Store, cfg Config) *Engine {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &Engine{store: store, cfg: cfg, loc: loc}
}

// lastPrice resolves the most recent known price with provenance, highest
// precedence first: forming 1m, closed 1m, closed 5m, closed 15m.
func (e *Engine) lastPrice(symbol string) (*float64, string) {
	if c := e.store.GetCurrent(symbol, repository.TF1m); c != nil {
		v := c.Close
		return &v, "ws_1m"
	}
	if v, ok := e.store.LastClose(symbol, repository.TF1m); ok {
		return &v, "ws_1m_hist"
	}
	if v, ok := e.store.LastClose(symbol, repository.TF5m); ok {
		return &v, "ws_5m_hist"
	}
	if v, ok := e.store.LastClose(symbol, repository.TF15m); ok {
		return &v, "rest_15m_hist"
	}
	return nil, ""
}

func (e *Engine) lastPriceTS(symbol string) *time.Time {
	for _, tf := range []repository.Timeframe{repository.TF1m, repository.TF5m, repository.TF15m} {
		if ts, ok := e.store.GetLastUpdated(symbol, tf); ok {
			return &ts
		}
	}
	return nil
}

// sessionTag classifies ts on the reference exchange calendar: weekends are
// always extended hours; otherwise 09:30-16:00 local is regular hours.
func (e *Engine) sessionTag(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	local := ts.In(e.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return "EXT"
	}
	mins := local.Hour()*60 + local.Minute()
	if mins >= 9*60+30 && mins < 16*60 {
		return "RTH"
	}
	return "EXT"
}

// hold builds the short-circuit result used by failing hard gates.
func hold(res *models.ScoringResult) *models.ScoringResult {
	res.Signal = models.SignalHold
	res.State = models.StateNoMomo
	return res
}

// Score evaluates hard gates, the momentum state machine, soft gates, and
// price levels. It always returns a well-formed result.
func (e *Engine) Score(in Input) *models.ScoringResult {
	res := &models.ScoringResult{Ticker: in.Symbol, Tape: in.Context}
	res.LastPrice, res.LastPriceSource = e.lastPrice(in.Symbol)
	res.LastPriceTS = e.lastPriceTS(in.Symbol)

	// Hard gate 1: required timeframes must have data.
	if missing := filterRequired(in.Missing); len(missing) > 0 {
		res.Audit = append(res.Audit, "missing required timeframe(s): "+strings.Join(missing, ", "))
		return hold(res)
	}

	// Hard gate 2: required timeframes must be fresh.
	if stale := filterRequired(in.Stale); len(stale) > 0 {
		res.Audit = append(res.Audit, "stale required timeframe(s): "+strings.Join(stale, ", "))
		return hold(res)
	}

	// Hard gate 3: bounded gap count on both required timeframes.
	gaps5m := indicators.CountGaps(e.store.GetHistory(in.Symbol, repository.TF5m), 300)
	gaps15m := indicators.CountGaps(e.store.GetHistory(in.Symbol, repository.TF15m), 900)
	if gaps5m > e.cfg.MaxGaps || gaps15m > e.cfg.MaxGaps {
		res.Audit = append(res.Audit, fmt.Sprintf("gap_check: too many gaps (5m=%d, 15m=%d)", gaps5m, gaps15m))
		return hold(res)
	}

	// Hard gate 4: thin-volume, extended hours only. Skipped (not failing)
	// when relative volume is unavailable.
	session := e.sessionTag(res.LastPriceTS)
	relvol, relvolOK := in.RelVol15["relvol20"]
	if !relvolOK {
		relvol, relvolOK = in.RelVol5m["relvol20"]
	}
	if session == "EXT" {
		switch {
		case !relvolOK:
			res.Audit = append(res.Audit, "thin_volume_gate: skipped (missing relvol)")
		case relvol < e.cfg.ThinRelVolThreshold:
			res.Audit = append(res.Audit, fmt.Sprintf("thin_volume_gate: fail (session=EXT, relvol20=%.3f < %v)", relvol, e.cfg.ThinRelVolThreshold))
			return hold(res)
		default:
			res.Audit = append(res.Audit, fmt.Sprintf("thin_volume_gate: pass (session=EXT, relvol20=%.3f)", relvol))
		}
	}

	// Momentum state from EMA relationships.
	ema9x5, ok1 := in.EMA5m["ema9"]
	ema20x5, ok2 := in.EMA5m["ema20"]
	ema9x15, ok3 := in.EMA15m["ema9"]
	ema20x15, ok4 := in.EMA15m["ema20"]
	lastClose5m, hasClose5m := e.store.LastClose(in.Symbol, repository.TF5m)

	state := models.StateBuilding
	if !(ok1 && ok2 && ok3 && ok4) {
		res.Audit = append(res.Audit, "state: missing EMA inputs (5m/15m)")
		state = models.StateNoMomo
	} else if ema9x5 > ema20x5 && ema9x15 > ema20x15 {
		state = models.StateActive
	} else if ema9x5 < ema20x5 && ema9x15 < ema20x15 {
		state = models.StateFailing
	}

	if state == models.StateFailing && hasClose5m {
		if ema50x15, ok := in.EMA15m["ema50"]; ok && lastClose5m < ema50x15 {
			state = models.StateFailed
		}
	}
	res.State = state

	// Soft gates: decide whether BUY is allowed; evaluated regardless of
	// state so the audit trail is complete.
	gatesPass := true

	if in.Context != nil && in.Context.RiskOff {
		rs := in.Context.RS30m
		if rs == nil || *rs <= e.cfg.RSRiskOffThreshold {
			gatesPass = false
			res.Audit = append(res.Audit, fmt.Sprintf("tape_gate: fail (risk_off, rs_30m=%s, threshold=%v)", fmtFloatPtr(rs), e.cfg.RSRiskOffThreshold))
		} else {
			res.Audit = append(res.Audit, fmt.Sprintf("tape_gate: pass (risk_off but rs_30m=%.6f > %v)", *rs, e.cfg.RSRiskOffThreshold))
		}
	}

	atr14, hasATR := in.ATR5m["atr14"]
	anchor, hasAnchor := in.VWAP5m["vwap50"]
	if !hasAnchor {
		anchor, hasAnchor = in.EMA5m["ema20"]
	}
	if !hasATR || !hasAnchor || !hasClose5m {
		res.Audit = append(res.Audit, "no_chase_gate: skipped (missing atr/anchor/last_close)")
	} else {
		distance := math.Abs(lastClose5m - anchor)
		limit := e.cfg.NoChaseATRMultiple * atr14
		if distance > limit {
			gatesPass = false
			res.Audit = append(res.Audit, fmt.Sprintf("no_chase_gate: fail (distance=%.4f > %v*ATR)", distance, e.cfg.NoChaseATRMultiple))
		} else {
			res.Audit = append(res.Audit, fmt.Sprintf("no_chase_gate: pass (distance=%.4f <= %v*ATR)", distance, e.cfg.NoChaseATRMultiple))
		}
	}

	res.Levels = e.levels(atr14, hasATR, anchor, hasAnchor, in)

	// Decision mapping: FAILING/FAILED exit unconditionally.
	res.Signal = models.SignalHold
	if state == models.StateFailing || state == models.StateFailed {
		res.Signal = models.SignalExit
	} else if state == models.StateActive && gatesPass {
		res.Signal = models.SignalBuy
	}

	switch {
	case res.Signal == models.SignalBuy:
		res.Confidence = 0.35
		res.SuggestedSize = 0.25
	case state == models.StateActive:
		res.Confidence = 0.2
	case state == models.StateBuilding:
		res.Confidence = 0.1
	}

	return res
}

// levels derives entry/stop/target bands plus support/resistance from the
// 15m prior levels. Computed whenever inputs exist, independent of signal.
func (e *Engine) levels(atr14 float64, hasATR bool, anchor float64, hasAnchor bool, in Input) models.Levels {
	var lv models.Levels

	if hasATR && hasAnchor {
		lo := anchor - 0.25*atr14
		hi := anchor + 0.25*atr14
		lv.EntryRange = &models.PriceRange{lo, hi}
		mid := (lo + hi) / 2
		stop := mid - 1.2*atr14
		lv.Stop = &stop
		lv.Targets = []float64{mid + 1.5*atr14, mid + 2.5*atr14}
	}

	priorLow, hasLow := in.Priors15["prior_low20"]
	priorHigh, hasHigh := in.Priors15["prior_high20"]
	atr15, hasATR15 := in.ATR15m["atr14"]

	if hasLow {
		if hasATR15 {
			lv.SupportRange = &models.PriceRange{priorLow, priorLow + 0.25*atr15}
		} else {
			lv.SupportRange = &models.PriceRange{priorLow, priorLow}
		}
	}
	if hasHigh {
		if hasATR15 {
			lv.Resistance1 = &models.PriceRange{priorHigh - 0.25*atr15, priorHigh + 0.25*atr15}
			lv.Resistance2 = &models.PriceRange{priorHigh + 0.75*atr15, priorHigh + 1.25*atr15}
		} else {
			lv.Resistance1 = &models.PriceRange{priorHigh, priorHigh}
		}
	}
	return lv
}

func filterRequired(tfs []string) []string {
	var out []string
	for _, req := range requiredTimeframes {
		for _, tf := range tfs {
			if tf == string(req) {
				out = append(out, tf)
				break
			}
		}
	}
	return out
}

func fmtFloatPtr(v *float64) string {
	if v == nil {
		return "none"
	}
	return fmt.Sprintf("%.6f", *v)
}
