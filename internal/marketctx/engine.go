// Package marketctx derives a market-wide regime (risk posture) and relative
// strength from two broad-market reference symbols.
package marketctx

import (
	"context"
	"fmt"
	"time"

	"momentum/internal/candles"
	"momentum/internal/domain/models"
	"momentum/internal/domain/repository"
	"momentum/internal/indicators"
	"momentum/pkg/cache"
)

// Config tunes the context engine.
type Config struct {
	PrimaryRef   string        // e.g. SPY.US
	SecondaryRef string        // e.g. QQQ.US; relative-strength benchmark
	ReturnBars   int           // 5m bars per return lookback
	CacheTTL     time.Duration // TTL for provider-sourced returns
	MinBars15m   int           // 15m bars required before a risk flag counts
}

// DefaultConfig matches the documented thresholds.
func DefaultConfig() Config {
	return Config{
		PrimaryRef:   "SPY.US",
		SecondaryRef: "QQQ.US",
		ReturnBars:   6,
		CacheTTL:     60 * time.Second,
		MinBars15m:   24,
	}
}

// Engine computes MarketContext snapshots. Provider fetches for percent
// returns are cached by (symbol, window) to bound the external call rate.
type Engine struct {
	store    *candles.Store
	provider repository.HistoricalProvider
	cache    cache.Service
	cfg      Config
}

// New creates a context engine. cache may be nil to disable return caching.
func New(store *candles.Store, provider repository.HistoricalProvider, c cache.Service, cfg Config) *Engine {
	if cfg.ReturnBars <= 0 {
		cfg.ReturnBars = 6
	}
	if cfg.MinBars15m <= 0 {
		cfg.MinBars15m = 24
	}
	return &Engine{store: store, provider: provider, cache: c, cfg: cfg}
}

// pctReturn computes the percent return over the last n closed 5m bars:
// close_now/close_n_ago - 1. Local history is preferred; a provider fetch
// (cached) covers symbols the live feed does not track.
func (e *Engine) pctReturn(ctx context.Context, symbol string, n int) (float64, bool) {
	hist := e.store.GetHistory(symbol, repository.TF5m)
	if len(hist) >= n+1 {
		now := hist[len(hist)-1].Close
		then := hist[len(hist)-1-n].Close
		if then == 0 {
			return 0, false
		}
		return now/then - 1, true
	}

	cacheKey := fmt.Sprintf("ret5m:%s:%d", symbol, n)
	if e.cache != nil {
		var cached float64
		if err := e.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, true
		}
	}

	if e.provider == nil {
		return 0, false
	}
	limit := n + 10
	if limit < 50 {
		limit = 50
	}
	rows, err := e.provider.FetchCandles(ctx, symbol, repository.TF5m, limit)
	if err != nil || len(rows) < n+1 {
		return 0, false
	}
	now := rows[len(rows)-1].Close
	then := rows[len(rows)-1-n].Close
	if then == 0 {
		return 0, false
	}
	ret := now/then - 1
	if e.cache != nil {
		_ = e.cache.Set(ctx, cacheKey, ret, e.cfg.CacheTTL)
	}
	return ret, true
}

// riskFlag evaluates the 15m risk-off posture for one reference symbol.
// All sub-conditions are appended to the returned audit in evaluation order.
func (e *Engine) riskFlag(symbol string) (bool, []string) {
	var audit []string

	cs := e.store.GetHistory(symbol, repository.TF15m)
	if len(cs) < e.cfg.MinBars15m {
		audit = append(audit, fmt.Sprintf("%s: not enough 15m candles (need>=%d, have=%d)", symbol, e.cfg.MinBars15m, len(cs)))
		return false, audit
	}

	ema := indicators.EMA(e.store, symbol, repository.TF15m, []int{20})
	ema20, ok := ema["ema20"]
	if !ok {
		audit = append(audit, fmt.Sprintf("%s: missing EMA20(15m)", symbol))
		return false, audit
	}

	closeNow := cs[len(cs)-1].Close
	belowEMA20 := closeNow < ema20
	audit = append(audit, fmt.Sprintf("%s: close<ema20=%t", symbol, belowEMA20))

	// The lower-lows comparison needs two full 12-bar windows regardless of
	// how low min_bars_15m is tuned.
	lowerLows := false
	if len(cs) >= 24 {
		lowerLows = minLow(cs[len(cs)-12:]) < minLow(cs[len(cs)-24:len(cs)-12])
		audit = append(audit, fmt.Sprintf("%s: lower_lows_12=%t", symbol, lowerLows))
	} else {
		audit = append(audit, fmt.Sprintf("%s: lower_lows_12 skipped (have=%d, need>=24)", symbol, len(cs)))
	}

	slopeDown := closeNow < cs[len(cs)-4].Close
	audit = append(audit, fmt.Sprintf("%s: slope_down_proxy=%t", symbol, slopeDown))

	flag := belowEMA20 && lowerLows && slopeDown
	audit = append(audit, fmt.Sprintf("%s: risk_flag=%t", symbol, flag))
	return flag, audit
}

func minLow(cs []models.Candle) float64 {
	low := cs[0].Low
	for _, c := range cs[1:] {
		if c.Low < low {
			low = c.Low
		}
	}
	return low
}

// Compute builds a fresh MarketContext for the scored symbol.
func (e *Engine) Compute(ctx context.Context, symbol string) *models.MarketContext {
	var audit []string

	symRet, symOK := e.pctReturn(ctx, symbol, e.cfg.ReturnBars)
	benchRet, benchOK := e.pctReturn(ctx, e.cfg.SecondaryRef, e.cfg.ReturnBars)

	var rs30m *float64
	if !symOK || !benchOK {
		audit = append(audit, "RS_30m: insufficient 5m data")
	} else {
		v := symRet - benchRet
		rs30m = &v
		audit = append(audit, fmt.Sprintf("RS_30m: %.6f", v))
	}

	primaryHas := e.store.HasAnyData(e.cfg.PrimaryRef, repository.TF15m)
	secondaryHas := e.store.HasAnyData(e.cfg.SecondaryRef, repository.TF15m)
	if !primaryHas || !secondaryHas {
		if !primaryHas {
			audit = append(audit, e.cfg.PrimaryRef+": missing 15m data")
		}
		if !secondaryHas {
			audit = append(audit, e.cfg.SecondaryRef+": missing 15m data")
		}
		return &models.MarketContext{Regime: models.RegimeUnknown, RS30m: rs30m, Audit: audit}
	}

	primaryFlag, primaryAudit := e.riskFlag(e.cfg.PrimaryRef)
	secondaryFlag, secondaryAudit := e.riskFlag(e.cfg.SecondaryRef)
	audit = append(audit, primaryAudit...)
	audit = append(audit, secondaryAudit...)

	switch {
	case primaryFlag && secondaryFlag:
		return &models.MarketContext{Regime: models.RegimeRiskOff, RiskOff: true, RS30m: rs30m, Audit: audit}
	case primaryFlag || secondaryFlag:
		return &models.MarketContext{Regime: models.RegimeNeutral, RS30m: rs30m, Audit: audit}
	default:
		return &models.MarketContext{Regime: models.RegimeRiskOn, RS30m: rs30m, Audit: audit}
	}
}
