// Package indicators provides stateless technical computations over closed
// candle history. Results are maps with named keys ("ema9", "atr14", ...);
// insufficient or unreliable data is reported by returning an empty map,
// never an error.
package indicators

import (
	"fmt"
	"math"

	"momentum/internal/candles"
	"momentum/internal/domain/models"
	"momentum/internal/domain/repository"
)

const (
	// gapWindow is the trailing number of bars inspected for gaps.
	gapWindow = 50
	// gapCeilingSeconds excludes overnight/weekend jumps from the gap count.
	gapCeilingSeconds = 7200
)

// CountGaps counts suspicious start-time deltas in the trailing window:
// non-increasing timestamps (duplicates / out-of-order) or spacing over 1.5x
// the expected seconds but under a 2-hour ceiling.
func CountGaps(cs []models.Candle, expectedSeconds float64) int {
	if len(cs) < 3 {
		return 0
	}
	tail := cs
	if len(tail) > gapWindow {
		tail = tail[len(tail)-gapWindow:]
	}
	gaps := 0
	for i := 1; i < len(tail); i++ {
		delta := tail[i].StartTS.Sub(tail[i-1].StartTS).Seconds()
		if delta <= 0 {
			gaps++
			continue
		}
		if delta > expectedSeconds*1.5 && delta < gapCeilingSeconds {
			gaps++
		}
	}
	return gaps
}

// hasGaps is the boolean form used to invalidate intraday indicators.
func hasGaps(cs []models.Candle, expectedSeconds float64) bool {
	return CountGaps(cs, expectedSeconds) > 0
}

// reliableHistory returns the closed history for a key, or nil when the
// 5m/15m history is gappy and must not feed indicator math.
func reliableHistory(store *candles.Store, symbol string, tf repository.Timeframe) []models.Candle {
	cs := store.GetHistory(symbol, tf)
	if tf == repository.TF5m || tf == repository.TF15m {
		if hasGaps(cs, tf.Duration().Seconds()) {
			return nil
		}
	}
	return cs
}

// EMASeries computes the exponential moving average, seeded at the first
// value, with smoothing 2/(period+1).
func EMASeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = out[i-1] + (values[i]-out[i-1])*k
	}
	return out
}

// EMA returns the latest EMA per period, keyed "ema<period>".
func EMA(store *candles.Store, symbol string, tf repository.Timeframe, periods []int) map[string]float64 {
	cs := reliableHistory(store, symbol, tf)
	if len(cs) == 0 {
		return map[string]float64{}
	}
	closes := make([]float64, len(cs))
	for i, c := range cs {
		closes[i] = c.Close
	}
	out := make(map[string]float64, len(periods))
	for _, p := range periods {
		series := EMASeries(closes, p)
		if len(series) > 0 {
			out[fmt.Sprintf("ema%d", p)] = series[len(series)-1]
		}
	}
	return out
}

// TrueRangeSeries computes per-bar true range starting at the second bar.
func TrueRangeSeries(cs []models.Candle) []float64 {
	if len(cs) < 2 {
		return nil
	}
	tr := make([]float64, 0, len(cs)-1)
	for i := 1; i < len(cs); i++ {
		hl := cs[i].High - cs[i].Low
		hc := math.Abs(cs[i].High - cs[i-1].Close)
		lc := math.Abs(cs[i].Low - cs[i-1].Close)
		tr = append(tr, math.Max(hl, math.Max(hc, lc)))
	}
	return tr
}

// ATR returns the simple mean of the trailing `period` true ranges, keyed
// "atr<period>". Empty when fewer than `period` true ranges exist.
func ATR(store *candles.Store, symbol string, tf repository.Timeframe, period int) map[string]float64 {
	cs := reliableHistory(store, symbol, tf)
	tr := TrueRangeSeries(cs)
	if len(tr) < period {
		return map[string]float64{}
	}
	sum := 0.0
	for _, v := range tr[len(tr)-period:] {
		sum += v
	}
	return map[string]float64{fmt.Sprintf("atr%d", period): sum / float64(period)}
}

// PriorHighLow returns the max high and min low over `window` bars strictly
// preceding the most recent bar, keyed "prior_high<window>"/"prior_low<window>".
func PriorHighLow(store *candles.Store, symbol string, tf repository.Timeframe, window int) map[string]float64 {
	cs := reliableHistory(store, symbol, tf)
	if len(cs) < window+1 {
		return map[string]float64{}
	}
	lookback := cs[len(cs)-window-1 : len(cs)-1]
	high := lookback[0].High
	low := lookback[0].Low
	for _, c := range lookback[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return map[string]float64{
		fmt.Sprintf("prior_high%d", window): high,
		fmt.Sprintf("prior_low%d", window):  low,
	}
}

// OBVSeries computes cumulative on-balance volume starting at 0.
func OBVSeries(closes, volumes []float64) []float64 {
	if len(closes) < 2 || len(volumes) < 2 {
		return nil
	}
	obv := make([]float64, 1, len(closes))
	obv[0] = 0
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			obv = append(obv, obv[len(obv)-1]+volumes[i])
		case closes[i] < closes[i-1]:
			obv = append(obv, obv[len(obv)-1]-volumes[i])
		default:
			obv = append(obv, obv[len(obv)-1])
		}
	}
	return obv
}

// LinearSlope is the closed-form least-squares regression coefficient over
// y indexed 0..n-1.
func LinearSlope(y []float64) float64 {
	n := float64(len(y))
	if n < 2 {
		return 0
	}
	sumX := (n - 1) * n / 2
	sumX2 := (n - 1) * n * (2*n - 1) / 6
	sumY := 0.0
	sumXY := 0.0
	for i, v := range y {
		sumY += v
		sumXY += float64(i) * v
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// OBVSlope returns the latest OBV value and, when the series covers the
// window, its regression slope keyed "obv"/"obv_slope<window>".
func OBVSlope(store *candles.Store, symbol string, tf repository.Timeframe, window int) map[string]float64 {
	cs := reliableHistory(store, symbol, tf)
	closes := make([]float64, len(cs))
	vols := make([]float64, len(cs))
	for i, c := range cs {
		closes[i] = c.Close
		vols[i] = c.Volume
	}
	series := OBVSeries(closes, vols)
	if len(series) == 0 {
		return map[string]float64{}
	}
	out := map[string]float64{"obv": series[len(series)-1]}
	if len(series) < window {
		return out
	}
	out[fmt.Sprintf("obv_slope%d", window)] = LinearSlope(series[len(series)-window:])
	return out
}

// VWAP returns the volume-weighted mean typical price over the trailing
// window (or full history if shorter), keyed "vwap<window>". Bars with
// non-positive volume are skipped; empty when weighted volume is zero.
func VWAP(store *candles.Store, symbol string, tf repository.Timeframe, window int) map[string]float64 {
	cs := reliableHistory(store, symbol, tf)
	if len(cs) < 2 {
		return map[string]float64{}
	}
	lookback := cs
	if len(lookback) > window {
		lookback = lookback[len(lookback)-window:]
	}
	pvSum := 0.0
	vSum := 0.0
	for _, c := range lookback {
		if c.Volume <= 0 {
			continue
		}
		typical := (c.High + c.Low + c.Close) / 3
		pvSum += typical * c.Volume
		vSum += c.Volume
	}
	if vSum <= 0 {
		return map[string]float64{}
	}
	return map[string]float64{fmt.Sprintf("vwap%d", window): pvSum / vSum}
}

// RelVol returns the last closed bar's volume over the trailing window's
// average volume, keyed "relvol<window>".
func RelVol(store *candles.Store, symbol string, tf repository.Timeframe, window int) map[string]float64 {
	cs := reliableHistory(store, symbol, tf)
	if len(cs) < window || window <= 0 {
		return map[string]float64{}
	}
	sum := 0.0
	for _, c := range cs[len(cs)-window:] {
		sum += c.Volume
	}
	avg := sum / float64(window)
	if avg <= 0 {
		return map[string]float64{}
	}
	return map[string]float64{fmt.Sprintf("relvol%d", window): cs[len(cs)-1].Volume / avg}
}
