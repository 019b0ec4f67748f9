package indicators

import (
	"math"
	"testing"
	"time"

	"momentum/internal/candles"
	"momentum/internal/domain/models"
	"momentum/internal/domain/repository"
)

func seedHistory(store *candles.Store, symbol string, tf repository.Timeframe, bars []models.Candle) {
	store.ReplaceHistory(symbol, tf, bars)
}

func bars5m(start time.Time, closes []float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		ts := start.Add(time.Duration(i) * 5 * time.Minute)
		out[i] = models.Candle{
			Symbol:    "TSLA.US",
			Timeframe: "5m",
			StartTS:   ts,
			EndTS:     ts.Add(5 * time.Minute),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100,
		}
	}
	return out
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestEMAPeriodOneIsCloseSeries(t *testing.T) {
	closes := []float64{10, 11, 12, 9, 14}
	series := EMASeries(closes, 1)
	for i := range closes {
		if !almostEqual(series[i], closes[i]) {
			t.Fatalf("ema(1)[%d]: want %v, got %v", i, closes[i], series[i])
		}
	}
}

func TestEMASeeding(t *testing.T) {
	series := EMASeries([]float64{10, 20}, 9)
	if !almostEqual(series[0], 10) {
		t.Fatalf("ema must seed at first close, got %v", series[0])
	}
	want := 10 + (20-10)*2.0/10.0
	if !almostEqual(series[1], want) {
		t.Fatalf("ema step: want %v, got %v", want, series[1])
	}
}

func TestEMAEmptyWithoutHistory(t *testing.T) {
	store := candles.NewStore()
	got := EMA(store, "TSLA.US", repository.TF5m, []int{9, 20})
	if len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
}

func TestATRInsufficientHistory(t *testing.T) {
	store := candles.NewStore()
	start := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	seedHistory(store, "TSLA.US", repository.TF5m, bars5m(start, []float64{10, 11, 12}))
	if got := ATR(store, "TSLA.US", repository.TF5m, 14); len(got) != 0 {
		t.Fatalf("expected empty ATR on short history, got %v", got)
	}
}

func TestATRMeanOfTrueRanges(t *testing.T) {
	store := candles.NewStore()
	start := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}
	seedHistory(store, "TSLA.US", repository.TF5m, bars5m(start, closes))

	got := ATR(store, "TSLA.US", repository.TF5m, 14)
	// Flat closes, high-low always 2.
	if v, ok := got["atr14"]; !ok || !almostEqual(v, 2) {
		t.Fatalf("atr14: want 2, got %v", got)
	}
}

func TestPriorHighLowExcludesCurrentBar(t *testing.T) {
	store := candles.NewStore()
	start := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	closes := []float64{10, 20, 30, 40, 500}
	seedHistory(store, "TSLA.US", repository.TF5m, bars5m(start, closes))

	got := PriorHighLow(store, "TSLA.US", repository.TF5m, 4)
	if v := got["prior_high4"]; !almostEqual(v, 41) {
		t.Fatalf("prior_high4 must exclude the last bar: want 41, got %v", v)
	}
	if v := got["prior_low4"]; !almostEqual(v, 9) {
		t.Fatalf("prior_low4: want 9, got %v", v)
	}
}

func TestOBVSeries(t *testing.T) {
	closes := []float64{10, 11, 11, 9}
	vols := []float64{5, 6, 7, 8}
	obv := OBVSeries(closes, vols)
	want := []float64{0, 6, 6, -2}
	for i := range want {
		if !almostEqual(obv[i], want[i]) {
			t.Fatalf("obv[%d]: want %v, got %v", i, want[i], obv[i])
		}
	}
}

func TestLinearSlope(t *testing.T) {
	if got := LinearSlope([]float64{1, 3, 5, 7}); !almostEqual(got, 2) {
		t.Fatalf("slope of arithmetic series: want 2, got %v", got)
	}
	if got := LinearSlope([]float64{42}); got != 0 {
		t.Fatalf("slope of single point: want 0, got %v", got)
	}
}

func TestVWAPSkipsZeroVolume(t *testing.T) {
	store := candles.NewStore()
	start := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	bars := bars5m(start, []float64{10, 20})
	bars[0].Volume = 0
	seedHistory(store, "TSLA.US", repository.TF5m, bars)

	got := VWAP(store, "TSLA.US", repository.TF5m, 50)
	// Only the second bar contributes: typical = (21+19+20)/3 = 20.
	if v, ok := got["vwap50"]; !ok || !almostEqual(v, 20) {
		t.Fatalf("vwap50: want 20, got %v", got)
	}
}

func TestRelVol(t *testing.T) {
	store := candles.NewStore()
	start := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	bars := bars5m(start, make([]float64, 20))
	for i := range bars {
		bars[i].Close = 100
		bars[i].Volume = 100
	}
	bars[len(bars)-1].Volume = 250
	seedHistory(store, "TSLA.US", repository.TF5m, bars)

	got := RelVol(store, "TSLA.US", repository.TF5m, 20)
	want := 250.0 / ((19*100.0 + 250.0) / 20.0)
	if v, ok := got["relvol20"]; !ok || !almostEqual(v, want) {
		t.Fatalf("relvol20: want %v, got %v", want, got)
	}
}

func TestGapDetectionInvalidatesIntraday(t *testing.T) {
	store := candles.NewStore()
	start := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	bars := bars5m(start, []float64{10, 11, 12, 13, 14})
	// Introduce a 30-minute hole between bars 2 and 3.
	for i := 3; i < len(bars); i++ {
		bars[i].StartTS = bars[i].StartTS.Add(30 * time.Minute)
		bars[i].EndTS = bars[i].EndTS.Add(30 * time.Minute)
	}
	seedHistory(store, "TSLA.US", repository.TF5m, bars)

	if got := CountGaps(store.GetHistory("TSLA.US", repository.TF5m), 300); got != 1 {
		t.Fatalf("expected 1 gap, got %d", got)
	}
	if got := EMA(store, "TSLA.US", repository.TF5m, []int{9}); len(got) != 0 {
		t.Fatalf("gappy 5m history must yield empty indicators, got %v", got)
	}
}

func TestGapDetectionIgnoresOvernight(t *testing.T) {
	start := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	bars := bars5m(start, []float64{10, 11, 12})
	// 3-hour jump exceeds the 2h ceiling: treated as session boundary.
	bars[2].StartTS = bars[2].StartTS.Add(3 * time.Hour)
	if got := CountGaps(bars, 300); got != 0 {
		t.Fatalf("overnight jump must not count as gap, got %d", got)
	}
}

func TestGapDetectionDuplicateTimestamps(t *testing.T) {
	start := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	bars := bars5m(start, []float64{10, 11, 12})
	bars[2].StartTS = bars[1].StartTS
	if got := CountGaps(bars, 300); got != 1 {
		t.Fatalf("duplicate start must count as gap, got %d", got)
	}
}
