package scoring

import (
	"strings"
	"testing"
	"time"

	"momentum/internal/candles"
	"momentum/internal/domain/models"
	"momentum/internal/domain/repository"
)

func seedBars(store *candles.Store, symbol string, tf repository.Timeframe, start time.Time, closes []float64) {
	bars := make([]models.Candle, len(closes))
	for i, c := range closes {
		ts := start.Add(time.Duration(i) * tf.Duration())
		bars[i] = models.Candle{
			Symbol:    symbol,
			Timeframe: string(tf),
			StartTS:   ts,
			EndTS:     ts.Add(tf.Duration()),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100,
		}
	}
	store.ReplaceHistory(symbol, tf, bars)
}

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func auditContains(t *testing.T, audit []string, substr string) {
	t.Helper()
	for _, s := range audit {
		if strings.Contains(s, substr) {
			return
		}
	}
	t.Fatalf("audit missing %q, got %v", substr, audit)
}

// storeAt returns a store whose clock is pinned to ts.
func storeAt(ts time.Time) *candles.Store {
	return candles.NewStore(candles.WithClock(func() time.Time { return ts }))
}

// wednesdayRTH is a weekday timestamp inside regular trading hours ET.
var wednesdayRTH = time.Date(2025, 6, 4, 16, 0, 0, 0, time.UTC) // 12:00 ET

func goodInput(store *candles.Store, symbol string) Input {
	start := wednesdayRTH.Add(-3 * time.Hour)
	seedBars(store, symbol, repository.TF5m, start, flat(30, 100))
	seedBars(store, symbol, repository.TF15m, start, flat(30, 100))
	return Input{
		Symbol:   symbol,
		Context:  &models.MarketContext{Regime: models.RegimeRiskOn},
		EMA5m:    map[string]float64{"ema9": 101, "ema20": 100},
		EMA15m:   map[string]float64{"ema9": 101, "ema20": 100, "ema50": 95},
		ATR5m:    map[string]float64{"atr14": 1},
		VWAP5m:   map[string]float64{"vwap50": 100},
		ATR15m:   map[string]float64{"atr14": 2},
		Priors15: map[string]float64{"prior_high20": 110, "prior_low20": 90},
		RelVol5m: map[string]float64{"relvol20": 1.2},
		RelVol15: map[string]float64{"relvol20": 1.2},
	}
}

func TestScoreMissingRequiredTimeframe(t *testing.T) {
	e := New(candles.NewStore(), DefaultConfig())
	res := e.Score(Input{Symbol: "TSLA.US", Missing: []string{"5m"}})

	if res.Signal != models.SignalHold {
		t.Fatalf("signal: want HOLD, got %s", res.Signal)
	}
	if res.State != models.StateNoMomo {
		t.Fatalf("state: want NO_MOMO, got %s", res.State)
	}
	auditContains(t, res.Audit, "missing required timeframe(s): 5m")
}

func TestScoreStaleRequiredTimeframe(t *testing.T) {
	e := New(candles.NewStore(), DefaultConfig())
	res := e.Score(Input{Symbol: "TSLA.US", Stale: []string{"15m"}})

	if res.Signal != models.SignalHold || res.State != models.StateNoMomo {
		t.Fatalf("want HOLD/NO_MOMO, got %s/%s", res.Signal, res.State)
	}
	auditContains(t, res.Audit, "stale required timeframe(s): 15m")
}

func TestScoreNonRequiredTimeframeIgnored(t *testing.T) {
	store := storeAt(wednesdayRTH)
	e := New(store, DefaultConfig())
	in := goodInput(store, "TSLA.US")
	in.Missing = []string{"1d"}
	res := e.Score(in)
	if res.Signal != models.SignalBuy {
		t.Fatalf("missing 1d must not block: got %s", res.Signal)
	}
}

func TestScoreBuyPath(t *testing.T) {
	store := storeAt(wednesdayRTH)
	e := New(store, DefaultConfig())
	res := e.Score(goodInput(store, "TSLA.US"))

	if res.Signal != models.SignalBuy {
		t.Fatalf("signal: want BUY, got %s (audit=%v)", res.Signal, res.Audit)
	}
	if res.State != models.StateActive {
		t.Fatalf("state: want ACTIVE, got %s", res.State)
	}
	if res.Confidence != 0.35 || res.SuggestedSize != 0.25 {
		t.Fatalf("want confidence=0.35 size=0.25, got %v/%v", res.Confidence, res.SuggestedSize)
	}
	if res.LastPrice == nil || *res.LastPrice != 100 {
		t.Fatalf("unexpected last price %v", res.LastPrice)
	}
	if res.LastPriceSource != "ws_5m_hist" {
		t.Fatalf("unexpected price source %s", res.LastPriceSource)
	}
}

func TestScoreGapGate(t *testing.T) {
	store := storeAt(wednesdayRTH)
	e := New(store, DefaultConfig())
	in := goodInput(store, "TSLA.US")

	// Rewrite the 5m history with three intraday holes.
	bars := store.GetHistory("TSLA.US", repository.TF5m)
	for i := 0; i < 3; i++ {
		idx := 5 + i*8
		shift := 20 * time.Minute
		for j := idx; j < len(bars); j++ {
			bars[j].StartTS = bars[j].StartTS.Add(shift)
			bars[j].EndTS = bars[j].EndTS.Add(shift)
		}
	}
	store.ReplaceHistory("TSLA.US", repository.TF5m, bars)

	res := e.Score(in)
	if res.Signal != models.SignalHold || res.State != models.StateNoMomo {
		t.Fatalf("want HOLD/NO_MOMO, got %s/%s", res.Signal, res.State)
	}
	auditContains(t, res.Audit, "gap_check: too many gaps")
}

func TestScoreThinVolumeGateWeekend(t *testing.T) {
	saturday := time.Date(2025, 6, 7, 15, 0, 0, 0, time.UTC)
	store := storeAt(saturday)
	e := New(store, DefaultConfig())
	in := goodInput(store, "TSLA.US")
	in.RelVol5m = map[string]float64{"relvol20": 0.1}
	in.RelVol15 = map[string]float64{"relvol20": 0.1}

	res := e.Score(in)
	if res.Signal != models.SignalHold || res.State != models.StateNoMomo {
		t.Fatalf("want HOLD/NO_MOMO, got %s/%s", res.Signal, res.State)
	}
	auditContains(t, res.Audit, "thin_volume_gate: fail")
}

func TestScoreThinVolumeGateSkippedWithoutRelvol(t *testing.T) {
	saturday := time.Date(2025, 6, 7, 15, 0, 0, 0, time.UTC)
	store := storeAt(saturday)
	e := New(store, DefaultConfig())
	in := goodInput(store, "TSLA.US")
	in.RelVol5m = map[string]float64{}
	in.RelVol15 = map[string]float64{}

	res := e.Score(in)
	if res.Signal != models.SignalBuy {
		t.Fatalf("missing relvol must skip, not fail: got %s (audit=%v)", res.Signal, res.Audit)
	}
	auditContains(t, res.Audit, "thin_volume_gate: skipped")
}

func TestScoreTapeGateBlocksBuy(t *testing.T) {
	store := storeAt(wednesdayRTH)
	e := New(store, DefaultConfig())
	in := goodInput(store, "TSLA.US")
	in.Context = &models.MarketContext{Regime: models.RegimeRiskOff, RiskOff: true}

	res := e.Score(in)
	if res.Signal != models.SignalHold {
		t.Fatalf("risk_off without rs must block BUY: got %s", res.Signal)
	}
	if res.State != models.StateActive {
		t.Fatalf("soft gates must not change state: got %s", res.State)
	}
	if res.Confidence != 0.2 || res.SuggestedSize != 0 {
		t.Fatalf("ACTIVE without BUY: want 0.2/0, got %v/%v", res.Confidence, res.SuggestedSize)
	}
	auditContains(t, res.Audit, "tape_gate: fail")
}

func TestScoreTapeGateStrongRSOverrides(t *testing.T) {
	store := storeAt(wednesdayRTH)
	e := New(store, DefaultConfig())
	in := goodInput(store, "TSLA.US")
	rs := 0.01
	in.Context = &models.MarketContext{Regime: models.RegimeRiskOff, RiskOff: true, RS30m: &rs}

	res := e.Score(in)
	if res.Signal != models.SignalBuy {
		t.Fatalf("strong rs must pass tape gate: got %s (audit=%v)", res.Signal, res.Audit)
	}
	auditContains(t, res.Audit, "tape_gate: pass")
}

func TestScoreNoChaseGate(t *testing.T) {
	store := storeAt(wednesdayRTH)
	e := New(store, DefaultConfig())
	in := goodInput(store, "TSLA.US")
	in.VWAP5m = map[string]float64{"vwap50": 90} // close 100, atr 1, distance 10 > 2

	res := e.Score(in)
	if res.Signal != models.SignalHold {
		t.Fatalf("chase must block BUY: got %s", res.Signal)
	}
	auditContains(t, res.Audit, "no_chase_gate: fail")
}

func TestScoreExitOnFailing(t *testing.T) {
	store := storeAt(wednesdayRTH)
	e := New(store, DefaultConfig())
	in := goodInput(store, "TSLA.US")
	in.EMA5m = map[string]float64{"ema9": 99, "ema20": 100}
	in.EMA15m = map[string]float64{"ema9": 99, "ema20": 100, "ema50": 95}

	res := e.Score(in)
	if res.State != models.StateFailing {
		t.Fatalf("state: want FAILING, got %s", res.State)
	}
	if res.Signal != models.SignalExit {
		t.Fatalf("signal: want EXIT, got %s", res.Signal)
	}
	if res.Confidence != 0 || res.SuggestedSize != 0 {
		t.Fatalf("exit carries no confidence/size, got %v/%v", res.Confidence, res.SuggestedSize)
	}
}

func TestScoreFailedEscalation(t *testing.T) {
	store := storeAt(wednesdayRTH)
	e := New(store, DefaultConfig())
	in := goodInput(store, "TSLA.US")
	// Close 100 below 15m EMA50.
	in.EMA5m = map[string]float64{"ema9": 99, "ema20": 100}
	in.EMA15m = map[string]float64{"ema9": 99, "ema20": 100, "ema50": 150}

	res := e.Score(in)
	if res.State != models.StateFailed {
		t.Fatalf("state: want FAILED, got %s", res.State)
	}
	if res.Signal != models.SignalExit {
		t.Fatalf("signal: want EXIT, got %s", res.Signal)
	}
}

func TestScoreMissingEMAIsNoMomo(t *testing.T) {
	store := storeAt(wednesdayRTH)
	e := New(store, DefaultConfig())
	in := goodInput(store, "TSLA.US")
	in.EMA15m = map[string]float64{"ema9": 101} // ema20 missing

	res := e.Score(in)
	if res.State != models.StateNoMomo {
		t.Fatalf("state: want NO_MOMO, got %s", res.State)
	}
	if res.Signal != models.SignalHold {
		t.Fatalf("signal: want HOLD, got %s", res.Signal)
	}
	auditContains(t, res.Audit, "state: missing EMA inputs")
}

func TestScoreLevels(t *testing.T) {
	store := storeAt(wednesdayRTH)
	e := New(store, DefaultConfig())
	res := e.Score(goodInput(store, "TSLA.US"))

	// anchor=100, atr14(5m)=1: entry 99.75..100.25, mid 100.
	if res.Levels.EntryRange == nil || res.Levels.EntryRange[0] != 99.75 || res.Levels.EntryRange[1] != 100.25 {
		t.Fatalf("unexpected entry range %v", res.Levels.EntryRange)
	}
	if res.Levels.Stop == nil || *res.Levels.Stop != 100-1.2 {
		t.Fatalf("unexpected stop %v", res.Levels.Stop)
	}
	if len(res.Levels.Targets) != 2 || res.Levels.Targets[0] != 101.5 || res.Levels.Targets[1] != 102.5 {
		t.Fatalf("unexpected targets %v", res.Levels.Targets)
	}
	// prior_low=90, prior_high=110, atr14(15m)=2.
	if res.Levels.SupportRange == nil || res.Levels.SupportRange[0] != 90 || res.Levels.SupportRange[1] != 90.5 {
		t.Fatalf("unexpected support %v", res.Levels.SupportRange)
	}
	if res.Levels.Resistance1 == nil || res.Levels.Resistance1[0] != 109.5 || res.Levels.Resistance1[1] != 110.5 {
		t.Fatalf("unexpected resistance_1 %v", res.Levels.Resistance1)
	}
	if res.Levels.Resistance2 == nil || res.Levels.Resistance2[0] != 111.5 || res.Levels.Resistance2[1] != 112.5 {
		t.Fatalf("unexpected resistance_2 %v", res.Levels.Resistance2)
	}
}

func TestScoreLevelsDegradeWithoutATR15(t *testing.T) {
	store := storeAt(wednesdayRTH)
	e := New(store, DefaultConfig())
	in := goodInput(store, "TSLA.US")
	in.ATR15m = map[string]float64{}

	res := e.Score(in)
	if res.Levels.SupportRange == nil || res.Levels.SupportRange[0] != 90 || res.Levels.SupportRange[1] != 90 {
		t.Fatalf("support must degrade to a point, got %v", res.Levels.SupportRange)
	}
	if res.Levels.Resistance1 == nil || res.Levels.Resistance1[0] != 110 || res.Levels.Resistance1[1] != 110 {
		t.Fatalf("resistance_1 must degrade to a point, got %v", res.Levels.Resistance1)
	}
	if res.Levels.Resistance2 != nil {
		t.Fatalf("resistance_2 must be absent without atr, got %v", res.Levels.Resistance2)
	}
}

func TestLastPricePrecedence(t *testing.T) {
	store := storeAt(wednesdayRTH)
	e := New(store, DefaultConfig())
	seedBars(store, "TSLA.US", repository.TF15m, wednesdayRTH.Add(-5*time.Hour), flat(4, 50))

	if p, src := e.lastPrice("TSLA.US"); p == nil || *p != 50 || src != "rest_15m_hist" {
		t.Fatalf("want 15m fallback, got %v/%s", p, src)
	}

	seedBars(store, "TSLA.US", repository.TF5m, wednesdayRTH.Add(-time.Hour), flat(4, 60))
	if p, src := e.lastPrice("TSLA.US"); *p != 60 || src != "ws_5m_hist" {
		t.Fatalf("want 5m history, got %v/%s", *p, src)
	}

	forming := models.Candle{
		Symbol: "TSLA.US", Timeframe: "1m",
		StartTS: wednesdayRTH, EndTS: wednesdayRTH.Add(time.Minute),
		Open: 70, High: 70, Low: 70, Close: 70, Volume: 1,
	}
	store.SetCurrent(&forming)
	if p, src := e.lastPrice("TSLA.US"); *p != 70 || src != "ws_1m" {
		t.Fatalf("want forming 1m, got %v/%s", *p, src)
	}
}

func TestSessionTag(t *testing.T) {
	e := New(candles.NewStore(), DefaultConfig())

	sat := time.Date(2025, 6, 7, 15, 0, 0, 0, time.UTC)
	if got := e.sessionTag(&sat); got != "EXT" {
		t.Fatalf("saturday: want EXT, got %s", got)
	}
	midday := time.Date(2025, 6, 4, 16, 0, 0, 0, time.UTC) // 12:00 ET Wednesday
	if got := e.sessionTag(&midday); got != "RTH" {
		t.Fatalf("weekday midday: want RTH, got %s", got)
	}
	preMarket := time.Date(2025, 6, 4, 11, 0, 0, 0, time.UTC) // 07:00 ET
	if got := e.sessionTag(&preMarket); got != "EXT" {
		t.Fatalf("pre-market: want EXT, got %s", got)
	}
	if got := e.sessionTag(nil); got != "" {
		t.Fatalf("nil ts: want empty tag, got %q", got)
	}
}
