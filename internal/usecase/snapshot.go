package usecase

import (
	"time"

	"momentum/internal/candles"
	"momentum/internal/domain/models"
	"momentum/internal/domain/repository"
	"momentum/internal/indicators"
)

// emaPeriods lists which EMA lengths each timeframe reports. Fast pairs on
// intraday frames, trend pairs on the slow ones.
var emaPeriods = map[repository.Timeframe][]int{
	repository.TF1m:  {9, 20},
	repository.TF5m:  {9, 20},
	repository.TF15m: {9, 20, 50, 200},
	repository.TF1h:  {50, 200},
	repository.TF1d:  {50, 200},
}

// SnapshotUsecase assembles the per-symbol repository and indicator view.
type SnapshotUsecase struct {
	store     *candles.Store
	freshness map[string]time.Duration
}

// NewSnapshotUsecase creates a new SnapshotUsecase instance.
func NewSnapshotUsecase(store *candles.Store, freshness map[string]time.Duration) *SnapshotUsecase {
	return &SnapshotUsecase{store: store, freshness: freshness}
}

// TimeframeStatuses reports data presence and freshness for every timeframe,
// plus the list of timeframes with no data and those stale beyond max age.
func (u *SnapshotUsecase) TimeframeStatuses(symbol string) (map[string]models.TimeframeStatus, []string, []string) {
	statuses := make(map[string]models.TimeframeStatus, len(repository.AllTimeframes()))
	var missing, stale []string

	for _, tf := range repository.AllTimeframes() {
		maxAge := u.freshness[string(tf)]
		st := models.TimeframeStatus{MaxAgeSeconds: int(maxAge.Seconds())}
		st.HasData = u.store.HasAnyData(symbol, tf)
		if ts, ok := u.store.GetLastUpdated(symbol, tf); ok {
			t := ts
			st.LastUpdated = &t
		}
		if st.HasData {
			st.Fresh = u.store.IsFresh(symbol, tf, maxAge)
			if !st.Fresh {
				stale = append(stale, string(tf))
			}
		} else {
			missing = append(missing, string(tf))
		}
		statuses[string(tf)] = st
	}
	return statuses, missing, stale
}

// Candles returns up to limit bars for one timeframe, oldest first.
// Bars that ended before from are dropped when from is non-zero.
func (u *SnapshotUsecase) Candles(symbol string, tf repository.Timeframe, from time.Time, limit int) []models.Candle {
	hist := u.store.GetHistory(symbol, tf)
	if !from.IsZero() {
		i := 0
		for i < len(hist) && hist[i].EndTS.Before(from) {
			i++
		}
		hist = hist[i:]
	}
	if limit > 0 && len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	return hist
}

// Indicators computes the full indicator bundle from current history.
func (u *SnapshotUsecase) Indicators(symbol string) models.IndicatorBundle {
	b := models.IndicatorBundle{
		EMA:    make(map[string]map[string]float64),
		ATR:    make(map[string]map[string]float64),
		Priors: make(map[string]map[string]float64),
		OBV:    make(map[string]map[string]float64),
		VWAP:   make(map[string]map[string]float64),
		RelVol: make(map[string]map[string]float64),
	}

	for tf, periods := range emaPeriods {
		b.EMA[string(tf)] = indicators.EMA(u.store, symbol, tf, periods)
	}
	for _, tf := range []repository.Timeframe{repository.TF5m, repository.TF15m} {
		b.ATR[string(tf)] = indicators.ATR(u.store, symbol, tf, 14)
		b.RelVol[string(tf)] = indicators.RelVol(u.store, symbol, tf, 20)
	}
	b.Priors[string(repository.TF15m)] = indicators.PriorHighLow(u.store, symbol, repository.TF15m, 20)
	b.OBV[string(repository.TF5m)] = indicators.OBVSlope(u.store, symbol, repository.TF5m, 20)
	b.VWAP[string(repository.TF5m)] = indicators.VWAP(u.store, symbol, repository.TF5m, 50)

	return b
}

// Build produces the complete snapshot for one symbol.
func (u *SnapshotUsecase) Build(symbol string) *models.Snapshot {
	statuses, missing, _ := u.TimeframeStatuses(symbol)
	return &models.Snapshot{
		Ticker:            symbol,
		Timeframes:        statuses,
		MissingTimeframes: missing,
		Indicators:        u.Indicators(symbol),
	}
}
