package refresher

import (
	"context"
	"time"

	"momentum/internal/candles"
	"momentum/internal/domain/models"
	"momentum/internal/domain/repository"
	"momentum/pkg/logger"
)

// Refresher periodically backfills higher-timeframe history from the REST
// provider. The websocket path owns 1m and 5m; everything slower comes from
// here.
type Refresher struct {
	store    *candles.Store
	provider repository.HistoricalProvider
	log      *logger.Logger
	metrics  repository.Metrics
	interval time.Duration
	limit    int
	now      func() time.Time
}

type Option func(*Refresher)

func WithClock(now func() time.Time) Option {
	return func(r *Refresher) { r.now = now }
}

func WithLimit(limit int) Option {
	return func(r *Refresher) { r.limit = limit }
}

func New(store *candles.Store, provider repository.HistoricalProvider, log *logger.Logger, metrics repository.Metrics, interval time.Duration, opts ...Option) *Refresher {
	r := &Refresher{
		store:    store,
		provider: provider,
		log:      log,
		metrics:  metrics,
		interval: interval,
		limit:    300,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run refreshes the given symbols on a fixed interval until the context is
// cancelled. Provider failures are logged and retried on the next cycle; the
// loop itself never exits early.
func (r *Refresher) Run(ctx context.Context, symbols []string) {
	// Populate immediately so the first snapshot after startup has history.
	r.RefreshAll(ctx, symbols)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("refresher stopped")
			return
		case <-ticker.C:
			r.RefreshAll(ctx, symbols)
		}
	}
}

// RefreshAll runs one refresh cycle for every symbol.
func (r *Refresher) RefreshAll(ctx context.Context, symbols []string) {
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return
		}
		r.RefreshSymbol(ctx, symbol)
	}
}

// RefreshSymbol fetches 15m, 1h, 4h and 1d history for one symbol and
// replaces the stored windows. A failed timeframe leaves the previous window
// in place.
func (r *Refresher) RefreshSymbol(ctx context.Context, symbol string) {
	for _, tf := range []repository.Timeframe{repository.TF15m, repository.TF1h, repository.TF1d} {
		if err := r.refreshTimeframe(ctx, symbol, tf); err != nil {
			r.logRefreshError(symbol, tf, err)
		}
	}
	if err := r.refresh4h(ctx, symbol); err != nil {
		r.logRefreshError(symbol, repository.TF4h, err)
	}
}

func (r *Refresher) refreshTimeframe(ctx context.Context, symbol string, tf repository.Timeframe) error {
	bars, err := r.provider.FetchCandles(ctx, symbol, tf, r.limit)
	if err != nil {
		return err
	}
	cs := toCandles(symbol, tf, bars)
	cs = dropPartial(cs, r.now())
	r.store.ReplaceHistory(symbol, tf, cs)
	return nil
}

// refresh4h tries the provider's native 4h data first and falls back to
// aggregating the already-refreshed 1h window when the fetch fails.
func (r *Refresher) refresh4h(ctx context.Context, symbol string) error {
	bars, err := r.provider.FetchCandles(ctx, symbol, repository.TF4h, r.limit)
	if err == nil {
		cs := dropPartial(toCandles(symbol, repository.TF4h, bars), r.now())
		r.store.ReplaceHistory(symbol, repository.TF4h, cs)
		return nil
	}

	hourly := r.store.GetHistory(symbol, repository.TF1h)
	if len(hourly) == 0 {
		return err
	}
	agg := Aggregate1hTo4h(hourly)
	agg = dropPartial(agg, r.now())
	if r.limit > 0 && len(agg) > r.limit {
		agg = agg[len(agg)-r.limit:]
	}
	r.store.ReplaceHistory(symbol, repository.TF4h, agg)
	r.log.Warn("4h fetch failed, aggregated from 1h",
		logger.String("symbol", symbol),
		logger.Int("bars", len(agg)),
		logger.Error(err))
	return nil
}

func (r *Refresher) logRefreshError(symbol string, tf repository.Timeframe, err error) {
	if r.metrics != nil {
		r.metrics.RecordError("refresh_" + string(tf))
	}
	r.log.Error("history refresh failed",
		logger.String("symbol", symbol),
		logger.String("timeframe", string(tf)),
		logger.Error(err))
}

// Aggregate1hTo4h rolls hourly candles into 4-hour buckets aligned to
// midnight UTC. Each bucket takes the first open, last close, max high,
// min low and summed volume of its members.
func Aggregate1hTo4h(hourly []models.Candle) []models.Candle {
	if len(hourly) == 0 {
		return nil
	}

	span := 4 * time.Hour
	var out []models.Candle
	for _, h := range hourly {
		start := h.StartTS.UTC().Truncate(span)
		if len(out) == 0 || !out[len(out)-1].StartTS.Equal(start) {
			out = append(out, models.Candle{
				Symbol:    h.Symbol,
				Timeframe: string(repository.TF4h),
				StartTS:   start,
				EndTS:     start.Add(span),
				Open:      h.Open,
				High:      h.High,
				Low:       h.Low,
				Close:     h.Close,
				Volume:    h.Volume,
			})
			continue
		}
		cur := &out[len(out)-1]
		if h.High > cur.High {
			cur.High = h.High
		}
		if h.Low < cur.Low {
			cur.Low = h.Low
		}
		cur.Close = h.Close
		cur.Volume += h.Volume
	}
	return out
}

// toCandles converts provider bars into domain candles, skipping rows with a
// non-positive close.
func toCandles(symbol string, tf repository.Timeframe, bars []repository.ProviderBar) []models.Candle {
	out := make([]models.Candle, 0, len(bars))
	dur := tf.Duration()
	for _, b := range bars {
		if b.Close <= 0 {
			continue
		}
		out = append(out, models.Candle{
			Symbol:    symbol,
			Timeframe: string(tf),
			StartTS:   b.Time.UTC(),
			EndTS:     b.Time.UTC().Add(dur),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return out
}

// dropPartial removes a trailing candle whose interval has not closed yet.
// Providers include the still-forming bar in intraday responses.
func dropPartial(cs []models.Candle, now time.Time) []models.Candle {
	if len(cs) == 0 {
		return cs
	}
	last := cs[len(cs)-1]
	if now.Before(last.EndTS) {
		return cs[:len(cs)-1]
	}
	return cs
}
