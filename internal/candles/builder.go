package candles

import (
	"sync"
	"time"

	"momentum/internal/domain/models"
	"momentum/internal/domain/repository"
)

// FloorToMinute rounds ts down to the start of its minute (UTC).
func FloorToMinute(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Minute)
}

// FloorTo5Min rounds ts down to the start of its 5-minute window (UTC).
func FloorTo5Min(ts time.Time) time.Time {
	return ts.UTC().Truncate(5 * time.Minute)
}

// Builder drives candle formation from live ticks:
// ticks -> 1m candles in real time, closed 1m candles -> 5m candles.
//
// OnTick is safe for concurrent use; writes for the live timeframes are
// serialized so a closure and the reopen that follows it are one atomic step.
type Builder struct {
	mu    sync.Mutex
	store *Store
}

// NewBuilder creates a builder writing into store.
func NewBuilder(store *Store) *Builder {
	return &Builder{store: store}
}

// OnTick folds one tick into the 1m state machine and returns the candles
// that closed because of it, in order: the closed 1m candle (if any), then
// the closed 5m candle (if any).
func (b *Builder) OnTick(tick *models.Tick) []*models.Candle {
	b.mu.Lock()
	defer b.mu.Unlock()

	var closed []*models.Candle

	closed1m := b.onTick1m(tick)
	if closed1m != nil {
		closed = append(closed, closed1m)
		if closed5m := b.rollInto5m(closed1m); closed5m != nil {
			closed = append(closed, closed5m)
		}
	}
	return closed
}

// onTick1m converts ticks into 1m candles. Returns a closed candle when the
// minute rolls over.
func (b *Builder) onTick1m(tick *models.Tick) *models.Candle {
	start := FloorToMinute(tick.TS)
	current := b.store.GetCurrent(tick.Symbol, repository.TF1m)

	if current == nil {
		b.store.SetCurrent(newCandle(tick.Symbol, repository.TF1m, start, tick.Price, tick.Size))
		return nil
	}

	// Out-of-order tick: older than the forming window, drop it.
	if tick.TS.Before(current.StartTS) {
		return nil
	}

	// Still inside the forming window.
	if tick.TS.Before(current.EndTS) {
		b.store.UpdateCurrent(tick.Symbol, repository.TF1m, func(c *models.Candle) {
			c.Update(tick.Price, tick.Size)
		})
		return nil
	}

	// Minute rolled: close the old candle, open a new one from this tick.
	closed := b.store.CloseCurrent(tick.Symbol, repository.TF1m)
	b.store.SetCurrent(newCandle(tick.Symbol, repository.TF1m, start, tick.Price, tick.Size))
	return closed
}

// rollInto5m updates (or creates) the forming 5m candle from a closed 1m
// candle. Returns a closed 5m candle when a 5m window completes.
func (b *Builder) rollInto5m(closed1m *models.Candle) *models.Candle {
	start := FloorTo5Min(closed1m.StartTS)
	current := b.store.GetCurrent(closed1m.Symbol, repository.TF5m)

	if current == nil || !start.Before(current.EndTS) {
		var closed5m *models.Candle
		if current != nil {
			closed5m = b.store.CloseCurrent(closed1m.Symbol, repository.TF5m)
		}
		next := &models.Candle{
			Symbol:    closed1m.Symbol,
			Timeframe: string(repository.TF5m),
			StartTS:   start,
			EndTS:     start.Add(5 * time.Minute),
			Open:      closed1m.Open,
			High:      closed1m.High,
			Low:       closed1m.Low,
			Close:     closed1m.Close,
			Volume:    closed1m.Volume,
		}
		b.store.SetCurrent(next)
		return closed5m
	}

	// Same 5m window: merge the closed 1m bar.
	b.store.UpdateCurrent(closed1m.Symbol, repository.TF5m, func(c *models.Candle) {
		c.Merge(closed1m)
	})
	return nil
}

func newCandle(symbol string, tf repository.Timeframe, start time.Time, price, size float64) *models.Candle {
	return &models.Candle{
		Symbol:    symbol,
		Timeframe: string(tf),
		StartTS:   start,
		EndTS:     start.Add(tf.Duration()),
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    size,
	}
}
