package models

import "time"

// Tick is a single live market update. Immutable, not persisted.
type Tick struct {
	Symbol string
	TS     time.Time
	Price  float64
	Size   float64
}

// Candle is an OHLCV aggregate over a fixed timeframe window.
// StartTS is inclusive, EndTS exclusive. A candle is mutable while forming
// and must be treated as immutable once it has been moved to history.
type Candle struct {
	Symbol    string
	Timeframe string
	StartTS   time.Time
	EndTS     time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Update folds one tick into a forming candle.
func (c *Candle) Update(price, size float64) {
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
	c.Volume += size
}

// Merge folds a closed lower-timeframe candle into a forming candle.
func (c *Candle) Merge(sub *Candle) {
	if sub.High > c.High {
		c.High = sub.High
	}
	if sub.Low < c.Low {
		c.Low = sub.Low
	}
	c.Close = sub.Close
	c.Volume += sub.Volume
}
