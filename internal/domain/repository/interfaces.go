package repository

import (
	"context"
	"time"

	"momentum/internal/domain/models"
)

// MarketStream is the live tick feed side of a market data provider.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// ProviderBar is one historical OHLCV row as returned by a provider.
type ProviderBar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// HistoricalProvider is the REST side of a market data provider.
type HistoricalProvider interface {
	FetchCandles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]ProviderBar, error)
}

// CandleSink receives closed candles for downstream delivery (Kafka topic,
// ClickHouse archive). Sinks are advisory: the core never reads them back.
type CandleSink interface {
	Publish(ctx context.Context, c *models.Candle) error
	Close() error
}

// Metrics abstracts operational counters so the core does not depend on a
// concrete metrics backend.
type Metrics interface {
	RecordTick(symbol string)
	RecordCandleClosed(tf string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
