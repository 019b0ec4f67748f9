package usecase

import (
	"context"
	"fmt"
	"time"

	"momentum/internal/candles"
	"momentum/internal/domain/models"
	drepo "momentum/internal/domain/repository"
	"momentum/pkg/logger"
)

// TickProcessor folds ticks into the candle repository and forwards closed
// candles to the configured sinks. Sinks are advisory: a failing sink is
// logged and counted, never propagated back to the tick path.
type TickProcessor struct {
	builder *candles.Builder
	sinks   []drepo.CandleSink
	metrics drepo.Metrics
	log     *logger.Logger
}

// NewTickProcessor creates a new TickProcessor instance.
func NewTickProcessor(builder *candles.Builder, sinks []drepo.CandleSink, metrics drepo.Metrics, log *logger.Logger) *TickProcessor {
	return &TickProcessor{builder: builder, sinks: sinks, metrics: metrics, log: log}
}

// Process ingests a single tick.
func (p *TickProcessor) Process(ctx context.Context, t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick is nil")
	}

	start := time.Now()
	p.metrics.RecordTick(t.Symbol)
	p.metrics.RecordLastPrice(t.Symbol, t.Price)

	closed := p.builder.OnTick(t)
	for _, c := range closed {
		p.metrics.RecordCandleClosed(c.Timeframe)
		for _, sink := range p.sinks {
			if err := sink.Publish(ctx, c); err != nil {
				p.metrics.RecordError("sink_publish")
				p.log.Warn("candle sink publish failed",
					logger.String("symbol", c.Symbol),
					logger.String("timeframe", c.Timeframe),
					logger.Error(err))
			}
		}
	}

	p.metrics.RecordLatency("process_tick", time.Since(start).Seconds())
	return nil
}

// Close closes all sinks.
func (p *TickProcessor) Close() {
	for _, sink := range p.sinks {
		if err := sink.Close(); err != nil {
			p.log.Warn("candle sink close failed", logger.Error(err))
		}
	}
}
