package usecase

import (
	"context"
	"time"

	"momentum/internal/domain/models"
	drepo "momentum/internal/domain/repository"
	mid "momentum/internal/middleware"
)

// TickCollector consumes the market stream and pushes ticks through the
// pipeline into the processor.
type TickCollector struct {
	stream     drepo.MarketStream
	proc       *TickProcessor
	metrics    drepo.Metrics
	pipe       *mid.TickPipeline
	backoffMin time.Duration
	backoffMax time.Duration
}

type CollectorOption func(*TickCollector)

// WithReconnectBackoff sets the initial and ceiling delays between
// reconnect attempts.
func WithReconnectBackoff(min, max time.Duration) CollectorOption {
	return func(c *TickCollector) {
		if min > 0 {
			c.backoffMin = min
		}
		if max >= c.backoffMin {
			c.backoffMax = max
		}
	}
}

// NewTickCollector creates a new TickCollector instance.
func NewTickCollector(stream drepo.MarketStream, proc *TickProcessor, metrics drepo.Metrics, pipe *mid.TickPipeline, opts ...CollectorOption) *TickCollector {
	c := &TickCollector{
		stream:     stream,
		proc:       proc,
		metrics:    metrics,
		pipe:       pipe,
		backoffMin: 2 * time.Second,
		backoffMax: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsConnected returns true if the market stream is connected.
func (c *TickCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	tickCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, tickCh, errCh)
	return nil
}

func (c *TickCollector) consume(ctx context.Context, tickCh <-chan *models.Tick, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				if !c.reconnect(ctx) {
					return
				}
				tickCh, errCh = c.stream.Read(ctx)
				continue
			}
			if err != nil {
				c.metrics.RecordError("stream")
				if !c.reconnect(ctx) {
					return
				}
				tickCh, errCh = c.stream.Read(ctx)
			}
		case t, ok := <-tickCh:
			if !ok {
				if !c.reconnect(ctx) {
					return
				}
				tickCh, errCh = c.stream.Read(ctx)
				continue
			}
			if t == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, t)
			} else {
				_ = c.proc.Process(ctx, t)
			}
		}
	}
}

// reconnect retries the stream with exponential backoff capped at the
// configured ceiling, until it is up again or ctx ends. The feed must not
// go quietly dead on a single failed attempt.
func (c *TickCollector) reconnect(ctx context.Context) bool {
	delay := c.backoffMin
	for {
		if err := c.stream.Reconnect(ctx); err == nil {
			return true
		} else if ctx.Err() != nil {
			return false
		}
		c.metrics.RecordError("stream_reconnect")
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.backoffMax {
			delay = c.backoffMax
		}
	}
}

// Processor returns the underlying TickProcessor for lifecycle management.
func (c *TickCollector) Processor() *TickProcessor { return c.proc }

// Shutdown stops the pipeline and closes the stream.
func (c *TickCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
