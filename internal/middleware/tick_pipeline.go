package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"momentum/internal/domain/models"
	domrepo "momentum/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, t *models.Tick) error
}

// TickPipeline sits between the market stream and the candle processor.
// It validates, tracks per-symbol arrival rates, and buffers when downstream
// fails. Every validated tick is forwarded; dropping in-window ticks would
// corrupt candle volume and high/low.
type TickPipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	maxRPS  int
	bufSize int
	bufCh   chan *models.Tick
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	rates   map[string]*symbolRate
}

// symbolRate counts ticks in the current one-second window.
type symbolRate struct {
	windowStart time.Time
	count       int
}

type PipelineOption func(*TickPipeline)

// WithMaxRPS sets the per-symbol rate above which a symbol is flagged hot
// in metrics. Zero disables the tracking.
func WithMaxRPS(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer size for downstream failures.
func WithBufferSize(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewTickPipeline creates a new pipeline.
func NewTickPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		proc:    proc,
		metrics: metrics,
		maxRPS:  50,
		bufSize: 1000,
		stopCh:  make(chan struct{}),
		rates:   make(map[string]*symbolRate),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Tick, p.bufSize)
	return p
}

// Start launches background flushing of buffered ticks.
func (p *TickPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case t := <-p.bufCh:
				if t == nil {
					continue
				}
				if err := p.proc.Process(ctx, t); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					select {
					case p.bufCh <- t:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *TickPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates and forwards a tick downstream, buffering it on
// downstream errors.
func (p *TickPipeline) Process(ctx context.Context, t *models.Tick) error {
	start := time.Now()
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	p.observeRate(t.Symbol, start)

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- t:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateTick(t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick nil")
	}
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if t.TS.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if t.Price <= 0 || t.Size < 0 {
		return fmt.Errorf("invalid price/size")
	}
	return nil
}

// observeRate counts per-symbol arrivals over a one-second window and flags
// hot symbols through metrics. It never gates the tick itself.
func (p *TickPipeline) observeRate(symbol string, now time.Time) {
	if p.maxRPS <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.rates[symbol]
	if r == nil {
		r = &symbolRate{windowStart: now}
		p.rates[symbol] = r
	}
	if now.Sub(r.windowStart) >= time.Second {
		r.windowStart = now
		r.count = 0
	}
	r.count++
	if r.count == p.maxRPS+1 {
		p.metrics.RecordError("pipeline_hot_symbol")
	}
}
