package candles

import (
	"testing"
	"time"

	"momentum/internal/domain/models"
	"momentum/internal/domain/repository"
)

func tick(symbol string, ts time.Time, price, size float64) *models.Tick {
	return &models.Tick{Symbol: symbol, TS: ts, Price: price, Size: size}
}

func TestBuilderSingleWindowOHLCV(t *testing.T) {
	store := NewStore()
	b := NewBuilder(store)
	base := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	b.OnTick(tick("TSLA.US", base, 100, 10))
	b.OnTick(tick("TSLA.US", base.Add(10*time.Second), 105, 20))
	b.OnTick(tick("TSLA.US", base.Add(30*time.Second), 98, 5))
	b.OnTick(tick("TSLA.US", base.Add(50*time.Second), 101, 15))

	c := store.GetCurrent("TSLA.US", repository.TF1m)
	if c == nil {
		t.Fatalf("expected forming 1m candle")
	}
	if c.Open != 100 {
		t.Errorf("open: want 100, got %v", c.Open)
	}
	if c.High != 105 {
		t.Errorf("high: want 105, got %v", c.High)
	}
	if c.Low != 98 {
		t.Errorf("low: want 98, got %v", c.Low)
	}
	if c.Close != 101 {
		t.Errorf("close: want 101, got %v", c.Close)
	}
	if c.Volume != 50 {
		t.Errorf("volume: want 50, got %v", c.Volume)
	}
	if !c.StartTS.Equal(base) || !c.EndTS.Equal(base.Add(time.Minute)) {
		t.Errorf("unexpected window %v..%v", c.StartTS, c.EndTS)
	}
}

func TestBuilderOutOfOrderTickDropped(t *testing.T) {
	store := NewStore()
	b := NewBuilder(store)
	base := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	b.OnTick(tick("TSLA.US", base, 100, 10))
	before := *store.GetCurrent("TSLA.US", repository.TF1m)

	closed := b.OnTick(tick("TSLA.US", base.Add(-time.Minute), 1, 999))
	if len(closed) != 0 {
		t.Fatalf("out-of-order tick must close nothing")
	}
	after := *store.GetCurrent("TSLA.US", repository.TF1m)
	if before != after {
		t.Fatalf("out-of-order tick must leave state unchanged: %+v vs %+v", before, after)
	}
}

func TestBuilderMinuteRollCloses1m(t *testing.T) {
	store := NewStore()
	b := NewBuilder(store)
	base := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	b.OnTick(tick("TSLA.US", base, 100, 10))
	closed := b.OnTick(tick("TSLA.US", base.Add(time.Minute), 102, 5))

	if len(closed) != 1 {
		t.Fatalf("expected exactly 1 closed candle, got %d", len(closed))
	}
	if closed[0].Timeframe != "1m" || closed[0].Close != 100 {
		t.Fatalf("unexpected closed candle %+v", closed[0])
	}

	c := store.GetCurrent("TSLA.US", repository.TF1m)
	if c == nil || c.Open != 102 {
		t.Fatalf("new 1m candle must be seeded from the rolling tick")
	}

	// The closed 1m opened (or updated) the forming 5m candle.
	c5 := store.GetCurrent("TSLA.US", repository.TF5m)
	if c5 == nil || c5.Close != 100 || c5.Volume != 10 {
		t.Fatalf("unexpected forming 5m candle %+v", c5)
	}
}

func TestBuilder5mRollupMergeAndClose(t *testing.T) {
	store := NewStore()
	b := NewBuilder(store)
	base := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	// Minutes 0..4 fill one 5m bucket; the tick at minute 5 closes the last
	// 1m of the bucket, and the tick at minute 6 seeds a new bucket.
	prices := []float64{100, 101, 99, 102, 103}
	for i, p := range prices {
		b.OnTick(tick("TSLA.US", base.Add(time.Duration(i)*time.Minute), p, 10))
	}

	// 4 closed 1m candles so far, all in the same 5m bucket: merged, not closed.
	if got := len(store.GetHistory("TSLA.US", repository.TF5m)); got != 0 {
		t.Fatalf("5m must still be forming, found %d closed", got)
	}

	closed := b.OnTick(tick("TSLA.US", base.Add(5*time.Minute), 104, 10))
	if len(closed) != 2 {
		t.Fatalf("expected closed 1m and closed 5m, got %d", len(closed))
	}
	if closed[0].Timeframe != "1m" || closed[1].Timeframe != "5m" {
		t.Fatalf("unexpected order %s, %s", closed[0].Timeframe, closed[1].Timeframe)
	}

	c5 := closed[1]
	if c5.Open != 100 {
		t.Errorf("5m open: want 100, got %v", c5.Open)
	}
	if c5.High != 103 {
		t.Errorf("5m high: want 103, got %v", c5.High)
	}
	if c5.Low != 99 {
		t.Errorf("5m low: want 99, got %v", c5.Low)
	}
	if c5.Close != 103 {
		t.Errorf("5m close: want 103, got %v", c5.Close)
	}
	if c5.Volume != 50 {
		t.Errorf("5m volume: want 50, got %v", c5.Volume)
	}
}

func TestBuilderMidBucketRollDoesNotClose5m(t *testing.T) {
	store := NewStore()
	b := NewBuilder(store)
	base := time.Date(2025, 6, 2, 14, 2, 0, 0, time.UTC)

	b.OnTick(tick("TSLA.US", base, 100, 10))
	closed := b.OnTick(tick("TSLA.US", base.Add(time.Minute), 101, 10))
	if len(closed) != 1 {
		t.Fatalf("minute roll inside a 5m bucket must close only the 1m, got %d", len(closed))
	}
}
