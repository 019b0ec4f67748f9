package candles

import (
	"testing"
	"time"

	"momentum/internal/domain/models"
	"momentum/internal/domain/repository"
)

func mkCandle(symbol string, tf repository.Timeframe, start time.Time, close float64) models.Candle {
	return models.Candle{
		Symbol:    symbol,
		Timeframe: string(tf),
		StartTS:   start,
		EndTS:     start.Add(tf.Duration()),
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    1,
	}
}

func TestStoreCloseCurrent(t *testing.T) {
	s := NewStore()
	start := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	c := mkCandle("TSLA.US", repository.TF1m, start, 100)
	s.SetCurrent(&c)

	closed := s.CloseCurrent("TSLA.US", repository.TF1m)
	if closed == nil {
		t.Fatalf("expected closed candle")
	}
	if closed.Close != 100 {
		t.Fatalf("unexpected close %v", closed.Close)
	}
	if s.GetCurrent("TSLA.US", repository.TF1m) != nil {
		t.Fatalf("current should be empty after close")
	}
	if got := len(s.GetHistory("TSLA.US", repository.TF1m)); got != 1 {
		t.Fatalf("expected 1 history entry, got %d", got)
	}
}

func TestStoreCloseCurrentEmpty(t *testing.T) {
	s := NewStore()
	if got := s.CloseCurrent("TSLA.US", repository.TF1m); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestStoreCapacityTrim(t *testing.T) {
	s := NewStore(WithCapacity(3))
	start := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		c := mkCandle("TSLA.US", repository.TF1m, start.Add(time.Duration(i)*time.Minute), float64(i))
		s.SetCurrent(&c)
		s.CloseCurrent("TSLA.US", repository.TF1m)
	}

	hist := s.GetHistory("TSLA.US", repository.TF1m)
	if len(hist) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(hist))
	}
	// Oldest evicted first: closes 2, 3, 4 remain.
	if hist[0].Close != 2 || hist[2].Close != 4 {
		t.Fatalf("unexpected trim: first=%v last=%v", hist[0].Close, hist[2].Close)
	}
}

func TestStoreFreshness(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := NewStore(WithClock(clock))

	if s.HasAnyData("TSLA.US", repository.TF5m) {
		t.Fatalf("expected no data")
	}
	if s.IsFresh("TSLA.US", repository.TF5m, time.Hour) {
		t.Fatalf("is_fresh must be false without data")
	}

	c := mkCandle("TSLA.US", repository.TF5m, now, 10)
	s.SetCurrent(&c)
	if !s.HasAnyData("TSLA.US", repository.TF5m) {
		t.Fatalf("expected data after set_current")
	}
	if !s.IsFresh("TSLA.US", repository.TF5m, 480*time.Second) {
		t.Fatalf("expected fresh right after update")
	}

	now = now.Add(481 * time.Second)
	if s.IsFresh("TSLA.US", repository.TF5m, 480*time.Second) {
		t.Fatalf("expected stale after max age elapsed")
	}
}

func TestStoreReplaceHistory(t *testing.T) {
	s := NewStore(WithCapacity(2))
	start := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	forming := mkCandle("TSLA.US", repository.TF15m, start.Add(45*time.Minute), 99)
	s.SetCurrent(&forming)

	var cs []models.Candle
	for i := 0; i < 4; i++ {
		cs = append(cs, mkCandle("TSLA.US", repository.TF15m, start.Add(time.Duration(i)*15*time.Minute), float64(i)))
	}
	s.ReplaceHistory("TSLA.US", repository.TF15m, cs)

	if s.GetCurrent("TSLA.US", repository.TF15m) != nil {
		t.Fatalf("replace_history must drop the forming candle")
	}
	hist := s.GetHistory("TSLA.US", repository.TF15m)
	if len(hist) != 2 {
		t.Fatalf("expected capacity trim to 2, got %d", len(hist))
	}
	if hist[0].Close != 2 || hist[1].Close != 3 {
		t.Fatalf("expected newest candles kept, got %v %v", hist[0].Close, hist[1].Close)
	}
}

func TestStoreHistoryIsCopy(t *testing.T) {
	s := NewStore()
	start := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	c := mkCandle("TSLA.US", repository.TF1m, start, 5)
	s.SetCurrent(&c)
	s.CloseCurrent("TSLA.US", repository.TF1m)

	hist := s.GetHistory("TSLA.US", repository.TF1m)
	hist[0].Close = 123
	if s.GetHistory("TSLA.US", repository.TF1m)[0].Close != 5 {
		t.Fatalf("history must not be mutable through returned slice")
	}
}
