// Package candles holds the in-memory candle repository and the tick
// aggregation state machine that feeds it.
package candles

import (
	"sync"
	"time"

	"momentum/internal/domain/models"
	"momentum/internal/domain/repository"
)

type storeKey struct {
	symbol string
	tf     repository.Timeframe
}

// storeEntry is the per (symbol, timeframe) state. Each entry carries its own
// lock so writers on different keys never contend.
type storeEntry struct {
	mu          sync.RWMutex
	current     *models.Candle
	history     []models.Candle
	lastUpdated time.Time
}

// Store is a bounded in-memory repository of forming and closed candles per
// (symbol, timeframe), with freshness bookkeeping. Entries are created on
// first write and live for the process lifetime.
type Store struct {
	mu       sync.RWMutex
	entries  map[storeKey]*storeEntry
	capacity int
	now      func() time.Time
}

// StoreOption configures Store.
type StoreOption func(*Store)

// WithCapacity sets the closed-history capacity per key.
func WithCapacity(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a candle repository with a default capacity of 500 closed
// candles per (symbol, timeframe).
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries:  make(map[storeKey]*storeEntry),
		capacity: 500,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) entry(symbol string, tf repository.Timeframe) *storeEntry {
	k := storeKey{symbol: symbol, tf: tf}
	s.mu.RLock()
	e, ok := s.entries[k]
	s.mu.RUnlock()
	if ok {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[k]; ok {
		return e
	}
	e = &storeEntry{}
	s.entries[k] = e
	return e
}

// lookup returns the entry without creating one.
func (s *Store) lookup(symbol string, tf repository.Timeframe) (*storeEntry, bool) {
	s.mu.RLock()
	e, ok := s.entries[storeKey{symbol: symbol, tf: tf}]
	s.mu.RUnlock()
	return e, ok
}

// GetCurrent returns a snapshot of the forming candle, or nil if none.
func (s *Store) GetCurrent(symbol string, tf repository.Timeframe) *models.Candle {
	e, ok := s.lookup(symbol, tf)
	if !ok {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return nil
	}
	c := *e.current
	return &c
}

// SetCurrent replaces the forming candle and refreshes last-updated.
func (s *Store) SetCurrent(c *models.Candle) {
	e := s.entry(c.Symbol, repository.Timeframe(c.Timeframe))
	cp := *c
	e.mu.Lock()
	e.current = &cp
	e.lastUpdated = s.now()
	e.mu.Unlock()
}

// UpdateCurrent applies fn to the forming candle under the entry lock so the
// mutation is atomic from a reader's perspective. No-op when no candle is
// forming. Refreshes last-updated.
func (s *Store) UpdateCurrent(symbol string, tf repository.Timeframe, fn func(*models.Candle)) {
	e, ok := s.lookup(symbol, tf)
	if !ok {
		return
	}
	e.mu.Lock()
	if e.current != nil {
		fn(e.current)
		e.lastUpdated = s.now()
	}
	e.mu.Unlock()
}

// CloseCurrent moves the forming candle into closed history, trimming the
// oldest entries over capacity, and returns the closed candle. Returns nil if
// nothing was forming.
func (s *Store) CloseCurrent(symbol string, tf repository.Timeframe) *models.Candle {
	e, ok := s.lookup(symbol, tf)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	closed := *e.current
	e.current = nil
	e.history = append(e.history, closed)
	if n := len(e.history); n > s.capacity {
		e.history = append(e.history[:0:0], e.history[n-s.capacity:]...)
	}
	e.lastUpdated = s.now()
	return &closed
}

// GetHistory returns a copy of the closed candles, oldest first.
func (s *Store) GetHistory(symbol string, tf repository.Timeframe) []models.Candle {
	e, ok := s.lookup(symbol, tf)
	if !ok {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.history) == 0 {
		return nil
	}
	out := make([]models.Candle, len(e.history))
	copy(out, e.history)
	return out
}

// GetLastUpdated reports when data for the key was last touched.
func (s *Store) GetLastUpdated(symbol string, tf repository.Timeframe) (time.Time, bool) {
	e, ok := s.lookup(symbol, tf)
	if !ok {
		return time.Time{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastUpdated.IsZero() {
		return time.Time{}, false
	}
	return e.lastUpdated, true
}

// HasAnyData reports whether the key has a forming candle or closed history.
func (s *Store) HasAnyData(symbol string, tf repository.Timeframe) bool {
	e, ok := s.lookup(symbol, tf)
	if !ok {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current != nil || len(e.history) > 0
}

// IsFresh reports whether the key has data updated within maxAge.
func (s *Store) IsFresh(symbol string, tf repository.Timeframe, maxAge time.Duration) bool {
	e, ok := s.lookup(symbol, tf)
	if !ok {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil && len(e.history) == 0 {
		return false
	}
	if e.lastUpdated.IsZero() {
		return false
	}
	return s.now().Sub(e.lastUpdated) <= maxAge
}

// ReplaceHistory overwrites the closed history for a key in one shot and
// drops any forming candle (refresh data is closed bars only). The newest
// candles win when the input exceeds capacity.
func (s *Store) ReplaceHistory(symbol string, tf repository.Timeframe, cs []models.Candle) {
	e := s.entry(symbol, tf)
	if n := len(cs); n > s.capacity {
		cs = cs[n-s.capacity:]
	}
	hist := make([]models.Candle, len(cs))
	copy(hist, cs)
	e.mu.Lock()
	e.history = hist
	e.current = nil
	e.lastUpdated = s.now()
	e.mu.Unlock()
}

// LastClose returns the close of the most recent closed candle.
func (s *Store) LastClose(symbol string, tf repository.Timeframe) (float64, bool) {
	e, ok := s.lookup(symbol, tf)
	if !ok {
		return 0, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.history) == 0 {
		return 0, false
	}
	return e.history[len(e.history)-1].Close, true
}
