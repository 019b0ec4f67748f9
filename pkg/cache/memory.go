package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryItem struct {
	value    []byte
	expireAt time.Time
}

func (m *memoryItem) expired() bool {
	return !m.expireAt.IsZero() && time.Now().After(m.expireAt)
}

// MemoryCache implements Service using in-process storage with periodic
// expiry cleanup and a hard size cap (oldest-expiry-first eviction is not
// tracked; inserts over the cap evict an arbitrary expired entry first).
type MemoryCache struct {
	mu      sync.RWMutex
	data    map[string]*memoryItem
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
}

// MemoryOption configures MemoryCache.
type MemoryOption func(*MemoryCache)

// WithMemoryMaxSize caps the number of stored entries.
func WithMemoryMaxSize(n int) MemoryOption {
	return func(c *MemoryCache) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// NewMemoryCache creates an in-memory cache with a background cleanup loop.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		data:    make(map[string]*memoryItem),
		maxSize: 1000,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ticker = time.NewTicker(5 * time.Minute)
	go c.cleanupLoop()
	return c
}

func (c *MemoryCache) cleanupLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.ticker.C:
			c.mu.Lock()
			for k, item := range c.data {
				if item.expired() {
					delete(c.data, k)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Close stops the cleanup loop.
func (c *MemoryCache) Close() {
	c.ticker.Stop()
	close(c.done)
}

func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var exp time.Time
	if expiration > 0 {
		exp = time.Now().Add(expiration)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.data) >= c.maxSize {
		for k, item := range c.data {
			if item.expired() {
				delete(c.data, k)
				break
			}
		}
		if len(c.data) >= c.maxSize {
			return nil // full of live entries; drop the write
		}
	}
	c.data[key] = &memoryItem{value: b, expireAt: exp}
	return nil
}

func (c *MemoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.RLock()
	item, ok := c.data[key]
	c.mu.RUnlock()
	if !ok || item.expired() {
		return ErrCacheMiss
	}
	return json.Unmarshal(item.value, dest)
}

func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.data, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	item, ok := c.data[key]
	c.mu.RUnlock()
	return ok && !item.expired(), nil
}
