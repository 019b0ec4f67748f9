package cache

import (
	"context"
	"errors"
	"time"
)

// LayeredCache is a two-level cache: L1 in-process memory, L2 Redis. Reads
// fall through to L2 and repopulate L1; writes go to both levels.
type LayeredCache struct {
	mem   *MemoryCache
	redis *RedisCache
}

// NewLayeredCache wraps a Redis cache with a memory front.
func NewLayeredCache(redisCache *RedisCache, memOpts ...MemoryOption) *LayeredCache {
	return &LayeredCache{
		mem:   NewMemoryCache(memOpts...),
		redis: redisCache,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.mem.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	return lc.redis.Set(ctx, key, value, expiration)
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.mem.Get(ctx, key, dest); err == nil {
		return nil
	} else if !errors.Is(err, ErrCacheMiss) {
		return err
	}
	if err := lc.redis.Get(ctx, key, dest); err != nil {
		return err
	}
	// Repopulate L1 without a TTL of its own; next cleanup pass ages it out.
	_ = lc.mem.Set(ctx, key, dest, time.Minute)
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	if err := lc.mem.Delete(ctx, keys...); err != nil {
		return err
	}
	return lc.redis.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, key string) (bool, error) {
	if ok, err := lc.mem.Exists(ctx, key); err == nil && ok {
		return true, nil
	}
	return lc.redis.Exists(ctx, key)
}
