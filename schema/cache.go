package schema

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores resolved entries. Implementations must be safe for concurrent use and
// treat Set as idempotent; the last write wins.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool)
	Set(ctx context.Context, key string, e Entry, ttl time.Duration)
	Clear(ctx context.Context)
}

// Expiring is implemented by caches that can report an entry's remaining lifetime.
type Expiring interface {
	GetTTL(ctx context.Context, key string) (Entry, time.Duration, bool)
}

type noCache struct{}

func (noCache) Get(context.Context, string) (Entry, bool)         { return Entry{}, false }
func (noCache) Set(context.Context, string, Entry, time.Duration) {}
func (noCache) Clear(context.Context)                             {}

type memItem struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryCache is an in-process TTL map.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]memItem
	now   func() time.Time
}

// NewMemoryCache creates a MemoryCache. now may be nil.
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{items: make(map[string]memItem), now: now}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (Entry, bool) {
	e, _, ok := c.GetTTL(ctx, key)
	return e, ok
}

func (c *MemoryCache) GetTTL(_ context.Context, key string) (Entry, time.Duration, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, 0, false
	}
	left := it.expiresAt.Sub(c.now())
	if left <= 0 {
		return Entry{}, 0, false
	}
	return it.entry, left, true
}

func (c *MemoryCache) Set(_ context.Context, key string, e Entry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.items[key] = memItem{entry: e, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

func (c *MemoryCache) Clear(context.Context) {
	c.mu.Lock()
	c.items = make(map[string]memItem)
	c.mu.Unlock()
}

// Purge removes expired entries and reports how many were dropped.
func (c *MemoryCache) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, it := range c.items {
		if !now.Before(it.expiresAt) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

const redisPrefix = "eas:schema:"

// RedisCache shares resolved entries between instances. Redis errors degrade to misses.
type RedisCache struct {
	rc  *redis.Client
	log *zap.Logger
}

func NewRedisCache(rc *redis.Client, log *zap.Logger) *RedisCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisCache{rc: rc, log: log}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Entry, bool) {
	e, _, ok := c.GetTTL(ctx, key)
	return e, ok
}

// GetTTL reads the entry and its PTTL in one round trip. A key without expiry reports 0.
func (c *RedisCache) GetTTL(ctx context.Context, key string) (Entry, time.Duration, bool) {
	pipe := c.rc.Pipeline()
	get := pipe.Get(ctx, redisPrefix+key)
	pttl := pipe.PTTL(ctx, redisPrefix+key)
	if _, err := pipe.Exec(ctx); err != nil {
		if err != redis.Nil {
			c.log.Warn("schema cache get failed", zap.String("key", key), zap.Error(err))
		}
		return Entry{}, 0, false
	}
	raw, err := get.Bytes()
	if err != nil {
		return Entry{}, 0, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, 0, false
	}
	return e, max(pttl.Val(), 0), true
}

func (c *RedisCache) Set(ctx context.Context, key string, e Entry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.rc.Set(ctx, redisPrefix+key, raw, ttl).Err(); err != nil {
		c.log.Warn("schema cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) Clear(ctx context.Context) {
	iter := c.rc.Scan(ctx, 0, redisPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("schema cache scan failed", zap.Error(err))
	}
	if len(keys) > 0 {
		_ = c.rc.Del(ctx, keys...).Err()
	}
}

// Tiered checks a local cache before a shared one and back-fills the local tier. The
// back-fill never outlives the shared entry when Back implements Expiring.
type Tiered struct {
	Front Cache
	Back  Cache
	TTL   time.Duration
}

func (t Tiered) Get(ctx context.Context, key string) (Entry, bool) {
	if e, ok := t.Front.Get(ctx, key); ok {
		return e, true
	}
	x, ok := t.Back.(Expiring)
	if !ok {
		e, hit := t.Back.Get(ctx, key)
		if hit {
			t.Front.Set(ctx, key, e, t.TTL)
		}
		return e, hit
	}
	e, left, hit := x.GetTTL(ctx, key)
	if !hit {
		return Entry{}, false
	}
	ttl := t.TTL
	if left > 0 && left < ttl {
		ttl = left
	}
	t.Front.Set(ctx, key, e, ttl)
	return e, true
}

func (t Tiered) Set(ctx context.Context, key string, e Entry, ttl time.Duration) {
	t.Back.Set(ctx, key, e, ttl)
	t.Front.Set(ctx, key, e, ttl)
}

func (t Tiered) Clear(ctx context.Context) {
	t.Back.Clear(ctx)
	t.Front.Clear(ctx)
}
