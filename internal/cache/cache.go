// Package cache implements the bounded, weighted, TTL-keyed tile cache
// described in §4.7: an approximate-LRU store of complete tile payloads with
// single-flight deduplication of concurrent misses for the same key.
package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"tileserver/entities"
)

// Config carries the two knobs §4.7 names.
type Config struct {
	MaxBytes int64
	TTL      time.Duration
}

type entry struct {
	payload  entities.TilePayload
	expires  time.Time
}

// Cache is a bounded, weighted, TTL tile cache. The zero value is not usable;
// construct with New.
type Cache struct {
	cfg Config

	mu        sync.Mutex
	lru       *lru.Cache[string, *entry]
	usedBytes int64

	flight singleflight.Group
}

// New builds a Cache. capacityHint bounds the number of distinct keys the
// underlying LRU tracks before it must evict purely by count; actual
// eviction is driven by cfg.MaxBytes, not this hint, so it can be generous.
func New(cfg Config, capacityHint int) (*Cache, error) {
	if capacityHint <= 0 {
		capacityHint = 4096
	}
	c := &Cache{cfg: cfg}
	inner, err := lru.NewWithEvict(capacityHint, func(_ string, e *entry) {
		c.usedBytes -= int64(len(e.payload.Data))
	})
	if err != nil {
		return nil, err
	}
	c.lru = inner
	return c, nil
}

// Get returns the cached payload for key, or a zero TilePayload and false on
// a miss or an expired entry. Never blocks on anything but the cache's own mutex.
func (c *Cache) Get(key string) (entities.TilePayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return entities.TilePayload{}, false
	}
	if c.cfg.TTL > 0 && time.Now().After(e.expires) {
		c.lru.Remove(key)
		return entities.TilePayload{}, false
	}
	return e.payload, true
}

// Insert stores payload under key, last-writer-wins, then evicts the
// least-recently-used entries until usedBytes fits within MaxBytes.
func (c *Cache) Insert(key string, payload entities.TilePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.lru.Peek(key); ok {
		c.usedBytes -= int64(len(old.payload.Data))
	}

	exp := time.Time{}
	if c.cfg.TTL > 0 {
		exp = time.Now().Add(c.cfg.TTL)
	}
	c.lru.Add(key, &entry{payload: payload, expires: exp})
	c.usedBytes += payload.Weight()

	for c.cfg.MaxBytes > 0 && c.usedBytes > c.cfg.MaxBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
}

// Fetch reads through the cache: a hit returns immediately, a miss calls
// load exactly once per key among concurrently waiting callers (§4.7's
// single-flight recommendation), caching and returning the shared result.
// A load returning an error is never cached.
func (c *Cache) Fetch(ctx context.Context, key string, load func(context.Context) (entities.TilePayload, error)) (entities.TilePayload, error) {
	if payload, ok := c.Get(key); ok {
		return payload, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		payload, err := load(ctx)
		if err != nil {
			return entities.TilePayload{}, err
		}
		c.Insert(key, payload)
		return payload, nil
	})
	if err != nil {
		return entities.TilePayload{}, err
	}
	return v.(entities.TilePayload), nil
}

// Len reports the number of live entries, for diagnostics/tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
