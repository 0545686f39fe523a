package pmtiles

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// lruLeafCache is a bounded LRU of decoded leaf directories keyed by their
// byte offset in the leaf-directory section (§4.2).
type lruLeafCache struct {
	mu    sync.Mutex
	cache *lru.Cache[uint64, []entry]
}

func newLeafCache(size int) *lruLeafCache {
	if size <= 0 {
		size = 64
	}
	c, _ := lru.New[uint64, []entry](size)
	return &lruLeafCache{cache: c}
}

func (c *lruLeafCache) get(offset uint64) ([]entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Get(offset)
}

func (c *lruLeafCache) put(offset uint64, dir []entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(offset, dir)
}
