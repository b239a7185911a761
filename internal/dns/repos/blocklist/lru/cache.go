package lru

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/haukened/dns-sinkhole/internal/dns/repos/blocklist"
)

// backend is the subset shared by lru.Cache and expirable.LRU.
type backend interface {
	Add(key string, value bool) bool
	Get(key string) (bool, bool)
	Len() int
	Purge()
}

// decisionCache is an LRU-backed implementation of blocklist.DecisionCache.
// It tracks basic metrics: hits, misses, and evictions.
type decisionCache struct {
	backend   backend
	capacity  int
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// mapCache never evicts. It is used when size == 0 and no TTL is set.
type mapCache struct {
	mu     sync.RWMutex
	m      map[string]bool
	hits   atomic.Uint64
	misses atomic.Uint64
}

// disabledCache is a no-op DecisionCache used when size < 0.
type disabledCache struct{}

var newLRU = func(size int, onEvict func(string, bool)) (backend, error) {
	return lru.NewWithEvict[string, bool](size, onEvict)
}

var newExpirable = func(size int, onEvict func(string, bool), ttl time.Duration) backend {
	return expirable.NewLRU[string, bool](size, onEvict, ttl)
}

// New creates a DecisionCache.
//   - size < 0: caching disabled, every Get misses
//   - size == 0, ttl == 0: unbounded, entries live until Purge
//   - ttl > 0: entries expire after ttl; size bounds the entry count (0 = no bound)
//   - otherwise: LRU bounded to size entries
func New(size int, ttl time.Duration) (blocklist.DecisionCache, error) {
	if size < 0 {
		return &disabledCache{}, nil
	}
	if size == 0 && ttl <= 0 {
		return &mapCache{m: make(map[string]bool)}, nil
	}

	dc := &decisionCache{capacity: size}
	// Observe evictions, including Purge-induced and expiry-induced ones.
	onEvict := func(string, bool) { dc.evictions.Add(1) }
	if ttl > 0 {
		dc.backend = newExpirable(size, onEvict, ttl)
		return dc, nil
	}
	b, err := newLRU(size, onEvict)
	if err != nil {
		return nil, err
	}
	dc.backend = b
	return dc, nil
}

// Get looks up a decision by name. When found, increments hits; otherwise increments misses.
func (c *decisionCache) Get(name string) (bool, bool) {
	if val, ok := c.backend.Get(name); ok {
		c.hits.Add(1)
		return val, true
	}
	c.misses.Add(1)
	return false, false
}

func (c *decisionCache) Put(name string, blocked bool) { c.backend.Add(name, blocked) }

func (c *decisionCache) Len() int { return c.backend.Len() }

// Purge clears all entries. Evictions are counted via the eviction callback.
func (c *decisionCache) Purge() { c.backend.Purge() }

func (c *decisionCache) Stats() blocklist.CacheStats {
	return blocklist.CacheStats{
		Capacity:  c.capacity,
		Size:      c.backend.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// mapCache implementation

func (c *mapCache) Get(name string) (bool, bool) {
	c.mu.RLock()
	v, ok := c.m[name]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

func (c *mapCache) Put(name string, blocked bool) {
	c.mu.Lock()
	c.m[name] = blocked
	c.mu.Unlock()
}

func (c *mapCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func (c *mapCache) Purge() {
	c.mu.Lock()
	c.m = make(map[string]bool)
	c.mu.Unlock()
}

func (c *mapCache) Stats() blocklist.CacheStats {
	return blocklist.CacheStats{Size: c.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// disabledCache implementation

func (d *disabledCache) Get(string) (bool, bool) { return false, false }

func (d *disabledCache) Put(string, bool) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() blocklist.CacheStats { return blocklist.CacheStats{Capacity: -1} }

var _ blocklist.DecisionCache = (*decisionCache)(nil)
var _ blocklist.DecisionCache = (*mapCache)(nil)
var _ blocklist.DecisionCache = (*disabledCache)(nil)
