// Package memcache is a byte-budgeted, LRU-evicted, thread-safe cache
// mapping tile keys to tiles. It wraps hashicorp/golang-lru/v2, which is
// itself entry-count bounded, with a byte-cost tracker and low/high
// watermark eviction policy (spec §4.2).
package memcache

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/walkthru-earth/elevationd/internal/tile"
)

// unbounded is the entry-count capacity handed to the underlying LRU; real
// eviction is driven by byte budget, not entry count, so this just needs to
// be large enough to never trigger count-based eviction on its own.
const unbounded = 1 << 24

// Cache is a byte-budgeted LRU store of tile.Key -> *tile.ElevationTile.
// Level-0 tiles are never stored here; callers pin them in a separate map
// (see elevmodel.Model.pinned).
type Cache struct {
	mu       sync.Mutex
	inner    *lru.Cache[tile.Key, *tile.ElevationTile]
	capacity int64
	used     int64 // atomic
	lowMark  int64
	highMark int64
	cost     map[tile.Key]int64
}

// New builds a Cache with the given byte capacity and low/high watermarks
// expressed as fractions of capacity (typical 0.85 / 1.0).
func New(capacityBytes int64, lowFrac, highFrac float64) *Cache {
	c := &Cache{
		capacity: capacityBytes,
		lowMark:  int64(float64(capacityBytes) * lowFrac),
		highMark: int64(float64(capacityBytes) * highFrac),
		cost:     make(map[tile.Key]int64),
	}
	inner, _ := lru.NewWithEvict[tile.Key, *tile.ElevationTile](unbounded, c.onEvict)
	c.inner = inner
	return c
}

// onEvict is invoked by the underlying LRU whenever an entry leaves the
// cache, whether by our own evict() loop or an explicit Remove.
func (c *Cache) onEvict(key tile.Key, _ *tile.ElevationTile) {
	if cost, ok := c.cost[key]; ok {
		atomic.AddInt64(&c.used, -cost)
		delete(c.cost, key)
	}
}

// Get returns the tile for key, if present, and marks it most-recently-used.
func (c *Cache) Get(key tile.Key) (*tile.ElevationTile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Get(key)
}

// Contains reports whether key is present without affecting recency.
func (c *Cache) Contains(key tile.Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Contains(key)
}

// Put inserts or replaces the tile for key with the given byte cost, then
// evicts least-recently-used entries down to the low watermark if the
// insertion pushed usage past the high watermark.
func (c *Cache) Put(key tile.Key, value *tile.ElevationTile, byteCost int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.cost[key]; ok {
		atomic.AddInt64(&c.used, -old)
	}
	c.cost[key] = byteCost
	atomic.AddInt64(&c.used, byteCost)
	c.inner.Add(key, value)

	if atomic.LoadInt64(&c.used) > c.highMark {
		c.evictLocked()
	}
}

// evictLocked evicts least-recently-used entries until used <= lowMark.
// Callers must hold c.mu.
func (c *Cache) evictLocked() {
	for atomic.LoadInt64(&c.used) > c.lowMark {
		_, _, ok := c.inner.RemoveOldest()
		if !ok {
			return
		}
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Purge()
	c.cost = make(map[tile.Key]int64)
	atomic.StoreInt64(&c.used, 0)
}

// Capacity returns the configured byte capacity.
func (c *Cache) Capacity() int64 { return c.capacity }

// Used returns the current byte usage. Always <= Capacity's high watermark
// immediately after any Put returns (spec §8 property 8).
func (c *Cache) Used() int64 { return atomic.LoadInt64(&c.used) }
