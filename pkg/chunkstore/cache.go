package chunkstore

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheStats reports cumulative ChunkCache activity.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// ChunkCache is a bounded, thread-safe cache from chunk path to decoded
// chunk, with least-recently-used eviction at a configured capacity
// measured in chunk count (not bytes). Wraps hashicorp/golang-lru/v2 and
// layers hit/miss/eviction counters on top of it.
type ChunkCache struct {
	mu        sync.RWMutex
	lru       *lru.Cache[string, *Chunk]
	hits      int64
	misses    int64
	evictions int64
}

// NewChunkCache returns a ChunkCache holding at most capacity chunks.
func NewChunkCache(capacity int) (*ChunkCache, error) {
	c := &ChunkCache{}
	cache, err := lru.NewWithEvict[string, *Chunk](capacity, func(key string, value *Chunk) {
		atomic.AddInt64(&c.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	c.lru = cache
	return c, nil
}

// Get returns the cached chunk for path, if present.
func (c *ChunkCache) Get(path string) (*Chunk, bool) {
	c.mu.RLock()
	v, ok := c.lru.Get(path)
	c.mu.RUnlock()
	if ok {
		atomic.AddInt64(&c.hits, 1)
	} else {
		atomic.AddInt64(&c.misses, 1)
	}
	return v, ok
}

// Insert adds or overwrites the cached chunk for path.
func (c *ChunkCache) Insert(path string, chunk *Chunk) {
	c.mu.Lock()
	c.lru.Add(path, chunk)
	c.mu.Unlock()
}

// Contains reports whether path is cached, without affecting LRU order
// or hit/miss statistics.
func (c *ChunkCache) Contains(path string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Contains(path)
}

// Stats returns a snapshot of cumulative cache activity.
func (c *ChunkCache) Stats() CacheStats {
	return CacheStats{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}

// Len returns the number of chunks currently cached.
func (c *ChunkCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}
