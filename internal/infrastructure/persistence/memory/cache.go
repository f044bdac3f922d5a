// Package memory provides in-memory implementations of domain repositories.
package memory

import (
	"sync"
	"sync/atomic"

	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/reglet-dev/fragment/internal/domain/repositories"
	"github.com/reglet-dev/fragment/internal/domain/values"
)

// Ensure interface compliance
var _ repositories.ResolutionCache = (*Cache)(nil)

const shardCount = 16

// Cache is an in-memory resolution cache. Entries are spread over shards
// by content hash so concurrent units rendering different templates rarely
// contend on the same lock.
type Cache struct {
	shards [shardCount]shard
	hits   atomic.Int64
	misses atomic.Int64
}

type shard struct {
	mu      sync.RWMutex
	entries map[values.CacheKey]*entry
}

type entry struct {
	value entities.ResolvedValue
	// used is set when the entry is read or written during this process.
	used atomic.Bool
}

// Stats reports cache activity since creation.
type Stats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	c := &Cache{}
	for i := range c.shards {
		c.shards[i].entries = make(map[values.CacheKey]*entry)
	}
	return c
}

func (c *Cache) shardFor(key values.CacheKey) *shard {
	return &c.shards[key.Content[0]%shardCount]
}

// Get returns the value stored under key.
func (c *Cache) Get(key values.CacheKey) (entities.ResolvedValue, bool) {
	s := c.shardFor(key)
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return entities.ResolvedValue{}, false
	}
	e.used.Store(true)
	c.hits.Add(1)
	return e.value, true
}

// Put stores value under key. The last write for a key wins.
func (c *Cache) Put(key values.CacheKey, value entities.ResolvedValue) {
	c.store(key, value, true)
}

// Seed stores value without marking it used. Persistent caches seed
// entries read from disk so unused ones can be pruned on flush.
func (c *Cache) Seed(key values.CacheKey, value entities.ResolvedValue) {
	c.store(key, value, false)
}

func (c *Cache) store(key values.CacheKey, value entities.ResolvedValue, used bool) {
	e := &entry{value: value}
	e.used.Store(used)

	s := c.shardFor(key)
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for each entry until fn returns false. With usedOnly set
// entries never read or written since they were seeded are skipped.
func (c *Cache) Range(usedOnly bool, fn func(values.CacheKey, entities.ResolvedValue) bool) {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		for k, e := range s.entries {
			if usedOnly && !e.used.Load() {
				continue
			}
			if !fn(k, e.value) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Clear removes all entries.
func (c *Cache) Clear() {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		s.entries = make(map[values.CacheKey]*entry)
		s.mu.Unlock()
	}
}

// Stats returns a snapshot of cache activity.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries: c.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
