// Package memcache implements C4: the in-memory mirror of the persisted
// corpus, split into short-term and long-term lists, with parallel arrays
// for fast ranking loops and a TTL+LRU query-result cache.
package memcache

import (
	"sync"
	"time"

	"github.com/danja/semem-sub009/pkg/types"
)

// Config tunes cache sizing and the query-result cache.
type Config struct {
	// QueryCacheTTL is how long a cached ranked result stays valid.
	// Defaults to 5 minutes.
	QueryCacheTTL time.Duration

	// MaxQueryCacheEntries bounds the LRU. Defaults to 1000.
	MaxQueryCacheEntries int
}

func (c *Config) normalize() {
	if c.QueryCacheTTL == 0 {
		c.QueryCacheTTL = 5 * time.Minute
	}
	if c.MaxQueryCacheEntries == 0 {
		c.MaxQueryCacheEntries = 1000
	}
}

// parallelArrays are index-aligned with shortTerm, existing purely for
// cache locality in ranking loops. They are rematerialized lazily whenever
// shortTerm is mutated.
type parallelArrays struct {
	embeddings   [][]float64
	timestamps   []int64
	accessCounts []int
	concepts     [][]string
	fresh        bool
}

// Cache is the single-writer, many-reader in-memory mirror of the
// persisted corpus.
type Cache struct {
	mu sync.RWMutex

	shortTerm []*types.Interaction
	longTerm  []*types.Interaction
	byID      map[string]*types.Interaction

	arrays parallelArrays

	queryCache *queryCache

	loadedAt time.Time
	dirty    bool
}

// New creates an empty cache with the given configuration.
func New(cfg Config) *Cache {
	cfg.normalize()
	return &Cache{
		byID:       make(map[string]*types.Interaction),
		queryCache: newQueryCache(cfg.MaxQueryCacheEntries, cfg.QueryCacheTTL),
	}
}

// Reset clears all in-memory state, used by loadHistory to start from a
// clean slate before repopulating.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shortTerm = nil
	c.longTerm = nil
	c.byID = make(map[string]*types.Interaction)
	c.invalidateLocked()
	c.loadedAt = time.Now()
	c.dirty = false
}

// AppendShortTerm adds i to the short-term list. Invalidates the parallel
// arrays and query cache.
func (c *Cache) AppendShortTerm(i *types.Interaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shortTerm = append(c.shortTerm, i)
	c.byID[i.ID] = i
	c.invalidateLocked()
	c.dirty = true
}

// AppendLongTerm adds i directly to the long-term list (used by
// loadHistory when reconstructing a previously-classified interaction).
func (c *Cache) AppendLongTerm(i *types.Interaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.longTerm = append(c.longTerm, i)
	c.byID[i.ID] = i
}

// PromoteToLongTerm moves the interaction with the given id from
// shortTerm to longTerm, preserving its position in neither list (it is
// appended to the end of longTerm). Returns false if id is not present in
// shortTerm.
func (c *Cache) PromoteToLongTerm(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for idx, i := range c.shortTerm {
		if i.ID != id {
			continue
		}
		i.MemoryType = types.LongTerm
		c.shortTerm = append(c.shortTerm[:idx], c.shortTerm[idx+1:]...)
		c.longTerm = append(c.longTerm, i)
		c.invalidateLocked()
		c.dirty = true
		return true
	}
	return false
}

// IncrementAccessCount bumps the access count for id by one, if present.
// This is how retrieve's access-count updates are deferred into the
// in-memory state without taking MemoryStore's writer lock: the change is
// only persisted on the next saveMemoryToHistory.
func (c *Cache) IncrementAccessCount(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.byID[id]
	if !ok {
		return
	}
	i.AccessCount++
	c.invalidateLocked()
	c.dirty = true
}

// MarkDirty flags the cache as having unsaved mutations that didn't go
// through AppendShortTerm/AppendLongTerm/PromoteToLongTerm (e.g. decay
// factor updates applied in place by classifyAndDecay).
func (c *Cache) MarkDirty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = true
}

// ByID looks up an interaction (short or long term) by id.
func (c *Cache) ByID(id string) (*types.Interaction, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[id]
	return i, ok
}

// ShortTerm returns a snapshot slice of the short-term list in insertion
// order. Callers must not mutate it.
func (c *Cache) ShortTerm() []*types.Interaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*types.Interaction, len(c.shortTerm))
	copy(out, c.shortTerm)
	return out
}

// LongTerm returns a snapshot slice of the long-term list.
func (c *Cache) LongTerm() []*types.Interaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*types.Interaction, len(c.longTerm))
	copy(out, c.longTerm)
	return out
}

// Len returns the combined short-term + long-term interaction count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.shortTerm) + len(c.longTerm)
}

// Dirty reports whether the cache has unsaved mutations.
func (c *Cache) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

// MarkClean clears the dirty flag after a successful save.
func (c *Cache) MarkClean() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = false
}

// ParallelArrays returns the shortTerm-aligned embeddings/timestamps/
// accessCounts/concepts slices, rematerializing them first if stale. The
// returned slices are snapshots; callers must not mutate them.
func (c *Cache) ParallelArrays() (embeddings [][]float64, timestamps []int64, accessCounts []int, concepts [][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.arrays.fresh {
		c.rematerializeLocked()
	}
	return c.arrays.embeddings, c.arrays.timestamps, c.arrays.accessCounts, c.arrays.concepts
}

func (c *Cache) rematerializeLocked() {
	n := len(c.shortTerm)
	c.arrays.embeddings = make([][]float64, n)
	c.arrays.timestamps = make([]int64, n)
	c.arrays.accessCounts = make([]int, n)
	c.arrays.concepts = make([][]string, n)
	for i, interaction := range c.shortTerm {
		c.arrays.embeddings[i] = interaction.Embedding
		c.arrays.timestamps[i] = interaction.Timestamp
		c.arrays.accessCounts[i] = interaction.AccessCount
		c.arrays.concepts[i] = interaction.Concepts
	}
	c.arrays.fresh = true
}

// invalidateLocked drops the parallel arrays and the query-result cache.
// Caller must hold c.mu for writing.
func (c *Cache) invalidateLocked() {
	c.arrays.fresh = false
	c.queryCache.Purge()
}

// QueryCache exposes the TTL+LRU result cache for RetrievalEngine/
// MemoryStore to consult before recomputing a ranking.
func (c *Cache) QueryCache() *queryCache {
	return c.queryCache
}

// LoadedAt returns when the cache was last (re)populated from persistent
// storage.
func (c *Cache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}
