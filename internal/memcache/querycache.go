package memcache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/danja/semem-sub009/pkg/types"
)

// queryCache maps a query fingerprint to a previously-ranked result list,
// with TTL expiry and LRU eviction as required by spec.md §4.4.
type queryCache struct {
	inner *lru.LRU[string, []types.SearchResult]
}

func newQueryCache(maxEntries int, ttl time.Duration) *queryCache {
	return &queryCache{inner: lru.NewLRU[string, []types.SearchResult](maxEntries, nil, ttl)}
}

// Get returns the cached results for fingerprint, if present and not
// expired.
func (q *queryCache) Get(fingerprint string) ([]types.SearchResult, bool) {
	return q.inner.Get(fingerprint)
}

// Put stores results under fingerprint.
func (q *queryCache) Put(fingerprint string, results []types.SearchResult) {
	q.inner.Add(fingerprint, results)
}

// Purge evicts every entry. Called whenever shortTerm is mutated, since a
// stale ranking is worse than a recomputed one.
func (q *queryCache) Purge() {
	q.inner.Purge()
}

// Len reports the current number of cached entries.
func (q *queryCache) Len() int {
	return q.inner.Len()
}
