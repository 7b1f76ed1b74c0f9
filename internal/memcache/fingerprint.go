package memcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint derives a stable cache key for a retrieve() call from its
// query embedding, query concepts, threshold and excludeLastN. Concepts
// are sorted before hashing so that equivalent queries in a different
// concept order collide, matching the cache's intent as a pure function
// of query semantics.
func Fingerprint(queryEmbedding []float64, queryConcepts []string, threshold float64, excludeLastN int) string {
	sorted := append([]string(nil), queryConcepts...)
	sort.Strings(sorted)

	h := sha256.New()
	for _, f := range queryEmbedding {
		fmt.Fprintf(h, "%x|", f)
	}
	h.Write([]byte(strings.Join(sorted, ",")))
	fmt.Fprintf(h, "|%f|%d", threshold, excludeLastN)

	return hex.EncodeToString(h.Sum(nil))
}
