// Package vectorindex implements C2: a cosine-similarity k-NN index over
// fixed-dimension embeddings. It is brute-force for small corpora and
// switches to an IVF-style bucketed index beyond bruteForceLimit vectors,
// per spec.md §4.2.
package vectorindex

import (
	"math"
	"sort"
	"sync"

	"github.com/danja/semem-sub009/pkg/types"
)

// bruteForceLimit is the corpus size above which Index switches from a
// linear scan to the IVF bucketing layer.
const bruteForceLimit = 10_000

// Stats reports the outcome of a Rebuild call.
type Stats struct {
	Added   int
	Skipped int
}

// Hit is one ranked result from Search.
type Hit struct {
	Slot   int
	Cosine float64
}

// Index maintains slot-indexed embeddings and answers k-NN queries. Slot
// ids are stable, append-only, and non-negative. Search is a read-only
// snapshot: a concurrent Add is not required to be visible to an
// in-flight search, but must be visible to the next one.
type Index struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float64
	memoryIdx []int // slot -> caller-supplied memory index, from Rebuild
	ivf       *ivfIndex
}

// New creates an empty index for the given embedding dimension.
func New(dimension int) *Index {
	return &Index{dimension: dimension}
}

// Dimension returns the configured embedding length.
func (idx *Index) Dimension() int {
	return idx.dimension
}

// Size returns the number of vectors currently indexed.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// Add validates and appends vec, returning its stable slot id.
func (idx *Index) Add(vec []float64) (int, error) {
	if err := Validate(vec, idx.dimension); err != nil {
		return -1, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	cp := make([]float64, len(vec))
	copy(cp, vec)
	slot := len(idx.vectors)
	idx.vectors = append(idx.vectors, cp)
	idx.memoryIdx = append(idx.memoryIdx, slot)

	idx.rebuildIVFLocked()
	return slot, nil
}

// Rebuild clears all state and re-adds every vector in vecs, skipping
// invalid ones. memoryIndices[i], when non-nil, supplies the caller's
// memory-index mapping for vecs[i]; if nil, the slot id is used as-is.
func (idx *Index) Rebuild(vecs [][]float64, memoryIndices []int) Stats {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.vectors = nil
	idx.memoryIdx = nil
	idx.ivf = nil

	stats := Stats{}
	for i, v := range vecs {
		if err := Validate(v, idx.dimension); err != nil {
			stats.Skipped++
			continue
		}
		cp := make([]float64, len(v))
		copy(cp, v)

		memIdx := len(idx.vectors)
		if memoryIndices != nil {
			memIdx = memoryIndices[i]
		}

		idx.vectors = append(idx.vectors, cp)
		idx.memoryIdx = append(idx.memoryIdx, memIdx)
		stats.Added++
	}

	idx.rebuildIVFLocked()
	return stats
}

// MemoryIndex returns the caller-supplied memory index for slot, as set by
// the most recent Rebuild (or the slot id itself if populated via Add).
func (idx *Index) MemoryIndex(slot int) (int, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if slot < 0 || slot >= len(idx.memoryIdx) {
		return 0, false
	}
	return idx.memoryIdx[slot], true
}

// Search returns up to k results ordered by descending cosine similarity.
// Ties are broken by ascending slot id, per spec.md §4.2.
func (idx *Index) Search(query []float64, k int) ([]Hit, error) {
	if len(query) != idx.dimension {
		return nil, types.NewError(types.KindDimensionMismatch, "query embedding length mismatch", nil)
	}
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	vectors := idx.vectors
	ivf := idx.ivf
	idx.mu.RUnlock()

	var candidates []int
	if ivf != nil {
		candidates = ivf.probe(query)
	} else {
		candidates = make([]int, len(vectors))
		for i := range vectors {
			candidates[i] = i
		}
	}

	hits := make([]Hit, 0, len(candidates))
	for _, slot := range candidates {
		hits = append(hits, Hit{Slot: slot, Cosine: Cosine(query, vectors[slot])})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Cosine != hits[j].Cosine {
			return hits[i].Cosine > hits[j].Cosine
		}
		return hits[i].Slot < hits[j].Slot
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// rebuildIVFLocked must be called with idx.mu held for writing.
func (idx *Index) rebuildIVFLocked() {
	if len(idx.vectors) <= bruteForceLimit {
		idx.ivf = nil
		return
	}
	// sqrt(n) centroids is a conventional starting point for IVF bucket
	// counts; small enough to keep probing cheap, large enough to cut the
	// scan down meaningfully.
	numCentroids := int(math.Sqrt(float64(len(idx.vectors))))
	idx.ivf = buildIVF(idx.vectors, numCentroids)
}

// Validate checks vec against dimension and finiteness, the same check
// Add/Rebuild apply internally. Exported so collaborators (memstore) can
// reject a bad embedding before mutating any in-memory state.
func Validate(vec []float64, dimension int) error {
	if len(vec) != dimension {
		return types.NewError(types.KindDimensionMismatch, "embedding length does not match configured dimension", nil)
	}
	for _, f := range vec {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return types.NewError(types.KindNonFiniteEmbedding, "embedding contains a non-finite component", nil)
		}
	}
	return nil
}

// Cosine computes cosine similarity, defined as 0 when either vector has
// zero norm.
func Cosine(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
