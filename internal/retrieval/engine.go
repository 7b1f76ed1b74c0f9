// Package retrieval implements C6: the ranking algorithm that combines
// cosine similarity, concept overlap, spreading-activation boost, access
// frequency, and temporal decay into a single ranked candidate list.
//
// Engine is a stateless pure computation over data handed to it by
// MemoryStore; it owns no sub-components of its own.
package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/danja/semem-sub009/internal/conceptgraph"
	"github.com/danja/semem-sub009/internal/vectorindex"
	"github.com/danja/semem-sub009/pkg/types"
)

// spreadDepth and spreadDecay match spec.md §4.6 step 2.
const (
	spreadDepth = 2
	spreadDecay = 0.5
)

// Params bundles every input RetrieveCandidates needs. Candidates must be
// indexed by the same memory-index scheme as Index's slot->memoryIndex
// mapping (see vectorindex.Index.MemoryIndex).
type Params struct {
	QueryEmbedding []float64
	QueryConcepts  []string
	Candidates     []*types.Interaction
	Index          *vectorindex.Index
	Graph          *conceptgraph.Graph
	Threshold      float64
	ExcludeIDs     map[string]bool
	Limit          int

	// Weights overrides DefaultWeights when non-nil. A pointer, not a bare
	// Weights, because the zero value of Weights (every coefficient 0) is
	// itself a meaningful override and must be distinguishable from "caller
	// didn't set this".
	Weights *Weights
}

// Engine computes ranked candidate lists. It holds no state.
type Engine struct{}

// New returns a stateless retrieval engine.
func New() *Engine {
	return &Engine{}
}

// RetrieveCandidates produces the ranked, threshold-filtered candidate
// list described in spec.md §4.6. It is cancellable at its two I/O-free
// but potentially large loops (vector search and scoring) via ctx.
func (e *Engine) RetrieveCandidates(ctx context.Context, p Params) ([]types.SearchResult, error) {
	weights := DefaultWeights
	if p.Weights != nil {
		weights = *p.Weights
	}

	k := p.Limit * 3
	if k < 30 {
		k = 30
	}

	var hits []vectorindex.Hit
	if p.Index != nil && len(p.QueryEmbedding) > 0 {
		h, err := p.Index.Search(p.QueryEmbedding, k)
		if err != nil {
			return nil, err
		}
		hits = h
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var activation map[string]float64
	if len(p.QueryConcepts) > 0 && p.Graph != nil {
		activation = p.Graph.Spread(p.QueryConcepts, spreadDepth, spreadDecay)
	}

	maxAccessCount := 0
	type candidate struct {
		interaction *types.Interaction
		cosine      float64
	}
	var candidates []candidate
	for _, hit := range hits {
		memIdx, ok := p.Index.MemoryIndex(hit.Slot)
		if !ok || memIdx < 0 || memIdx >= len(p.Candidates) {
			continue
		}
		interaction := p.Candidates[memIdx]
		if interaction == nil || p.ExcludeIDs[interaction.ID] {
			continue
		}
		candidates = append(candidates, candidate{interaction, hit.Cosine})
		if interaction.AccessCount > maxAccessCount {
			maxAccessCount = interaction.AccessCount
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryConceptSet := toSet(p.QueryConcepts)

	results := make([]types.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		sim := c.cosine
		if sim < 0 {
			sim = 0
		}

		overlap := jaccard(queryConceptSet, c.interaction.Concepts)

		boost := 0.0
		if activation != nil && len(c.interaction.Concepts) > 0 {
			sum := 0.0
			for _, concept := range c.interaction.Concepts {
				sum += activation[concept]
			}
			boost = sum / float64(len(c.interaction.Concepts))
		}

		freqBoost := 0.0
		if maxAccessCount > 0 {
			freqBoost = math.Log(1+float64(c.interaction.AccessCount)) / math.Log(1+float64(maxAccessCount))
		}

		finalScore := c.interaction.DecayFactor * (weights.Similarity*sim + weights.Overlap*overlap + weights.Activation*boost + weights.Frequency*freqBoost)
		if finalScore < p.Threshold {
			continue
		}

		results = append(results, types.SearchResult{
			InteractionRef:  c.interaction,
			Similarity:      sim,
			ConceptOverlap:  overlap,
			ActivationBoost: boost,
			FinalScore:      finalScore,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.InteractionRef.Timestamp != b.InteractionRef.Timestamp {
			return a.InteractionRef.Timestamp > b.InteractionRef.Timestamp
		}
		return a.InteractionRef.ID < b.InteractionRef.ID
	})

	return results, nil
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}

// jaccard computes |query ∩ concepts| / max(1, |query ∪ concepts|).
func jaccard(querySet map[string]bool, concepts []string) float64 {
	if len(querySet) == 0 && len(concepts) == 0 {
		return 0
	}

	union := make(map[string]bool, len(querySet)+len(concepts))
	for c := range querySet {
		union[c] = true
	}

	intersection := 0
	for _, c := range concepts {
		if querySet[c] {
			intersection++
		}
		union[c] = true
	}

	denom := len(union)
	if denom < 1 {
		denom = 1
	}
	return float64(intersection) / float64(denom)
}
