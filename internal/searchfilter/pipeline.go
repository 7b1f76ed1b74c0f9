package searchfilter

import (
	"context"
	"log"

	"github.com/danja/semem-sub009/pkg/types"
)

// Enricher attaches optional relationships/sourceContext/provenance to a
// result. A failure to enrich must never drop the result — Pipeline.Run
// logs it and leaves the result otherwise unchanged.
type Enricher interface {
	Enrich(ctx context.Context, result *types.SearchResult) error
}

// Pipeline runs the ordered post-retrieval steps of spec.md §4.7.
type Pipeline struct {
	Config   Config
	Enricher Enricher // optional
}

// New builds a Pipeline with defaults applied.
func New(cfg Config) *Pipeline {
	cfg.Normalize()
	return &Pipeline{Config: cfg}
}

// Run executes the full pipeline in order: relevance filter, type filter,
// dedup, enrichment, ranking, normalization, limit.
func (p *Pipeline) Run(ctx context.Context, results []types.SearchResult) ([]types.SearchResult, Statistics) {
	stats := Statistics{TotalProcessed: len(results)}

	filtered := make([]types.SearchResult, 0, len(results))
	for _, r := range results {
		if ExtractScore(r) < *p.Config.Threshold {
			continue
		}
		filtered = append(filtered, r)
	}
	stats.Filtered = len(filtered)

	typed := make([]types.SearchResult, 0, len(filtered))
	allowed := toSet(p.Config.AllowedTypes)
	for _, r := range filtered {
		if r.Type == "" || allowed[r.Type] {
			typed = append(typed, r)
		}
	}

	deduped := dedup(typed, p.Config.DedupStrategy, p.Config.ContentSimilarityThreshold)
	stats.Deduplicated = len(deduped)

	for i := range deduped {
		if p.Enricher == nil {
			continue
		}
		if err := p.Enricher.Enrich(ctx, &deduped[i]); err != nil {
			log.Printf("searchfilter: enrichment failed for result %s: %v", deduped[i].URI, err)
			continue
		}
		stats.Enriched++
	}

	ranked := rank(deduped, p.Config.RankingStrategy, p.Config.TypeWeights)
	stats.Ranked = len(ranked)

	normalize(ranked, p.Config.Normalization)

	if len(ranked) > p.Config.MaxResults {
		ranked = ranked[:p.Config.MaxResults]
	}

	return ranked, stats
}

// ExtractScore reads the first meaningful score off a result. SearchResult
// always carries FinalScore once produced by RetrievalEngine; this stays a
// named step (rather than a bare field read) to mirror spec.md §4.7's
// explicit "first-available of {score, relevance, similarity, weight}"
// extraction contract.
func ExtractScore(r types.SearchResult) float64 {
	if r.FinalScore != 0 {
		return r.FinalScore
	}
	if r.Similarity != 0 {
		return r.Similarity
	}
	return 0
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}
