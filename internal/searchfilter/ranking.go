package searchfilter

import (
	"sort"

	"github.com/danja/semem-sub009/pkg/types"
)

func typeWeight(weights map[string]float64, resultType string) float64 {
	if w, ok := weights[resultType]; ok {
		return w
	}
	return unknownTypeWeight
}

func rank(results []types.SearchResult, strategy RankingStrategy, weights map[string]float64) []types.SearchResult {
	out := make([]types.SearchResult, len(results))
	copy(out, results)

	switch strategy {
	case RankScore:
		sort.SliceStable(out, func(i, j int) bool {
			return ExtractScore(out[i]) > ExtractScore(out[j])
		})
	case RankType:
		sort.SliceStable(out, func(i, j int) bool {
			wi, wj := typeWeight(weights, out[i].Type), typeWeight(weights, out[j].Type)
			if wi != wj {
				return wi > wj
			}
			return ExtractScore(out[i]) > ExtractScore(out[j])
		})
	case RankHybrid:
		sort.SliceStable(out, func(i, j int) bool {
			return hybridScore(out[i], weights) > hybridScore(out[j], weights)
		})
	default: // RankWeighted
		sort.SliceStable(out, func(i, j int) bool {
			return weightedScore(out[i], weights) > weightedScore(out[j], weights)
		})
	}
	return out
}

func weightedScore(r types.SearchResult, weights map[string]float64) float64 {
	return ExtractScore(r) * typeWeight(weights, r.Type)
}

func hybridScore(r types.SearchResult, weights map[string]float64) float64 {
	return 0.7*ExtractScore(r) + 0.3*typeWeight(weights, r.Type)
}
