package searchfilter

import (
	"strings"

	"github.com/danja/semem-sub009/pkg/types"
)

func dedup(results []types.SearchResult, strategy DedupStrategy, contentThreshold float64) []types.SearchResult {
	switch strategy {
	case DedupContent:
		return dedupContent(results, contentThreshold)
	case DedupHybrid:
		return dedupContent(dedupURI(results), contentThreshold)
	default:
		return dedupURI(results)
	}
}

// dedupURI keeps the first occurrence per non-empty URI. Results with an
// empty URI have nothing to dedup against and are always kept.
func dedupURI(results []types.SearchResult) []types.SearchResult {
	seen := make(map[string]bool)
	out := make([]types.SearchResult, 0, len(results))
	for _, r := range results {
		if r.URI == "" {
			out = append(out, r)
			continue
		}
		if seen[r.URI] {
			continue
		}
		seen[r.URI] = true
		out = append(out, r)
	}
	return out
}

// dedupContent keeps the first occurrence among results whose lowercased,
// whitespace-split content token sets are Jaccard-similar at or above
// threshold.
func dedupContent(results []types.SearchResult, threshold float64) []types.SearchResult {
	var kept []types.SearchResult
	var keptTokens []map[string]bool

	for _, r := range results {
		tokens := tokenize(r.Content())
		duplicate := false
		for _, kt := range keptTokens {
			if tokenJaccard(tokens, kt) >= threshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, r)
		keptTokens = append(keptTokens, tokens)
	}
	return kept
}

func tokenize(content string) map[string]bool {
	fields := strings.Fields(strings.ToLower(content))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func tokenJaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	intersection := 0
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
