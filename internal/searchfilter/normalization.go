package searchfilter

import (
	"math"

	"github.com/danja/semem-sub009/pkg/types"
)

// normalize writes NormalizedScore (and OriginalScore) in place per
// method. A no-op when method is NormalizeNone.
func normalize(results []types.SearchResult, method NormalizationMethod) {
	if method == NormalizeNone || len(results) == 0 {
		return
	}

	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = ExtractScore(r)
		results[i].OriginalScore = scores[i]
	}

	switch method {
	case NormalizeMinMax:
		min, max := scores[0], scores[0]
		for _, s := range scores {
			if s < min {
				min = s
			}
			if s > max {
				max = s
			}
		}
		for i, s := range scores {
			if max == min {
				results[i].NormalizedScore = 1.0
				continue
			}
			results[i].NormalizedScore = (s - min) / (max - min)
		}

	case NormalizeZScore:
		mean := 0.0
		for _, s := range scores {
			mean += s
		}
		mean /= float64(len(scores))

		variance := 0.0
		for _, s := range scores {
			variance += (s - mean) * (s - mean)
		}
		variance /= float64(len(scores))
		stddev := math.Sqrt(variance)

		for i, s := range scores {
			if stddev == 0 {
				results[i].NormalizedScore = 0.0
				continue
			}
			results[i].NormalizedScore = (s - mean) / stddev
		}

	case NormalizeSigmoid:
		for i, s := range scores {
			results[i].NormalizedScore = 1.0 / (1.0 + math.Exp(-s))
		}
	}
}
