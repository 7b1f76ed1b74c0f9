// Package searchfilter implements C7: the deterministic, ordered
// post-retrieval pipeline — relevance threshold, type filter,
// deduplication, enrichment, ranking, score normalization, and limiting.
package searchfilter

// DedupStrategy selects how SearchFilters removes duplicate results.
type DedupStrategy string

const (
	DedupURI     DedupStrategy = "uri"
	DedupContent DedupStrategy = "content"
	DedupHybrid  DedupStrategy = "hybrid"
)

// RankingStrategy selects how SearchFilters orders surviving results.
type RankingStrategy string

const (
	RankWeighted RankingStrategy = "weighted"
	RankScore    RankingStrategy = "score"
	RankType     RankingStrategy = "type"
	RankHybrid   RankingStrategy = "hybrid"
)

// NormalizationMethod selects the optional score-normalization pass.
type NormalizationMethod string

const (
	NormalizeNone    NormalizationMethod = ""
	NormalizeMinMax  NormalizationMethod = "minmax"
	NormalizeZScore  NormalizationMethod = "zscore"
	NormalizeSigmoid NormalizationMethod = "sigmoid"
)

// defaultAllowedTypes are the ragno types kept by the type filter unless
// overridden.
var defaultAllowedTypes = []string{"Entity", "Unit", "TextElement", "CommunityElement", "Attribute"}

// defaultTypeWeights back the weighted/hybrid ranking strategies.
var defaultTypeWeights = map[string]float64{
	"Entity":           1.0,
	"Unit":             0.9,
	"TextElement":      0.85,
	"CommunityElement": 0.8,
	"Attribute":        0.7,
}

// unknownTypeWeight is used for a result whose Type isn't present in
// TypeWeights. Not specified by spec.md; chosen as a neutral middle value
// so an unrecognized type neither dominates nor is discarded from ranking.
const unknownTypeWeight = 0.5

// Config tunes the pipeline. Zero-value fields fall back to spec.md §4.7
// defaults via Normalize. Threshold is a pointer because its zero value,
// 0.0, is a legitimate caller-supplied relevance floor ("keep everything
// RetrievalEngine already passed") and must be distinguished from "the
// caller never set it" (nil), which alone should fall back to 0.7.
type Config struct {
	Threshold                  *float64
	AllowedTypes               []string
	DedupStrategy              DedupStrategy
	ContentSimilarityThreshold float64
	RankingStrategy            RankingStrategy
	TypeWeights                map[string]float64
	Normalization              NormalizationMethod
	MaxResults                 int
}

// Normalize fills in defaults for any unset field.
func (c *Config) Normalize() {
	if c.Threshold == nil {
		def := 0.7
		c.Threshold = &def
	}
	if len(c.AllowedTypes) == 0 {
		c.AllowedTypes = defaultAllowedTypes
	}
	if c.DedupStrategy == "" {
		c.DedupStrategy = DedupURI
	}
	if c.ContentSimilarityThreshold == 0 {
		c.ContentSimilarityThreshold = 0.8
	}
	if c.RankingStrategy == "" {
		c.RankingStrategy = RankWeighted
	}
	if c.TypeWeights == nil {
		c.TypeWeights = defaultTypeWeights
	}
	if c.MaxResults == 0 {
		c.MaxResults = 50
	}
}

// Statistics counts how many results survived each pipeline stage.
type Statistics struct {
	TotalProcessed int
	Filtered       int
	Deduplicated   int
	Enriched       int
	Ranked         int
}
