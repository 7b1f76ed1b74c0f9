package types

// SearchResult is a ranked retrieval record produced by the retrieval engine
// and consumed by the search-filter pipeline.
type SearchResult struct {
	// InteractionRef is the matched interaction.
	InteractionRef *Interaction

	// Similarity is the cosine similarity against the query embedding,
	// typically clipped to [0,1].
	Similarity float64

	// ConceptOverlap is a Jaccard-like score in [0,1].
	ConceptOverlap float64

	// ActivationBoost is the spreading-activation contribution in [0,1].
	ActivationBoost float64

	// FinalScore is the combined weighted score.
	FinalScore float64

	// URI optionally identifies the underlying RDF node; used by
	// SearchFilters for dedup/enrichment. Empty when not applicable.
	URI string

	// Type classifies the result for SearchFilters' type filter/ranking
	// (e.g. Entity, Unit). Empty means "untyped".
	Type string

	// Relationships, SourceContext and Provenance are optional enrichment
	// fields attached by SearchFilters' enrichment step.
	Relationships []string
	SourceContext map[string]interface{}
	Provenance    string

	// NormalizedScore and OriginalScore are populated by SearchFilters'
	// normalization step. OriginalScore mirrors FinalScore at the point
	// normalization ran.
	OriginalScore   float64
	NormalizedScore float64
}

// Content returns the text used for content-based deduplication: the
// referenced interaction's prompt plus output.
func (r *SearchResult) Content() string {
	if r.InteractionRef == nil {
		return ""
	}
	return r.InteractionRef.Prompt + " " + r.InteractionRef.Output
}
