// Package llm declares the two collaborator contracts MemoryStore depends
// on without ever constructing or knowing about a concrete provider. Chat/
// completion/embedding connector implementations live outside this module
// entirely; the core only ever sees these interfaces (spec §6.2).
package llm

import "context"

// EmbeddingProducer turns text into a fixed-length embedding. The core
// never interprets model semantics: it only requires that the returned
// vector's length equals the store's configured dimension and that every
// component is finite.
type EmbeddingProducer interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ConceptExtractor pulls a deduplicated, trimmed list of concept strings
// out of text. The returned slice may be empty but must never contain
// blank or duplicate entries.
type ConceptExtractor interface {
	Extract(ctx context.Context, text string) ([]string, error)
}
