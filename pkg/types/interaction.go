package types

import "time"

// Interaction is the unit of storage: a prompt/response pair together with
// its derived embedding and extracted concepts.
type Interaction struct {
	// ID is an opaque stable identifier (UUID v4 or equivalent).
	ID string `json:"id"`

	// Prompt is the free-form user/system input.
	Prompt string `json:"prompt"`

	// Output is the free-form LLM or system response.
	Output string `json:"output"`

	// Embedding is a fixed-length vector; its length must equal the owning
	// store's configured dimension and every component must be finite.
	Embedding []float64 `json:"embedding"`

	// Concepts is a de-duplicated, ordered list of short strings extracted
	// from Prompt+Output.
	Concepts []string `json:"concepts"`

	// Timestamp is the creation time in milliseconds since epoch.
	Timestamp int64 `json:"timestamp"`

	// AccessCount is incremented on each retrieval that returns this
	// interaction.
	AccessCount int `json:"accessCount"`

	// DecayFactor is a multiplicative weight applied when ranking, in (0, 1].
	DecayFactor float64 `json:"decayFactor"`

	// MemoryType is the current classification bucket.
	MemoryType MemoryType `json:"memoryType"`

	// ContentHash is a SHA-256 hex digest of Prompt+Output, used only for
	// diagnostics and test equality checks. It is never authoritative
	// identity; ID is.
	ContentHash string `json:"contentHash,omitempty"`
}

// TimestampTime returns Timestamp as a time.Time in UTC.
func (i *Interaction) TimestampTime() time.Time {
	return time.UnixMilli(i.Timestamp).UTC()
}

// DedupeConcepts returns concepts with duplicates removed, preserving the
// order of first occurrence.
func DedupeConcepts(concepts []string) []string {
	seen := make(map[string]bool, len(concepts))
	out := make([]string, 0, len(concepts))
	for _, c := range concepts {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
