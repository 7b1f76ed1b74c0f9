package vectorindex

import (
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"
)

// EncodeEmbedding renders an embedding as the "[f1,f2,...,fN]" text form
// required by the persistence vocabulary (§6.1), reusing pgvector-go's
// wire codec rather than hand-rolling JSON-array formatting.
func EncodeEmbedding(vec []float64) string {
	f32 := make([]float32, len(vec))
	for i, v := range vec {
		f32[i] = float32(v)
	}
	return pgvector.NewVector(f32).String()
}

// DecodeEmbedding parses the "[f1,f2,...,fN]" text form back into a
// []float64.
func DecodeEmbedding(text string) ([]float64, error) {
	v, err := pgvector.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	f32 := v.Slice()
	out := make([]float64, len(f32))
	for i, f := range f32 {
		out[i] = float64(f)
	}
	return out, nil
}
