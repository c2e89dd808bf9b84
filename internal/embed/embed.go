// Package embed turns text into fixed-length vectors for similarity search.
package embed

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
)

// Embedder produces vectors for search queries and for stored documents.
// Implementations must return vectors of the same length for both.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}

// Cosine returns the cosine similarity of a and b. Mismatched lengths and zero
// vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func single(vectors [][]float32, provider string) ([]float32, error) {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, eris.Errorf("embed: %s returned no embedding", provider)
	}
	return vectors[0], nil
}
