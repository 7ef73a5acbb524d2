// Package embed defines the embedding boundary. Real embedding models are
// external collaborators; this package holds the interface the indexer and
// retriever depend on, a deterministic hash embedder, and an LRU cache.
package embed

import (
	"context"
	"math"
)

const (
	// DefaultBatchSize is the default number of texts per EmbedBatch call.
	DefaultBatchSize = 32

	// DefaultDimensions is the dimension of the static embedder.
	DefaultDimensions = 256
)

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, positionally.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// normalizeVector scales v to unit length. Zero vectors are returned as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}
