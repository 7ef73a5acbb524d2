// Package search provides semantic, full-text and hybrid search over stored
// chunks. Hybrid results combine min-max normalized similarity and lexical
// rank (or Reciprocal Rank Fusion when configured).
package search

import (
	"context"

	"github.com/Bikash9609/ca-ai/internal/store"
)

// Result is one search hit.
type Result struct {
	Chunk *store.Chunk

	// Similarity is the raw cosine similarity (semantic hits only).
	Similarity float64
	// LexicalRank is the raw backend rank; lower is better (lexical hits only).
	LexicalRank float64

	// SemanticScore and KeywordScore are the normalized per-engine scores
	// in [0, 1] set by fusion.
	SemanticScore float64
	KeywordScore  float64
	CombinedScore float64

	HasSemantic bool
	HasLexical  bool
}

// ChunkID returns the id of the result's chunk.
func (r *Result) ChunkID() string { return r.Chunk.ID }

// SemanticEngine ranks chunks by embedding similarity.
type SemanticEngine interface {
	Search(ctx context.Context, queryEmbedding []float32, limit int, threshold float64, f store.Filters) ([]*Result, error)
}

// LexicalEngine ranks chunks by term match.
type LexicalEngine interface {
	Search(ctx context.Context, query string, limit int, f store.Filters) ([]*Result, error)
}

// Weights configures the relative importance of semantic vs keyword scores.
type Weights struct {
	Semantic float64
	Keyword  float64
}

// DefaultWeights returns the default 0.7/0.3 split.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.7, Keyword: 0.3}
}

// Normalize scales the weights to sum to 1. Non-positive sums fall back
// to the defaults.
func (w Weights) Normalize() Weights {
	if w.Semantic < 0 || w.Keyword < 0 {
		return DefaultWeights()
	}
	sum := w.Semantic + w.Keyword
	if sum <= 0 {
		return DefaultWeights()
	}
	return Weights{Semantic: w.Semantic / sum, Keyword: w.Keyword / sum}
}
