package search

import (
	"context"
	"log/slog"
	"math"
	"sort"

	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
	"github.com/Bikash9609/ca-ai/internal/store"
)

// CosineSimilarity returns dot(a,b)/(|a||b|) computed in float64. A zero
// norm on either side yields exactly 0. Vectors of different length are
// a dimension mismatch.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, taxerrors.DimensionMismatch(len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// SemanticSearch scores every eligible stored embedding against the query.
type SemanticSearch struct {
	store  store.Store
	logger *slog.Logger
}

// NewSemanticSearch creates a semantic engine over s.
func NewSemanticSearch(s store.Store, logger *slog.Logger) *SemanticSearch {
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticSearch{store: s, logger: logger}
}

type scoredID struct {
	id  string
	sim float64
}

// Search returns chunks with similarity >= threshold, best first. Ties are
// broken by chunk id. An empty query embedding returns no results. Stores
// with a VectorPrefilter narrow the scan in SQL; the final similarity is
// always the exact cosine computed here.
func (s *SemanticSearch) Search(ctx context.Context, queryEmbedding []float32, limit int, threshold float64, f store.Filters) ([]*Result, error) {
	if len(queryEmbedding) == 0 || limit <= 0 {
		return []*Result{}, nil
	}

	var scored []scoredID
	score := func(c store.Candidate) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		sim, err := CosineSimilarity(queryEmbedding, c.Embedding)
		if err != nil {
			return err
		}
		if sim >= threshold {
			scored = append(scored, scoredID{id: c.ChunkID, sim: sim})
		}
		return nil
	}
	var err error
	if pf, ok := s.store.(store.VectorPrefilter); ok {
		err = pf.SemanticCandidatesNear(ctx, queryEmbedding, threshold, f, score)
	} else {
		err = s.store.SemanticCandidates(ctx, f, score)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].sim != scored[j].sim {
			return scored[i].sim > scored[j].sim
		}
		return scored[i].id < scored[j].id
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	if len(scored) == 0 {
		return []*Result{}, nil
	}

	ids := make([]string, len(scored))
	for i, sc := range scored {
		ids[i] = sc.id
	}
	chunks, err := s.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*store.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	results := make([]*Result, 0, len(scored))
	for _, sc := range scored {
		c, ok := byID[sc.id]
		if !ok {
			// Deleted between the scan and the fetch.
			continue
		}
		results = append(results, &Result{Chunk: c, Similarity: sc.sim, HasSemantic: true})
	}

	s.logger.Debug("semantic_search",
		slog.Int("results", len(results)),
		slog.Float64("threshold", threshold))
	return results, nil
}
