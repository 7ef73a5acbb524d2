package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
	"github.com/Bikash9609/ca-ai/internal/store"
)

// HybridSearch runs semantic and lexical search concurrently and fuses the
// results. One failing engine degrades to the other; both failing is an
// ErrSearchFailed error. A dimension mismatch never degrades.
type HybridSearch struct {
	semantic SemanticEngine
	lexical  LexicalEngine
	fuser    Fuser
	weights  Weights
	logger   *slog.Logger
}

// HybridOption configures a HybridSearch.
type HybridOption func(*HybridSearch)

// WithWeights sets the semantic/keyword weights. They are normalized to
// sum to 1.
func WithWeights(w Weights) HybridOption {
	return func(h *HybridSearch) {
		h.weights = w.Normalize()
	}
}

// WithFuser sets the fusion strategy (default: min-max).
func WithFuser(f Fuser) HybridOption {
	return func(h *HybridSearch) {
		if f != nil {
			h.fuser = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) HybridOption {
	return func(h *HybridSearch) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHybridSearch creates a hybrid engine over the two engines.
func NewHybridSearch(semantic SemanticEngine, lexical LexicalEngine, opts ...HybridOption) *HybridSearch {
	h := &HybridSearch{
		semantic: semantic,
		lexical:  lexical,
		fuser:    MinMaxFusion{},
		weights:  DefaultWeights(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewHybridSearchForStore wires the semantic and full-text engines of s.
func NewHybridSearchForStore(s store.Store, opts ...HybridOption) *HybridSearch {
	h := NewHybridSearch(nil, NewFullTextSearch(s), opts...)
	h.semantic = NewSemanticSearch(s, h.logger)
	return h
}

// Weights returns the normalized weights in use.
func (h *HybridSearch) Weights() Weights { return h.weights }

// Search fetches limit*2 results from each engine, fuses them and returns
// the top limit.
func (h *HybridSearch) Search(ctx context.Context, query string, queryEmbedding []float32, limit int, threshold float64, f store.Filters) ([]*Result, error) {
	if limit <= 0 {
		return []*Result{}, nil
	}
	start := time.Now()
	fetch := limit * 2

	var (
		semResults, lexResults []*Result
		semErr, lexErr         error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		semResults, semErr = h.semantic.Search(gctx, queryEmbedding, fetch, threshold, f)
		return nil // Don't fail the group
	})
	g.Go(func() error {
		lexResults, lexErr = h.lexical.Search(gctx, query, fetch, f)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, err := range []error{semErr, lexErr} {
		if errors.Is(err, taxerrors.ErrDimensionMismatch) {
			return nil, err
		}
	}
	if semErr != nil && lexErr != nil {
		return nil, taxerrors.New(taxerrors.ErrCodeSearchFailed, "both search engines failed", errors.Join(semErr, lexErr))
	}
	if semErr != nil {
		h.logger.Warn("hybrid_engine_failed",
			slog.String("engine", "semantic"),
			slog.String("error", semErr.Error()))
		semResults = nil
	}
	if lexErr != nil {
		h.logger.Warn("hybrid_engine_failed",
			slog.String("engine", "lexical"),
			slog.String("error", lexErr.Error()))
		lexResults = nil
	}

	fused := h.fuser.Fuse(semResults, lexResults, h.weights)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	h.logger.Debug("hybrid_search",
		slog.Int("semantic", len(semResults)),
		slog.Int("lexical", len(lexResults)),
		slog.Int("results", len(fused)),
		slog.Duration("latency", time.Since(start)))
	return fused, nil
}
