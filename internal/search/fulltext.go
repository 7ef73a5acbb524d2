package search

import (
	"context"
	"sort"
	"strings"

	"github.com/Bikash9609/ca-ai/internal/store"
)

// FullTextSearch runs lexical queries against the store's lexical index.
type FullTextSearch struct {
	store store.Store
}

// NewFullTextSearch creates a lexical engine over s.
func NewFullTextSearch(s store.Store) *FullTextSearch {
	return &FullTextSearch{store: s}
}

// Search returns lexical matches sorted by ascending rank (best first).
// The store sanitizes the query, so identifiers with punctuation are safe.
func (f *FullTextSearch) Search(ctx context.Context, query string, limit int, filters store.Filters) ([]*Result, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []*Result{}, nil
	}
	hits, err := f.store.LexicalSearch(ctx, query, limit, filters)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, len(hits))
	for i, h := range hits {
		results[i] = &Result{Chunk: h.Chunk, LexicalRank: h.Rank, HasLexical: true}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].LexicalRank != results[j].LexicalRank {
			return results[i].LexicalRank < results[j].LexicalRank
		}
		return results[i].ChunkID() < results[j].ChunkID()
	})
	return results, nil
}
