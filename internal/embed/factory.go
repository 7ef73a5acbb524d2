package embed

import (
	"fmt"
	"strings"
)

// ProviderStatic is the built-in hash embedder.
const ProviderStatic = "static"

// NewEmbedder builds the embedder named by provider, wrapped in a query
// cache when cacheSize is positive. Model-backed providers live outside
// this module and are injected by callers that have them.
func NewEmbedder(provider string, dims, cacheSize int) (Embedder, error) {
	var e Embedder
	switch strings.ToLower(provider) {
	case "", ProviderStatic:
		e = NewStaticEmbedder(dims)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q (available: static)", provider)
	}

	if cacheSize > 0 {
		return NewCachedEmbedder(e, cacheSize), nil
	}
	return e, nil
}
