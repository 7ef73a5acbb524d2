package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Bikash9609/ca-ai/internal/chunk"
	"github.com/Bikash9609/ca-ai/internal/config"
	"github.com/Bikash9609/ca-ai/internal/embed"
	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
	"github.com/Bikash9609/ca-ai/internal/index"
	"github.com/Bikash9609/ca-ai/internal/lockfile"
	"github.com/Bikash9609/ca-ai/internal/retrieval"
	"github.com/Bikash9609/ca-ai/internal/search"
	"github.com/Bikash9609/ca-ai/internal/store"
	"github.com/Bikash9609/ca-ai/internal/ui"
)

// lockTimeout bounds how long a write command waits for another taxctx
// process to release the data directory.
const lockTimeout = 10 * time.Second

// app is the wired component graph for one command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.Store
	embedder embed.Embedder
	cache    *retrieval.ContextCache
	lock     *lockfile.WriteLock
}

// openApp opens the store and embedder. Write commands also take the
// cross-process write lock for the data directory.
func (g *globals) openApp(ctx context.Context, write bool) (*app, error) {
	a := &app{cfg: g.cfg, logger: g.logger}

	if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
		return nil, taxerrors.ConfigError("failed to create data directory", err).
			WithDetail("data_dir", a.cfg.DataDir)
	}

	if write {
		lock := lockfile.New(a.cfg.DataDir)
		lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
		defer cancel()
		if err := lock.Lock(lockCtx, 100*time.Millisecond); err != nil {
			return nil, taxerrors.New(taxerrors.ErrCodeIndexFailed, "another taxctx process is writing to this data directory", err).
				WithSuggestion("wait for it to finish or stop 'taxctx watch'")
		}
		a.lock = lock
	}

	s, err := store.Open(ctx, a.cfg.Store, a.cfg.DataDir, a.logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.store = s

	e, err := embed.NewEmbedder(a.cfg.Embeddings.Provider, a.cfg.Embeddings.Dimensions, a.cfg.Embeddings.CacheSize)
	if err != nil {
		_ = a.Close()
		return nil, taxerrors.ConfigError("failed to create embedder", err)
	}
	a.embedder = e

	dim, err := s.Dimension(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if dim > 0 && dim != e.Dimensions() {
		_ = a.Close()
		return nil, taxerrors.DimensionMismatch(dim, e.Dimensions()).
			WithSuggestion(fmt.Sprintf("set embeddings.dimensions to %d or use a new data directory", dim))
	}

	if a.cfg.Cache.Enabled {
		a.cache = retrieval.NewContextCache(a.cfg.Cache.Size, a.cfg.CacheTTL())
	}
	return a, nil
}

// Close releases the store, embedder and write lock.
func (a *app) Close() error {
	var firstErr error
	if a.embedder != nil {
		if err := a.embedder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *app) chunker() *chunk.DocumentChunker {
	return chunk.NewDocumentChunker(chunk.Options{
		ChunkSize:    a.cfg.Chunking.ChunkSize,
		ChunkOverlap: a.cfg.Chunking.ChunkOverlap,
		RowsPerChunk: a.cfg.Chunking.RowsPerChunk,
		MaxGroupRows: a.cfg.Chunking.MaxGroupRows,
	}, a.logger)
}

// indexer builds an Indexer whose writes purge the context cache.
func (a *app) indexer(renderer ui.Renderer) (*index.Indexer, error) {
	opts := []index.Option{
		index.WithConfig(a.cfg),
		index.WithLogger(a.logger),
	}
	if renderer != nil {
		opts = append(opts, index.WithRenderer(renderer))
	}
	if a.cache != nil {
		opts = append(opts, index.WithWriteHook(a.cache.Purge))
	}
	return index.New(a.store, a.chunker(), a.embedder, opts...)
}

func (a *app) hybrid() *search.HybridSearch {
	return search.NewHybridSearchForStore(a.store,
		search.WithWeights(search.Weights{
			Semantic: a.cfg.Search.SemanticWeight,
			Keyword:  a.cfg.Search.KeywordWeight,
		}),
		search.WithFuser(search.NewFuser(a.cfg.Search.Fusion)),
		search.WithLogger(a.logger))
}

func (a *app) retriever() *retrieval.Retriever {
	opts := []retrieval.Option{
		retrieval.WithConfig(retrieval.ConfigFrom(a.cfg)),
		retrieval.WithEmbedder(a.embedder),
		retrieval.WithSearcher(a.hybrid()),
		retrieval.WithLogger(a.logger),
	}
	if a.cache != nil {
		opts = append(opts, retrieval.WithCache(a.cache))
	}
	return retrieval.New(a.store, opts...)
}
