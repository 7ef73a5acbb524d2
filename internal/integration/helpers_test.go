package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Bikash9609/ca-ai/internal/chunk"
	"github.com/Bikash9609/ca-ai/internal/config"
	"github.com/Bikash9609/ca-ai/internal/embed"
	"github.com/Bikash9609/ca-ai/internal/index"
	"github.com/Bikash9609/ca-ai/internal/logging"
	"github.com/Bikash9609/ca-ai/internal/retrieval"
	"github.com/Bikash9609/ca-ai/internal/search"
	"github.com/Bikash9609/ca-ai/internal/store"
)

// env is one wired pipeline over a store in a temp directory.
type env struct {
	cfg       *config.Config
	store     store.Store
	embedder  embed.Embedder
	cache     *retrieval.ContextCache
	indexer   *index.Indexer
	retriever *retrieval.Retriever
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.DataDir = dir
	cfg.Store.Path = filepath.Join(dir, "taxctx.db")
	cfg.Embeddings.Dimensions = 64
	// The static embedder gives weak similarities; keep every recall hit.
	cfg.Retrieval.FilterFloor = 0

	logger := logging.Discard()
	s, err := store.Open(context.Background(), cfg.Store, cfg.DataDir, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	e, err := embed.NewEmbedder(cfg.Embeddings.Provider, cfg.Embeddings.Dimensions, 100)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	cache := retrieval.NewContextCache(cfg.Cache.Size, cfg.CacheTTL())
	chunker := chunk.NewDocumentChunker(chunk.Options{
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
		RowsPerChunk: cfg.Chunking.RowsPerChunk,
		MaxGroupRows: cfg.Chunking.MaxGroupRows,
	}, logger)

	ix, err := index.New(s, chunker, e,
		index.WithConfig(cfg),
		index.WithLogger(logger),
		index.WithWriteHook(cache.Purge))
	require.NoError(t, err)

	hybrid := search.NewHybridSearchForStore(s,
		search.WithWeights(search.Weights{Semantic: cfg.Search.SemanticWeight, Keyword: cfg.Search.KeywordWeight}),
		search.WithLogger(logger))
	r := retrieval.New(s,
		retrieval.WithConfig(retrieval.ConfigFrom(cfg)),
		retrieval.WithEmbedder(e),
		retrieval.WithSearcher(hybrid),
		retrieval.WithCache(cache),
		retrieval.WithLogger(logger))

	return &env{cfg: cfg, store: s, embedder: e, cache: cache, indexer: ix, retriever: r}
}

func (e *env) index(t *testing.T, doc *store.Document, text string) *index.Result {
	t.Helper()
	res, err := e.indexer.IndexDocument(context.Background(), doc, text)
	require.NoError(t, err)
	require.Positive(t, res.ChunksCreated)
	return res
}

func documentIDs(b *retrieval.Bundle) map[string]bool {
	ids := make(map[string]bool)
	for _, it := range b.Items {
		ids[it.DocumentID] = true
	}
	return ids
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const acmeStatement = `Bank statement of Acme Traders for April 2024.

NEFT credit received from Bharat Retail against sales of steel rods.

Rent paid to Sunrise Estates for the Pune godown after deducting TDS.

Closing balance carried forward to May 2024.`

const globexStatement = `Bank statement of Globex Foods for April 2024.

NEFT credit received from Metro Mart against sales of packaged rice.

Electricity bill paid to MSEDCL for the Nashik plant.`

const vendorLedger = `Date,Vendor,Particulars,Amount
01-04-2024,Sharma Traders,Steel rods,12000
03-04-2024,Kumar Logistics,Freight,3500
09-04-2024,Sharma Traders,Steel sheets,8000
15-04-2024,Patel Packaging,Cartons,2200`
