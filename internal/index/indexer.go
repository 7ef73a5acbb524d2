// Package index turns document text into persisted, embedded chunks. It
// owns the only embedding path for chunk content; retrieval never embeds
// stored text.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Bikash9609/ca-ai/internal/chunk"
	"github.com/Bikash9609/ca-ai/internal/config"
	"github.com/Bikash9609/ca-ai/internal/embed"
	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
	"github.com/Bikash9609/ca-ai/internal/store"
	"github.com/Bikash9609/ca-ai/internal/ui"
)

// DefaultWorkers is the number of documents indexed concurrently.
const DefaultWorkers = 4

// Input is one document to index.
type Input struct {
	Document *store.Document
	Text     string
	// Replace removes the document's existing chunks first.
	Replace bool
}

// Result is the outcome for one document.
type Result struct {
	DocumentID    string
	ChunksCreated int
	ChunkIDs      []string
	// Strategy is the chunking strategy that produced the chunks.
	Strategy string
	Duration time.Duration
	Stages   ui.StageTimings
	Err      error
}

// Indexer chunks, embeds and stores documents.
type Indexer struct {
	store     store.Store
	chunker   *chunk.DocumentChunker
	embedder  embed.Embedder
	batchSize int
	workers   int
	retry     taxerrors.RetryConfig
	renderer  ui.Renderer
	hooks     []func()
	logger    *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithBatchSize sets the embedding batch size.
func WithBatchSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// WithWorkers sets the number of documents indexed concurrently.
func WithWorkers(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Indexer) {
		if l != nil {
			ix.logger = l
		}
	}
}

// WithRenderer reports progress to r.
func WithRenderer(r ui.Renderer) Option {
	return func(ix *Indexer) {
		if r != nil {
			ix.renderer = r
		}
	}
}

// WithWriteHook registers fn to run after every successful write, e.g. to
// purge a retrieval cache.
func WithWriteHook(fn func()) Option {
	return func(ix *Indexer) {
		if fn != nil {
			ix.hooks = append(ix.hooks, fn)
		}
	}
}

// WithRetry sets the retry policy for chunk writes.
func WithRetry(cfg taxerrors.RetryConfig) Option {
	return func(ix *Indexer) {
		ix.retry = cfg
	}
}

// WithConfig applies batch size and worker count from cfg.
func WithConfig(cfg *config.Config) Option {
	return func(ix *Indexer) {
		if cfg == nil {
			return
		}
		WithBatchSize(cfg.Embeddings.BatchSize)(ix)
		WithWorkers(cfg.Index.Workers)(ix)
	}
}

// New creates an Indexer.
func New(s store.Store, chunker *chunk.DocumentChunker, embedder embed.Embedder, opts ...Option) (*Indexer, error) {
	if s == nil {
		return nil, fmt.Errorf("store is required")
	}
	if chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	ix := &Indexer{
		store:     s,
		chunker:   chunker,
		embedder:  embedder,
		batchSize: embed.DefaultBatchSize,
		workers:   DefaultWorkers,
		retry:     taxerrors.DefaultRetryConfig(),
		renderer:  ui.NopRenderer{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// IndexDocument saves doc, chunks text, embeds the chunks in batches and
// stores them in one transaction. Text with no chunks yields a result with
// ChunksCreated 0 and no error.
func (ix *Indexer) IndexDocument(ctx context.Context, doc *store.Document, text string) (*Result, error) {
	return ix.indexOne(ctx, doc, text, ix.renderer)
}

// ReindexDocument replaces every chunk of doc.
func (ix *Indexer) ReindexDocument(ctx context.Context, doc *store.Document, text string) (*Result, error) {
	if doc == nil || doc.ID == "" {
		return nil, taxerrors.InputError("document id is required")
	}
	if _, err := ix.removeChunks(ctx, doc.ID); err != nil {
		return &Result{DocumentID: doc.ID, Err: err}, err
	}
	return ix.IndexDocument(ctx, doc, text)
}

// DeleteDocument removes every chunk of the document and returns how many
// were removed.
func (ix *Indexer) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	if documentID == "" {
		return 0, taxerrors.InputError("document id is required")
	}
	n, err := ix.removeChunks(ctx, documentID)
	if err != nil {
		return 0, err
	}
	ix.logger.Info("document_deleted",
		slog.String("document_id", documentID),
		slog.Int("chunks", n))
	return n, nil
}

// removeChunks deletes a document's chunks and runs the write hooks at
// once, so a replace that later fails never leaves stale cached bundles.
func (ix *Indexer) removeChunks(ctx context.Context, documentID string) (int, error) {
	n, err := ix.store.DeleteDocumentChunks(ctx, documentID)
	if err != nil {
		return 0, err
	}
	ix.runHooks()
	ix.logger.Debug("document_chunks_removed",
		slog.String("document_id", documentID),
		slog.Int("chunks", n))
	return n, nil
}

// IndexDocuments indexes inputs concurrently. A failure for one document
// never affects another. Results are positional; the returned error joins
// every per-document failure.
func (ix *Indexer) IndexDocuments(ctx context.Context, inputs []Input) ([]*Result, error) {
	start := time.Now()
	results := make([]*Result, len(inputs))
	total := len(inputs)

	done := make(chan *Result, total)
	var g errgroup.Group
	g.SetLimit(ix.workers)

	// Progress is reported from one goroutine so renderers see ordered counts.
	var (
		chunks   int
		failures int
		timings  ui.StageTimings
	)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for n := 1; n <= total; n++ {
			res, ok := <-done
			if !ok {
				return
			}
			ix.renderer.UpdateProgress(ui.ProgressEvent{
				Stage:    ui.StageStoring,
				Current:  n,
				Total:    total,
				Unit:     ui.UnitDocuments,
				Document: res.DocumentID,
			})
			if res.Err != nil {
				failures++
				ix.renderer.AddError(ui.ErrorEvent{Document: res.DocumentID, Err: res.Err})
				continue
			}
			chunks += res.ChunksCreated
			timings.Chunk += res.Stages.Chunk
			timings.Embed += res.Stages.Embed
			timings.Store += res.Stages.Store
		}
	}()

	for i, in := range inputs {
		g.Go(func() error {
			// Per-document errors are collected, never returned, so one
			// failure does not cancel its siblings.
			res, err := ix.indexInput(ctx, in)
			if res == nil {
				res = &Result{Err: err}
				if in.Document != nil {
					res.DocumentID = in.Document.ID
				}
			}
			res.Err = err
			results[i] = res
			done <- res
			return nil
		})
	}

	_ = g.Wait()
	close(done)
	<-progressDone

	var errs []error
	for _, res := range results {
		if res != nil && res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.DocumentID, res.Err))
		}
	}

	ix.renderer.Complete(ui.CompletionStats{
		Documents: total - failures,
		Chunks:    chunks,
		Duration:  time.Since(start),
		Errors:    failures,
		Stages:    timings,
		Embedder:  ui.EmbedderInfo{Model: ix.embedder.ModelName(), Dimensions: ix.embedder.Dimensions()},
	})

	ix.logger.Info("index_complete",
		slog.Int("documents", total),
		slog.Int("failed", failures),
		slog.Int("chunks", chunks),
		slog.Duration("duration", time.Since(start)),
		slog.Duration("chunk_time", timings.Chunk),
		slog.Duration("embed_time", timings.Embed),
		slog.Duration("store_time", timings.Store))

	return results, errors.Join(errs...)
}

func (ix *Indexer) indexInput(ctx context.Context, in Input) (*Result, error) {
	if in.Replace && in.Document != nil && in.Document.ID != "" {
		if _, err := ix.removeChunks(ctx, in.Document.ID); err != nil {
			return nil, err
		}
	}
	return ix.indexOne(ctx, in.Document, in.Text, ui.NopRenderer{})
}

func (ix *Indexer) indexOne(ctx context.Context, doc *store.Document, text string, r ui.Renderer) (*Result, error) {
	if doc == nil || doc.ID == "" {
		return nil, taxerrors.InputError("document id is required")
	}
	start := time.Now()
	res := &Result{DocumentID: doc.ID}

	if err := ix.store.SaveDocument(ctx, doc); err != nil {
		return res, err
	}

	// Chunk
	stageStart := time.Now()
	r.UpdateProgress(ui.ProgressEvent{Stage: ui.StageChunking, Document: doc.ID, Message: "Chunking " + doc.ID})
	chunks, strategy, err := ix.chunker.ChunkWithStrategy(ctx, &chunk.Input{DocumentID: doc.ID, FileType: doc.FileType, Text: text})
	if err != nil {
		return res, taxerrors.New(taxerrors.ErrCodeChunkingFailed, "failed to chunk document", err).
			WithDetail("document_id", doc.ID)
	}
	res.Stages.Chunk = time.Since(stageStart)
	if len(chunks) == 0 {
		res.Duration = time.Since(start)
		ix.logger.Info("document_indexed",
			slog.String("document_id", doc.ID),
			slog.Int("chunks", 0))
		return res, nil
	}
	res.Strategy = strategy

	// Embed
	stageStart = time.Now()
	embeddings, err := ix.embed(ctx, doc.ID, chunks, r)
	if err != nil {
		return res, err
	}
	res.Stages.Embed = time.Since(stageStart)

	// Store
	stageStart = time.Now()
	r.UpdateProgress(ui.ProgressEvent{Stage: ui.StageStoring, Current: 0, Total: len(chunks), Document: doc.ID})
	var ids []string
	err = taxerrors.Retry(ctx, ix.retry, func() error {
		var storeErr error
		ids, storeErr = ix.store.StoreChunksBatch(ctx, doc.ID, chunks, embeddings)
		return storeErr
	})
	if err != nil {
		return res, err
	}
	res.Stages.Store = time.Since(stageStart)
	r.UpdateProgress(ui.ProgressEvent{Stage: ui.StageStoring, Current: len(ids), Total: len(chunks), Document: doc.ID})

	res.ChunkIDs = ids
	res.ChunksCreated = len(ids)
	res.Duration = time.Since(start)
	ix.runHooks()

	ix.logger.Info("document_indexed",
		slog.String("document_id", doc.ID),
		slog.String("client_id", doc.ClientID),
		slog.String("strategy", res.Strategy),
		slog.Int("chunks", res.ChunksCreated),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// embed generates embeddings batch by batch. Cancellation is honored
// between batches only; a batch in flight runs to completion.
func (ix *Indexer) embed(ctx context.Context, documentID string, chunks []*chunk.Chunk, r ui.Renderer) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(chunks))
	r.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: 0, Total: len(chunks), Document: documentID})

	for batchStart := 0; batchStart < len(chunks); batchStart += ix.batchSize {
		select {
		case <-ctx.Done():
			ix.logger.Info("index_interrupted",
				slog.String("document_id", documentID),
				slog.Int("embedded", len(embeddings)),
				slog.Int("total", len(chunks)))
			return nil, fmt.Errorf("indexing interrupted at %d/%d chunks: %w", len(embeddings), len(chunks), ctx.Err())
		default:
		}

		batchEnd := min(batchStart+ix.batchSize, len(chunks))
		texts := make([]string, 0, batchEnd-batchStart)
		for _, c := range chunks[batchStart:batchEnd] {
			texts = append(texts, c.Text)
		}

		vecs, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, taxerrors.New(taxerrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("failed to embed chunks %d-%d", batchStart, batchEnd), err).
				WithDetail("document_id", documentID)
		}
		if len(vecs) != len(texts) {
			return nil, taxerrors.New(taxerrors.ErrCodeBatchMismatch,
				fmt.Sprintf("embedder returned %d vectors for %d texts", len(vecs), len(texts)), nil)
		}
		embeddings = append(embeddings, vecs...)

		r.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: len(embeddings), Total: len(chunks), Document: documentID})
		runtime.Gosched()
	}
	return embeddings, nil
}

func (ix *Indexer) runHooks() {
	for _, fn := range ix.hooks {
		fn()
	}
}
