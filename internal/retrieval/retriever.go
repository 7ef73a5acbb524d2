// Package retrieval builds context bundles in three passes: hybrid recall,
// precision filtering with entity overrides, and bounded context expansion.
package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Bikash9609/ca-ai/internal/config"
	"github.com/Bikash9609/ca-ai/internal/embed"
	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
	"github.com/Bikash9609/ca-ai/internal/search"
	"github.com/Bikash9609/ca-ai/internal/store"
)

// Config holds the retriever's bounds and thresholds.
type Config struct {
	// MaxInitialResults caps Pass A recall.
	MaxInitialResults int
	// Limit caps the bundle size.
	Limit int
	// SemanticThreshold is the minimum cosine similarity in Pass A.
	SemanticThreshold float64
	// FilterFloor is the minimum combined score in Pass B.
	FilterFloor float64
	// NeighborWindow is the chunk_index distance for neighbor expansion.
	NeighborWindow int
	// VendorExpansion caps chunks pulled from other documents per vendor.
	VendorExpansion int
	// MinVendorSubstring is the vendor length from which raw text matches
	// count as a vendor match.
	MinVendorSubstring int
}

// DefaultConfig returns the default retrieval settings.
func DefaultConfig() Config {
	return Config{
		MaxInitialResults:  30,
		Limit:              15,
		SemanticThreshold:  0.3,
		FilterFloor:        0.4,
		NeighborWindow:     2,
		VendorExpansion:    3,
		MinVendorSubstring: 8,
	}
}

// ConfigFrom reads retrieval settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MaxInitialResults:  cfg.Retrieval.MaxInitialResults,
		Limit:              cfg.Retrieval.Limit,
		SemanticThreshold:  cfg.Search.SemanticThreshold,
		FilterFloor:        cfg.Retrieval.FilterFloor,
		NeighborWindow:     cfg.Retrieval.NeighborWindow,
		VendorExpansion:    cfg.Retrieval.VendorExpansion,
		MinVendorSubstring: cfg.Retrieval.MinVendorSubstring,
	}
}

// Searcher is the Pass A recall engine.
type Searcher interface {
	Search(ctx context.Context, query string, queryEmbedding []float32, limit int, threshold float64, f store.Filters) ([]*search.Result, error)
}

// Query is a retrieval request. Limit overrides Config.Limit when positive.
type Query struct {
	Text      string
	Embedding []float32
	Filters   store.Filters
	Limit     int
}

// Retriever runs multi-pass retrieval over a store.
type Retriever struct {
	store    store.Store
	searcher Searcher
	cfg      Config
	cache    *ContextCache
	embedder embed.Embedder
	logger   *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithConfig sets bounds and thresholds as given, so a zero threshold or
// floor is honored. Non-positive MaxInitialResults, Limit and
// MinVendorSubstring fall back to defaults; a NeighborWindow or
// VendorExpansion <= 0 turns that expansion off.
func WithConfig(cfg Config) Option {
	return func(r *Retriever) {
		def := DefaultConfig()
		if cfg.MaxInitialResults <= 0 {
			cfg.MaxInitialResults = def.MaxInitialResults
		}
		if cfg.Limit <= 0 {
			cfg.Limit = def.Limit
		}
		if cfg.MinVendorSubstring <= 0 {
			cfg.MinVendorSubstring = def.MinVendorSubstring
		}
		r.cfg = cfg
	}
}

// WithCache enables bundle caching.
func WithCache(c *ContextCache) Option {
	return func(r *Retriever) { r.cache = c }
}

// WithEmbedder sets the embedder used by RetrieveText.
func WithEmbedder(e embed.Embedder) Option {
	return func(r *Retriever) { r.embedder = e }
}

// WithSearcher replaces the Pass A engine (default: hybrid search over the
// store).
func WithSearcher(s Searcher) Option {
	return func(r *Retriever) { r.searcher = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a retriever over s.
func New(s store.Store, opts ...Option) *Retriever {
	r := &Retriever{
		store:  s,
		cfg:    DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.searcher == nil {
		r.searcher = search.NewHybridSearchForStore(s, search.WithLogger(r.logger))
	}
	return r
}

// Config returns the effective configuration.
func (r *Retriever) Config() Config { return r.cfg }

// Cache returns the context cache, or nil when caching is off.
func (r *Retriever) Cache() *ContextCache { return r.cache }

// Retrieve returns the context bundle for q. An empty bundle means nothing
// relevant was found; a storage failure is a RetrievalError instead.
func (r *Retriever) Retrieve(ctx context.Context, q Query) (*Bundle, error) {
	if strings.TrimSpace(q.Text) == "" && len(q.Embedding) == 0 {
		return nil, taxerrors.New(taxerrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	return r.cached(ctx, q, func() ([]float32, error) { return q.Embedding, nil })
}

// RetrieveText embeds text with the configured embedder and retrieves.
// A cache hit skips the embedding call.
func (r *Retriever) RetrieveText(ctx context.Context, text string, f store.Filters) (*Bundle, error) {
	if strings.TrimSpace(text) == "" {
		return nil, taxerrors.New(taxerrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	if r.embedder == nil {
		return nil, taxerrors.ConfigError("no embedder configured for text queries", nil)
	}
	q := Query{Text: text, Filters: f}
	return r.cached(ctx, q, func() ([]float32, error) {
		emb, err := r.embedder.Embed(ctx, text)
		if err != nil {
			return nil, taxerrors.New(taxerrors.ErrCodeEmbeddingFailed, "failed to embed query", err)
		}
		return emb, nil
	})
}

func (r *Retriever) cached(ctx context.Context, q Query, embedding func() ([]float32, error)) (*Bundle, error) {
	limit := r.cfg.Limit
	if q.Limit > 0 {
		limit = q.Limit
	}

	var key string
	if r.cache != nil {
		key = r.cache.Key(q.Text, q.Filters, limit)
		if b, ok := r.cache.Get(key); ok {
			r.logger.Debug("retrieval_cache_hit", slog.String("query", q.Text))
			return b, nil
		}
	}

	emb, err := embedding()
	if err != nil {
		return nil, err
	}
	if err := r.checkDimension(ctx, emb); err != nil {
		return nil, err
	}
	b, err := r.run(ctx, q, emb, limit)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Add(key, b)
	}
	return b, nil
}

// checkDimension rejects a query embedding whose length differs from the
// corpus dimension. An empty store has no dimension yet.
func (r *Retriever) checkDimension(ctx context.Context, emb []float32) error {
	if len(emb) == 0 {
		return nil
	}
	dim, err := r.store.Dimension(ctx)
	if err != nil {
		return taxerrors.RetrievalError("recall", err)
	}
	if dim > 0 && dim != len(emb) {
		return taxerrors.DimensionMismatch(dim, len(emb))
	}
	return nil
}

// survivor is a Pass B result; forced marks an entity override.
type survivor struct {
	result *search.Result
	forced bool
}

func (r *Retriever) run(ctx context.Context, q Query, emb []float32, limit int) (*Bundle, error) {
	start := time.Now()
	b := &Bundle{Query: q.Text, Filters: q.Filters, Items: []Item{}}

	// Pass A: recall
	candidates, err := r.searcher.Search(ctx, q.Text, emb, r.cfg.MaxInitialResults, r.cfg.SemanticThreshold, q.Filters)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, taxerrors.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, taxerrors.RetrievalError("recall", err)
	}
	if len(candidates) == 0 {
		r.logger.Debug("retrieval_completed",
			slog.String("query", q.Text),
			slog.Int("candidates", 0),
			slog.Duration("latency", time.Since(start)))
		return b, nil
	}

	// Pass B: precision
	survivors := r.precision(q, candidates)

	// Pass C: expansion
	if err := r.expand(ctx, b, survivors, limit); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, taxerrors.RetrievalError("expansion", err)
	}

	r.logger.Debug("retrieval_completed",
		slog.String("query", q.Text),
		slog.Int("candidates", len(candidates)),
		slog.Int("survivors", len(survivors)),
		slog.Int("items", len(b.Items)),
		slog.Duration("latency", time.Since(start)))
	return b, nil
}

// precision splits candidates into entity overrides, which skip every
// score filter, and the rest, which must pass doc_type, period, payment
// intent and the similarity floor. The union is sorted by score with
// overrides first on ties.
func (r *Retriever) precision(q Query, candidates []*search.Result) []survivor {
	hints := parseHints(q.Text)
	seen := make(map[string]struct{}, len(candidates))
	kept := make([]survivor, 0, len(candidates))

	for _, c := range candidates {
		if c == nil || c.Chunk == nil {
			continue
		}
		if _, dup := seen[c.Chunk.ID]; dup {
			continue
		}
		if c.Chunk.MetadataErr != nil {
			r.exclude(c.Chunk)
			continue
		}
		seen[c.Chunk.ID] = struct{}{}

		if len(hints.identifiers) > 0 && matchesIdentifier(c.Chunk, hints.identifiers) {
			kept = append(kept, survivor{result: c, forced: true})
			continue
		}
		if q.Filters.DocType != "" && c.Chunk.DocType != q.Filters.DocType {
			continue
		}
		if len(hints.periods) > 0 && !matchesPeriod(c.Chunk, hints.periods) {
			continue
		}
		if hints.payment && !matchesPaymentIntent(c.Chunk) {
			continue
		}
		if c.CombinedScore < r.cfg.FilterFloor {
			continue
		}
		kept = append(kept, survivor{result: c})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.result.CombinedScore != b.result.CombinedScore {
			return a.result.CombinedScore > b.result.CombinedScore
		}
		if a.forced != b.forced {
			return a.forced
		}
		return a.result.ChunkID() < b.result.ChunkID()
	})
	return kept
}

// expand walks survivors best first and adds each one followed by its
// same-page neighbors, its table header and same-vendor chunks from the
// client's other documents, until the bundle holds limit items.
func (r *Retriever) expand(ctx context.Context, b *Bundle, survivors []survivor, limit int) error {
	seen := make(map[string]struct{}, limit)
	full := func() bool { return len(b.Items) >= limit }
	add := func(c *store.Chunk, item Item) {
		if c == nil || full() {
			return
		}
		if _, ok := seen[c.ID]; ok {
			return
		}
		if c.MetadataErr != nil {
			r.exclude(c)
			return
		}
		seen[c.ID] = struct{}{}
		item.Chunk = c
		item.ChunkID = c.ID
		item.DocumentID = c.DocumentID
		item.Text = c.Text
		b.Items = append(b.Items, item)
	}

	for _, s := range survivors {
		if full() {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		c := s.result.Chunk
		reason := ReasonMatch
		if s.forced {
			reason = ReasonEntityOverride
		}
		add(c, Item{
			Reason:        reason,
			Similarity:    s.result.Similarity,
			LexicalRank:   s.result.LexicalRank,
			CombinedScore: s.result.CombinedScore,
		})

		if !full() && r.cfg.NeighborWindow > 0 {
			neighbors, err := r.store.ChunksNear(ctx, c.DocumentID, c.ChunkIndex, r.cfg.NeighborWindow, c.Metadata.Page)
			if err != nil {
				return err
			}
			for _, n := range neighbors {
				add(n, Item{Reason: ReasonNeighbor, Via: c.ID})
			}
		}

		if tr := c.Metadata.TableRow; !full() && tr != nil && !tr.IsHeader {
			header, err := r.store.TableHeader(ctx, c.DocumentID, tr.TableIndex)
			if err != nil {
				return err
			}
			add(header, Item{Reason: ReasonTableHeader, Via: c.ID})
		}

		if !full() && c.Metadata.Vendor != "" && r.cfg.VendorExpansion > 0 {
			related, err := r.store.ChunksByVendor(ctx, store.VendorQuery{
				ClientID:          c.ClientID,
				Vendor:            c.Metadata.Vendor,
				ExcludeDocumentID: c.DocumentID,
				Limit:             r.cfg.VendorExpansion,
				MinSubstring:      r.cfg.MinVendorSubstring,
			})
			if err != nil {
				return err
			}
			for _, v := range related {
				add(v, Item{Reason: ReasonVendor, Via: c.ID})
			}
		}
	}
	return nil
}

func (r *Retriever) exclude(c *store.Chunk) {
	attrs := append([]any{slog.String("document_id", c.DocumentID)},
		taxerrors.LogAttrs(taxerrors.PartialCandidate(c.ID, c.MetadataErr))...)
	r.logger.Warn("chunk_excluded", attrs...)
}
