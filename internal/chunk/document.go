package chunk

import (
	"context"
	"log/slog"
	"strings"
)

// DocumentChunker runs the strategy chain over one document and finishes
// the chunks: index assignment, document scope, entity enrichment.
type DocumentChunker struct {
	chain     *Chain
	extractor *EntityExtractor
	logger    *slog.Logger
}

// NewDocumentChunker creates a chunker with the default strategy chain.
func NewDocumentChunker(opts Options, logger *slog.Logger) *DocumentChunker {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentChunker{
		chain:     DefaultChain(opts, logger),
		extractor: NewEntityExtractor(),
		logger:    logger,
	}
}

// NewDocumentChunkerWithChain creates a chunker over a custom chain.
func NewDocumentChunkerWithChain(chain *Chain, logger *slog.Logger) *DocumentChunker {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentChunker{chain: chain, extractor: NewEntityExtractor(), logger: logger}
}

// Chunk splits in.Text. Empty or whitespace-only text yields no chunks and
// no error. Chunk indices run 0..n-1 in emission order.
func (c *DocumentChunker) Chunk(ctx context.Context, in *Input) ([]*Chunk, error) {
	chunks, _, err := c.ChunkWithStrategy(ctx, in)
	return chunks, err
}

// ChunkWithStrategy is Chunk that also names the strategy that produced
// the chunks ("" when there are none).
func (c *DocumentChunker) ChunkWithStrategy(ctx context.Context, in *Input) ([]*Chunk, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if in == nil || strings.TrimSpace(in.Text) == "" {
		id := ""
		if in != nil {
			id = in.DocumentID
		}
		c.logger.Debug("chunk_empty_input", slog.String("document_id", id))
		return nil, "", nil
	}

	chunks, strategy := c.chain.Run(in.FileType, in.Text)
	if len(chunks) == 0 {
		return nil, "", nil
	}

	for i, ch := range chunks {
		ch.DocumentID = in.DocumentID
		ch.Index = i
		c.enrich(ch)
	}

	c.logger.Debug("document_chunked",
		slog.String("document_id", in.DocumentID),
		slog.String("file_type", in.FileType),
		slog.String("strategy", strategy),
		slog.Int("chunks", len(chunks)))
	return chunks, strategy, nil
}

// ChunkDocument is Chunk without a context.
func (c *DocumentChunker) ChunkDocument(documentID, fileType, text string) []*Chunk {
	chunks, _ := c.Chunk(context.Background(), &Input{DocumentID: documentID, FileType: fileType, Text: text})
	return chunks
}

func (c *DocumentChunker) enrich(ch *Chunk) {
	ch.Metadata.Entities = c.extractor.Extract(ch.Text)
	if ch.Metadata.Vendor != "" {
		return
	}
	if v := c.extractor.VendorName(ch.Text); v != "" {
		ch.Metadata.Vendor = v
	} else if g := ch.Metadata.Entities.GSTINs; len(g) > 0 {
		ch.Metadata.Vendor = g[0]
	}
}
