// Package chunk splits extracted document text into bounded, metadata-rich
// chunks. Strategy selection is driven by the declared file type: page
// documents (tables, sections, invoice blocks), tabular exports (rows
// grouped by vendor), and plain text (recursive separator splitting).
package chunk

import (
	"context"
	"strings"
)

// Chunk size defaults, in characters.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
	DefaultRowsPerChunk = 10
	DefaultMaxGroupRows = 20
)

// DefaultSeparators are tried in priority order; "" means character level.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Type discriminates the chunk metadata variant.
type Type string

const (
	TypeTableRow     Type = "table_row"
	TypeInvoiceBlock Type = "invoice_block"
	TypeParagraph    Type = "paragraph"
	TypePage         Type = "page"
)

// Valid reports whether t is a known chunk type.
func (t Type) Valid() bool {
	switch t {
	case TypeTableRow, TypeInvoiceBlock, TypeParagraph, TypePage:
		return true
	}
	return false
}

// Label is the human-readable name used when rendering context.
func (t Type) Label() string {
	switch t {
	case TypeTableRow:
		return "table row"
	case TypeInvoiceBlock:
		return "invoice"
	case TypeParagraph:
		return "text"
	case TypePage:
		return "page content"
	}
	return string(t)
}

// Chunk is one unit produced by the chunker, before embedding and storage.
type Chunk struct {
	DocumentID string
	Index      int
	Text       string
	Metadata   Metadata
}

// Input is one document to chunk.
type Input struct {
	DocumentID string
	// FileType is the declared type ("pdf", "xlsx", "txt", ...).
	FileType string
	Text     string
}

// Chunker splits a document into chunks.
type Chunker interface {
	Chunk(ctx context.Context, in *Input) ([]*Chunk, error)
}

// Options configures chunk sizes and tabular grouping.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
	RowsPerChunk int
	MaxGroupRows int
}

// DefaultOptions returns the default chunking options.
func DefaultOptions() Options {
	return Options{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		Separators:   DefaultSeparators,
		RowsPerChunk: DefaultRowsPerChunk,
		MaxGroupRows: DefaultMaxGroupRows,
	}
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = 0
	}
	if len(o.Separators) == 0 {
		o.Separators = DefaultSeparators
	}
	if o.RowsPerChunk <= 0 {
		o.RowsPerChunk = DefaultRowsPerChunk
	}
	if o.MaxGroupRows <= 0 {
		o.MaxGroupRows = DefaultMaxGroupRows
	}
	return o
}

// normalizeFileType lowercases and strips a leading dot.
func normalizeFileType(ft string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ft)), ".")
}
