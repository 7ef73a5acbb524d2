// Package store persists documents, chunks and their embeddings, and keeps
// the lexical index in lockstep with the chunk rows. Backends: SQLite with
// FTS5 (default), SQLite with a Bleve side index, and PostgreSQL with
// pgvector and a generated tsvector column.
package store

import (
	"context"
	"time"

	"github.com/Bikash9609/ca-ai/internal/chunk"
)

// State keys for the store_state table.
const (
	// StateKeyDimension records the corpus embedding dimension on first write.
	StateKeyDimension = "embedding_dimension"
	// StateKeySchemaVersion records the schema version.
	StateKeySchemaVersion = "schema_version"
)

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1

// Document is an externally owned source document. The store only reads
// its fields to scope and filter chunks.
type Document struct {
	ID       string
	ClientID string
	DocType  string
	Period   string
	Category string
	// FileType is the declared type used for chunking strategy selection.
	FileType  string
	FilePath  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is a persisted chunk. Reads join the owning document, so the
// document scope fields are denormalized onto the chunk.
type Chunk struct {
	ID         string
	DocumentID string
	ChunkIndex int
	Text       string
	Embedding  []float32
	Metadata   chunk.Metadata
	// MetadataErr is set when the stored metadata failed to decode. Such a
	// chunk is returned so a caller can exclude it and carry on.
	MetadataErr error

	ClientID  string
	DocType   string
	Period    string
	Category  string
	CreatedAt time.Time
}

// Filters scope a query. Empty fields match everything; set fields are
// exact matches AND-ed together.
type Filters struct {
	DocumentID string `json:"document_id,omitempty"`
	ClientID   string `json:"client_id,omitempty"`
	Period     string `json:"period,omitempty"`
	Category   string `json:"category,omitempty"`
	DocType    string `json:"doc_type,omitempty"`
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool { return f == Filters{} }

// Candidate is one row of the semantic candidate stream.
type Candidate struct {
	ChunkID    string
	DocumentID string
	Embedding  []float32
}

// LexicalHit is a lexical match. Rank is lower-is-better on every backend.
type LexicalHit struct {
	Chunk *Chunk
	Rank  float64
}

// VendorQuery selects chunks of other documents that share a vendor.
type VendorQuery struct {
	ClientID string
	Vendor   string
	// ExcludeDocumentID skips the document the vendor was found in.
	ExcludeDocumentID string
	Limit             int
	// MinSubstring is the vendor length from which a raw text match is also
	// accepted. Shorter vendors only match the structured vendor field.
	MinSubstring int
}

// Stats summarizes store contents.
type Stats struct {
	Documents      int
	Chunks         int
	LexicalEntries int
	Dimension      int
	Backend        string
}

// Store persists documents and chunks.
type Store interface {
	// Documents
	SaveDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)

	// Chunk writes. All chunk writes for one document are serialized.
	StoreChunk(ctx context.Context, documentID string, chunkIndex int, text string, embedding []float32, meta chunk.Metadata) (string, error)
	StoreChunksBatch(ctx context.Context, documentID string, chunks []*chunk.Chunk, embeddings [][]float32) ([]string, error)
	DeleteDocumentChunks(ctx context.Context, documentID string) (int, error)

	// Chunk reads
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)
	GetDocumentChunks(ctx context.Context, documentID string) ([]*Chunk, error)

	// Search support
	SemanticCandidates(ctx context.Context, f Filters, fn func(Candidate) error) error
	LexicalSearch(ctx context.Context, query string, limit int, f Filters) ([]*LexicalHit, error)

	// Context expansion support
	ChunksNear(ctx context.Context, documentID string, chunkIndex, window, page int) ([]*Chunk, error)
	TableHeader(ctx context.Context, documentID string, tableIndex int) (*Chunk, error)
	ChunksByVendor(ctx context.Context, q VendorQuery) ([]*Chunk, error)

	// State
	Dimension(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}

// VectorPrefilter is implemented by stores that can pre-rank semantic
// candidates by cosine distance in SQL. Candidates arrive nearest first;
// when minSimilarity > 0, chunks that cannot reach it are left out.
// Callers still score every candidate exactly.
type VectorPrefilter interface {
	SemanticCandidatesNear(ctx context.Context, query []float32, minSimilarity float64, f Filters, fn func(Candidate) error) error
}
