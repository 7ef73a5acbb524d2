package store

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Bikash9609/ca-ai/internal/chunk"
	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
)

// Column list shared by every chunk read. Reads always join documents so
// the scope fields come back with the chunk.
const (
	chunkColumns = `c.id, c.document_id, c.chunk_index, c.text, c.embedding, c.metadata, c.created_at,
		COALESCE(d.client_id, ''), COALESCE(d.doc_type, ''), COALESCE(d.period, ''), COALESCE(d.category, '')`
	chunkFrom = `document_chunks c LEFT JOIN documents d ON d.id = c.document_id`
)

// args collects positional arguments and renders the dialect's placeholder.
type args struct {
	dollar bool
	vals   []any
}

func (a *args) add(v any) string {
	a.vals = append(a.vals, v)
	if a.dollar {
		return "$" + strconv.Itoa(len(a.vals))
	}
	return "?"
}

func (a *args) list(vs []string) string {
	ph := make([]string, len(vs))
	for i, v := range vs {
		ph[i] = a.add(v)
	}
	return strings.Join(ph, ",")
}

// where renders f as " AND ..." conditions over the c/d aliases.
func (a *args) where(f Filters) string {
	var b strings.Builder
	cond := func(col, v string) {
		if v != "" {
			b.WriteString(" AND ")
			b.WriteString(col)
			b.WriteString(" = ")
			b.WriteString(a.add(v))
		}
	}
	cond("c.document_id", f.DocumentID)
	cond("d.client_id", f.ClientID)
	cond("d.period", f.Period)
	cond("d.category", f.Category)
	cond("d.doc_type", f.DocType)
	return b.String()
}

// rowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanChunk reads chunkColumns plus any extra destinations. A metadata
// decode failure is recorded on the chunk, not returned; an embedding of
// the wrong dimension is returned as an error.
func scanChunk(r rowScanner, dim int, extra ...any) (*Chunk, error) {
	var (
		c         Chunk
		blob      []byte
		meta      []byte
		createdAt int64
	)
	dest := append([]any{
		&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Text, &blob, &meta, &createdAt,
		&c.ClientID, &c.DocType, &c.Period, &c.Category,
	}, extra...)
	if err := r.Scan(dest...); err != nil {
		return nil, err
	}

	emb, err := DecodeEmbedding(blob, dim)
	if err != nil {
		return nil, err
	}
	c.Embedding = emb
	c.CreatedAt = fromMilli(createdAt)

	m, err := chunk.DecodeMetadata(meta)
	if err != nil {
		c.MetadataErr = taxerrors.PartialCandidate(c.ID, err)
	} else {
		c.Metadata = m
	}
	return &c, nil
}

// chunkRow is one validated chunk ready for insertion.
type chunkRow struct {
	id        string
	index     int
	text      string
	embedding []float32
	meta      chunk.Metadata
	metaJSON  []byte
}

// prepareRows validates a positional batch and assigns ids. Every embedding
// in the batch must share one non-zero dimension, which is returned.
func prepareRows(documentID string, chunks []*chunk.Chunk, embeddings [][]float32) ([]chunkRow, int, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, 0, taxerrors.InputError("document id is required")
	}
	if len(chunks) != len(embeddings) {
		return nil, 0, taxerrors.New(taxerrors.ErrCodeBatchMismatch,
			"chunks and embeddings differ in length", nil).
			WithDetail("chunks", strconv.Itoa(len(chunks))).
			WithDetail("embeddings", strconv.Itoa(len(embeddings)))
	}

	rows := make([]chunkRow, 0, len(chunks))
	dim := 0
	for i, ch := range chunks {
		if ch == nil || strings.TrimSpace(ch.Text) == "" {
			return nil, 0, taxerrors.InputError("chunk text is empty").WithDetail("position", strconv.Itoa(i))
		}
		if ch.Index < 0 {
			return nil, 0, taxerrors.InputError("chunk index is negative").WithDetail("position", strconv.Itoa(i))
		}
		emb := embeddings[i]
		if len(emb) == 0 {
			return nil, 0, taxerrors.InputError("embedding is empty").WithDetail("position", strconv.Itoa(i))
		}
		if dim == 0 {
			dim = len(emb)
		} else if len(emb) != dim {
			return nil, 0, taxerrors.DimensionMismatch(dim, len(emb))
		}
		meta := ch.Metadata
		metaJSON, err := chunk.EncodeMetadata(&meta)
		if err != nil {
			return nil, 0, err
		}
		rows = append(rows, chunkRow{
			id:        uuid.NewString(),
			index:     ch.Index,
			text:      ch.Text,
			embedding: emb,
			meta:      meta,
			metaJSON:  metaJSON,
		})
	}
	return rows, dim, nil
}

func (r *chunkRow) vendorKey() string { return vendorKey(r.meta.Vendor) }

// tableIndex is the table index for table rows, NULL otherwise.
func (r *chunkRow) tableIndex() any {
	if r.meta.TableRow == nil {
		return nil
	}
	return r.meta.TableRow.TableIndex
}

func (r *chunkRow) isHeader() bool {
	return r.meta.TableRow != nil && r.meta.TableRow.IsHeader
}

func vendorKey(v string) string {
	return strings.ToLower(strings.Join(strings.Fields(v), " "))
}

// orderByIDs reorders chunks to follow ids, dropping ids with no chunk.
func orderByIDs(ids []string, chunks []*Chunk) []*Chunk {
	byID := make(map[string]*Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	out := make([]*Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
			delete(byID, id)
		}
	}
	return out
}

func chunkNotFound(id string) error {
	return taxerrors.New(taxerrors.ErrCodeChunkNotFound, "chunk not found", nil).WithDetail("chunk_id", id)
}

func nowMilli() int64 { return time.Now().UnixMilli() }

func fromMilli(ms int64) time.Time { return time.UnixMilli(ms) }
