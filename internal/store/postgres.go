package store

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/Bikash9609/ca-ai/internal/chunk"
	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
)

// PostgresStore implements Store on PostgreSQL. The lexical index is a
// generated tsvector column on the chunk row, so it can never drift from
// the row it describes. Embeddings are kept both as raw bytes (the
// canonical copy every read decodes) and as a pgvector column.
type PostgresStore struct {
	mu       sync.RWMutex
	pool     *pgxpool.Pool
	docLocks *KeyedMutex
	logger   *slog.Logger
	closed   bool
	dim      atomic.Int64
}

var (
	_ Store           = (*PostgresStore)(nil)
	_ VectorPrefilter = (*PostgresStore)(nil)
)

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS store_state (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
  id         TEXT PRIMARY KEY,
  client_id  TEXT NOT NULL DEFAULT '',
  doc_type   TEXT NOT NULL DEFAULT '',
  period     TEXT NOT NULL DEFAULT '',
  category   TEXT NOT NULL DEFAULT '',
  file_type  TEXT NOT NULL DEFAULT '',
  file_path  TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_client_idx ON documents (client_id);

CREATE TABLE IF NOT EXISTS document_chunks (
  seq           BIGSERIAL,
  id            TEXT PRIMARY KEY,
  document_id   TEXT NOT NULL,
  chunk_index   INT NOT NULL,
  text          TEXT NOT NULL,
  embedding     BYTEA NOT NULL,
  embedding_vec vector,
  metadata      TEXT NOT NULL,
  chunk_type    TEXT NOT NULL,
  page          INT NOT NULL DEFAULT 0,
  vendor        TEXT NOT NULL DEFAULT '',
  table_index   INT,
  is_header     BOOLEAN NOT NULL DEFAULT FALSE,
  created_at    BIGINT NOT NULL,
  tsv           tsvector GENERATED ALWAYS AS (to_tsvector('simple', text)) STORED,
  UNIQUE (document_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS document_chunks_vendor_idx ON document_chunks (vendor);
CREATE INDEX IF NOT EXISTS document_chunks_tsv_gin ON document_chunks USING GIN (tsv);
`

// NewPostgresStore connects to dsn and migrates the schema.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, taxerrors.ConfigError("postgres DSN is empty", nil).
			WithSuggestion("set store.postgres_dsn or TAXCTX_POSTGRES_DSN")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, taxerrors.ConfigError("invalid postgres DSN", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, taxerrors.PersistenceError(false, "failed to connect to postgres", err)
	}

	s := &PostgresStore{pool: pool, docLocks: NewKeyedMutex(), logger: logger}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the schema. It is safe to run repeatedly.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return taxerrors.PersistenceError(true, "failed to migrate schema", err)
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO store_state(key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
		StateKeySchemaVersion, strconv.Itoa(CurrentSchemaVersion))
	if err != nil {
		return taxerrors.PersistenceError(true, "failed to record schema version", err)
	}
	return nil
}

func (s *PostgresStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return taxerrors.PersistenceError(false, "store is closed", nil)
	}
	return nil
}

// SaveDocument inserts or updates a document.
func (s *PostgresStore) SaveDocument(ctx context.Context, doc *Document) error {
	if doc == nil || strings.TrimSpace(doc.ID) == "" {
		return taxerrors.InputError("document id is required")
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	now := nowMilli()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, client_id, doc_type, period, category, file_type, file_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			client_id  = EXCLUDED.client_id,
			doc_type   = EXCLUDED.doc_type,
			period     = EXCLUDED.period,
			category   = EXCLUDED.category,
			file_type  = EXCLUDED.file_type,
			file_path  = EXCLUDED.file_path,
			updated_at = EXCLUDED.updated_at`,
		doc.ID, doc.ClientID, doc.DocType, doc.Period, doc.Category, doc.FileType, doc.FilePath, now, now)
	if err != nil {
		return taxerrors.PersistenceError(true, "failed to save document", err).WithDetail("document_id", doc.ID)
	}
	return nil
}

// GetDocument returns the document, or nil without error when it does not exist.
func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var d Document
	var created, updated int64
	err := s.pool.QueryRow(ctx, `
		SELECT id, client_id, doc_type, period, category, file_type, file_path, created_at, updated_at
		FROM documents WHERE id = $1`, id).
		Scan(&d.ID, &d.ClientID, &d.DocType, &d.Period, &d.Category, &d.FileType, &d.FilePath, &created, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, taxerrors.PersistenceError(false, "failed to get document", err).WithDetail("document_id", id)
	}
	d.CreatedAt, d.UpdatedAt = fromMilli(created), fromMilli(updated)
	return &d, nil
}

// StoreChunk persists a single chunk and returns its id.
func (s *PostgresStore) StoreChunk(ctx context.Context, documentID string, chunkIndex int, text string, embedding []float32, meta chunk.Metadata) (string, error) {
	ids, err := s.StoreChunksBatch(ctx, documentID,
		[]*chunk.Chunk{{DocumentID: documentID, Index: chunkIndex, Text: text, Metadata: meta}},
		[][]float32{embedding})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// StoreChunksBatch persists chunks[i] with embeddings[i] in one transaction.
func (s *PostgresStore) StoreChunksBatch(ctx context.Context, documentID string, chunks []*chunk.Chunk, embeddings [][]float32) ([]string, error) {
	rows, dim, err := prepareRows(documentID, chunks, embeddings)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []string{}, nil
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	unlock := s.docLocks.Lock(documentID)
	defer unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, taxerrors.PersistenceError(true, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, documentID); err != nil {
		return nil, taxerrors.PersistenceError(true, "failed to lock document", err)
	}
	if err := s.checkDimension(ctx, tx, dim); err != nil {
		return nil, err
	}

	now := nowMilli()
	batch := &pgx.Batch{}
	ids := make([]string, len(rows))
	for i, r := range rows {
		batch.Queue(`
			INSERT INTO document_chunks
				(id, document_id, chunk_index, text, embedding, embedding_vec, metadata, chunk_type, page, vendor, table_index, is_header, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			r.id, documentID, r.index, r.text, EncodeEmbedding(r.embedding), pgvector.NewVector(r.embedding),
			string(r.metaJSON), string(r.meta.Type), r.meta.Page, r.vendorKey(), r.tableIndex(), r.isHeader(), now)
		ids[i] = r.id
	}
	br := tx.SendBatch(ctx, batch)
	for i := range rows {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return nil, taxerrors.PersistenceError(true, "failed to insert chunk", err).
				WithDetail("document_id", documentID).
				WithDetail("chunk_index", strconv.Itoa(rows[i].index))
		}
	}
	if err := br.Close(); err != nil {
		return nil, taxerrors.PersistenceError(true, "failed to insert chunks", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, taxerrors.PersistenceError(true, "failed to commit chunks", err)
	}
	s.dim.Store(int64(dim))
	return ids, nil
}

func (s *PostgresStore) checkDimension(ctx context.Context, tx pgx.Tx, dim int) error {
	if _, err := tx.Exec(ctx, `INSERT INTO store_state(key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
		StateKeyDimension, strconv.Itoa(dim)); err != nil {
		return taxerrors.PersistenceError(true, "failed to record dimension", err)
	}
	var v string
	if err := tx.QueryRow(ctx, `SELECT value FROM store_state WHERE key = $1`, StateKeyDimension).Scan(&v); err != nil {
		return taxerrors.PersistenceError(false, "failed to read dimension", err)
	}
	stored, err := strconv.Atoi(v)
	if err != nil {
		return taxerrors.New(taxerrors.ErrCodeCorruptStore, "stored dimension is not a number", err)
	}
	if stored != dim {
		return taxerrors.DimensionMismatch(stored, dim)
	}
	return nil
}

// DeleteDocumentChunks removes every chunk of the document. The tsvector
// lives on the row, so the lexical entries go with it.
func (s *PostgresStore) DeleteDocumentChunks(ctx context.Context, documentID string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	unlock := s.docLocks.Lock(documentID)
	defer unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, taxerrors.PersistenceError(true, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, documentID); err != nil {
		return 0, taxerrors.PersistenceError(true, "failed to lock document", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, taxerrors.PersistenceError(true, "failed to delete chunks", err).WithDetail("document_id", documentID)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, taxerrors.PersistenceError(true, "failed to commit delete", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetChunk returns the chunk with id, or ErrChunkNotFound.
func (s *PostgresStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	chunks, err := s.queryChunks(ctx, `SELECT `+chunkColumns+` FROM `+chunkFrom+` WHERE c.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, chunkNotFound(id)
	}
	if chunks[0].MetadataErr != nil {
		return nil, chunks[0].MetadataErr
	}
	return chunks[0], nil
}

// GetChunks returns the chunks with the given ids in the order given.
func (s *PostgresStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return []*Chunk{}, nil
	}
	chunks, err := s.queryChunks(ctx, `SELECT `+chunkColumns+` FROM `+chunkFrom+` WHERE c.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return orderByIDs(ids, chunks), nil
}

// GetDocumentChunks returns the document's chunks ordered by chunk index.
func (s *PostgresStore) GetDocumentChunks(ctx context.Context, documentID string) ([]*Chunk, error) {
	return s.queryChunks(ctx, `SELECT `+chunkColumns+` FROM `+chunkFrom+`
		WHERE c.document_id = $1 ORDER BY c.chunk_index`, documentID)
}

// ChunksNear returns same-page chunks within window positions of chunkIndex.
func (s *PostgresStore) ChunksNear(ctx context.Context, documentID string, chunkIndex, window, page int) ([]*Chunk, error) {
	if window <= 0 {
		return []*Chunk{}, nil
	}
	return s.queryChunks(ctx, `SELECT `+chunkColumns+` FROM `+chunkFrom+`
		WHERE c.document_id = $1 AND c.chunk_index BETWEEN $2 AND $3 AND c.chunk_index <> $4 AND c.page = $5
		ORDER BY c.chunk_index`,
		documentID, chunkIndex-window, chunkIndex+window, chunkIndex, page)
}

// TableHeader returns the header chunk of a table, or nil.
func (s *PostgresStore) TableHeader(ctx context.Context, documentID string, tableIndex int) (*Chunk, error) {
	chunks, err := s.queryChunks(ctx, `SELECT `+chunkColumns+` FROM `+chunkFrom+`
		WHERE c.document_id = $1 AND c.table_index = $2 AND c.is_header
		ORDER BY c.chunk_index LIMIT 1`, documentID, tableIndex)
	if err != nil || len(chunks) == 0 {
		return nil, err
	}
	return chunks[0], nil
}

// ChunksByVendor returns chunks of the client's other documents that share
// the vendor.
func (s *PostgresStore) ChunksByVendor(ctx context.Context, q VendorQuery) ([]*Chunk, error) {
	key := vendorKey(q.Vendor)
	if key == "" || q.Limit <= 0 {
		return []*Chunk{}, nil
	}
	a := &args{dollar: true}
	match := `c.vendor = ` + a.add(key)
	if q.MinSubstring > 0 && len([]rune(key)) >= q.MinSubstring {
		match = `(` + match + ` OR strpos(lower(c.text), ` + a.add(key) + `) > 0)`
	}
	query := `SELECT ` + chunkColumns + ` FROM ` + chunkFrom + `
		WHERE COALESCE(d.client_id, '') = ` + a.add(q.ClientID) + `
		AND c.document_id <> ` + a.add(q.ExcludeDocumentID) + `
		AND ` + match + `
		ORDER BY c.document_id, c.chunk_index LIMIT ` + a.add(q.Limit)
	return s.queryChunks(ctx, query, a.vals...)
}

func (s *PostgresStore) queryChunks(ctx context.Context, query string, vals ...any) ([]*Chunk, error) {
	dim, err := s.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, vals...)
	if err != nil {
		return nil, readError("failed to query chunks", err)
	}
	defer rows.Close()

	chunks := []*Chunk{}
	for rows.Next() {
		c, err := scanChunk(rows, dim)
		if err != nil {
			return nil, readError("failed to scan chunk", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, readError("failed to read chunks", err)
	}
	return chunks, nil
}

// SemanticCandidates streams the id and embedding of every chunk matching f.
func (s *PostgresStore) SemanticCandidates(ctx context.Context, f Filters, fn func(Candidate) error) error {
	dim, err := s.Dimension(ctx)
	if err != nil {
		return err
	}
	a := &args{dollar: true}
	query := `SELECT c.id, c.document_id, c.embedding FROM ` + chunkFrom + ` WHERE TRUE` + a.where(f) + ` ORDER BY c.seq`
	rows, err := s.pool.Query(ctx, query, a.vals...)
	if err != nil {
		return readError("failed to query candidates", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cand Candidate
		var blob []byte
		if err := rows.Scan(&cand.ChunkID, &cand.DocumentID, &blob); err != nil {
			return readError("failed to scan candidate", err)
		}
		if cand.Embedding, err = DecodeEmbedding(blob, dim); err != nil {
			return err
		}
		if err := fn(cand); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return readError("failed to read candidates", err)
	}
	return nil
}

// prefilterSlack widens the SQL distance cut so float32 rounding in
// pgvector never drops a chunk the exact float64 cosine would keep.
const prefilterSlack = 1e-4

// SemanticCandidatesNear streams candidates ordered by pgvector cosine
// distance to query. Zero-norm vectors have a NaN distance in pgvector and
// sort last; they are cut only when minSimilarity > 0, where their exact
// similarity of 0 could not pass either.
func (s *PostgresStore) SemanticCandidatesNear(ctx context.Context, query []float32, minSimilarity float64, f Filters, fn func(Candidate) error) error {
	if len(query) == 0 {
		return nil
	}
	dim, err := s.Dimension(ctx)
	if err != nil {
		return err
	}
	if dim == 0 {
		return nil
	}
	if len(query) != dim {
		return taxerrors.DimensionMismatch(dim, len(query))
	}

	a := &args{dollar: true}
	q := a.add(pgvector.NewVector(query)) + "::vector"
	where := a.where(f)
	if minSimilarity > 0 {
		where += ` AND c.embedding_vec <=> ` + q + ` <= ` + a.add(1-minSimilarity+prefilterSlack)
	}
	stmt := `SELECT c.id, c.document_id, c.embedding FROM ` + chunkFrom + ` WHERE TRUE` + where +
		` ORDER BY c.embedding_vec <=> ` + q + `, c.seq`
	rows, err := s.pool.Query(ctx, stmt, a.vals...)
	if err != nil {
		return readError("failed to query nearest candidates", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cand Candidate
		var blob []byte
		if err := rows.Scan(&cand.ChunkID, &cand.DocumentID, &blob); err != nil {
			return readError("failed to scan candidate", err)
		}
		if cand.Embedding, err = DecodeEmbedding(blob, dim); err != nil {
			return err
		}
		if err := fn(cand); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return readError("failed to read candidates", err)
	}
	return nil
}

// LexicalSearch ranks by negated ts_rank_cd so lower is better, as with
// bm25() on SQLite.
func (s *PostgresStore) LexicalSearch(ctx context.Context, query string, limit int, f Filters) ([]*LexicalHit, error) {
	terms := QueryTerms(query, nil)
	if len(terms) == 0 || limit <= 0 {
		return []*LexicalHit{}, nil
	}
	dim, err := s.Dimension(ctx)
	if err != nil {
		return nil, err
	}

	a := &args{dollar: true}
	tsq := `websearch_to_tsquery('simple', ` + a.add(websearchQuery(terms)) + `)`
	q := `SELECT ` + chunkColumns + `, (-ts_rank_cd(c.tsv, ` + tsq + `))::float8 AS rank
		FROM ` + chunkFrom + `
		WHERE c.tsv @@ ` + tsq + a.where(f) + `
		ORDER BY rank, c.id
		LIMIT ` + a.add(limit)

	rows, err := s.pool.Query(ctx, q, a.vals...)
	if err != nil {
		return nil, readError("lexical search failed", err)
	}
	defer rows.Close()

	hits := []*LexicalHit{}
	for rows.Next() {
		var rank float64
		c, err := scanChunk(rows, dim, &rank)
		if err != nil {
			return nil, readError("failed to scan lexical hit", err)
		}
		hits = append(hits, &LexicalHit{Chunk: c, Rank: rank})
	}
	if err := rows.Err(); err != nil {
		return nil, readError("failed to read lexical hits", err)
	}
	return hits, nil
}

// websearchQuery renders terms for websearch_to_tsquery as quoted phrases
// joined by "or". Quotes inside a term are dropped.
func websearchQuery(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, "") + `"`
	}
	return strings.Join(quoted, " or ")
}

// Dimension returns the corpus embedding dimension, or 0 before the first write.
func (s *PostgresStore) Dimension(ctx context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if dim := int(s.dim.Load()); dim > 0 {
		return dim, nil
	}
	var v string
	err := s.pool.QueryRow(ctx, `SELECT value FROM store_state WHERE key = $1`, StateKeyDimension).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, readError("failed to read dimension", err)
	}
	dim, err := strconv.Atoi(v)
	if err != nil {
		return 0, taxerrors.New(taxerrors.ErrCodeCorruptStore, "stored dimension is not a number", err)
	}
	s.dim.Store(int64(dim))
	return dim, nil
}

// Stats returns store statistics.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	dim, err := s.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{Dimension: dim, Backend: "postgres"}
	err = s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM document_chunks),
			(SELECT COUNT(*) FROM document_chunks WHERE tsv <> ''::tsvector)`).
		Scan(&st.Documents, &st.Chunks, &st.LexicalEntries)
	if err != nil {
		return nil, readError("failed to read stats", err)
	}
	return st, nil
}

// Close closes the connection pool. It is idempotent.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.pool.Close()
	return nil
}
