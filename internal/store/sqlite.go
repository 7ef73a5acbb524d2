package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Bikash9609/ca-ai/internal/chunk"
	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
)

// Lexical backends for the SQLite store.
const (
	LexicalFTS5  = "fts5"
	LexicalBleve = "bleve"
)

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// CacheSizeMB is the SQLite page cache size (default: 64).
	CacheSizeMB int
	// LexicalBackend is "fts5" (default) or "bleve".
	LexicalBackend string
	// BlevePath is the Bleve index directory; empty means in-memory.
	BlevePath string
	// Lexical overrides the Bleve index when LexicalBackend is "bleve".
	Lexical LexicalIndex
	Logger  *slog.Logger
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{CacheSizeMB: 64, LexicalBackend: LexicalFTS5}
}

// SQLiteStore implements Store on SQLite. Chunk rows and FTS5 entries are
// written and deleted in one transaction; with a Bleve side index the SQL
// commit follows a successful Bleve batch and is compensated if it fails.
type SQLiteStore struct {
	mu       sync.RWMutex // guards closed
	db       *sql.DB
	path     string
	lexical  LexicalIndex // nil for FTS5
	docLocks *KeyedMutex
	logger   *slog.Logger
	closed   bool
	dim      atomic.Int64
}

var _ Store = (*SQLiteStore)(nil)

// validateSQLiteIntegrity checks an existing database file before opening.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// NewSQLiteStore opens the store at path with default configuration.
// An empty path creates an in-memory store for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(path, DefaultSQLiteConfig())
}

// NewSQLiteStoreWithConfig opens the store at path.
func NewSQLiteStoreWithConfig(path string, cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.CacheSizeMB <= 0 {
		cfg.CacheSizeMB = DefaultSQLiteConfig().CacheSizeMB
	}
	if cfg.LexicalBackend == "" {
		cfg.LexicalBackend = LexicalFTS5
	}
	if cfg.LexicalBackend != LexicalFTS5 && cfg.LexicalBackend != LexicalBleve {
		return nil, taxerrors.ConfigError("unknown lexical backend: "+cfg.LexicalBackend, nil).
			WithSuggestion("use 'fts5' or 'bleve'")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, taxerrors.PersistenceError(true, "failed to create store directory", err)
		}
		if err := validateSQLiteIntegrity(path); err != nil {
			return nil, taxerrors.New(taxerrors.ErrCodeCorruptStore, "store database failed integrity check", err).
				WithDetail("path", path)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, taxerrors.PersistenceError(false, "failed to open database", err)
	}

	// Single connection: one writer, and in-memory databases are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Pragmas are set by statement; modernc.org/sqlite ignores most DSN params.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", cfg.CacheSizeMB*1024),
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, taxerrors.PersistenceError(true, "failed to set pragma", err)
		}
	}

	s := &SQLiteStore{
		db:       db,
		path:     path,
		docLocks: NewKeyedMutex(),
		logger:   logger,
	}

	if err := s.initSchema(cfg.LexicalBackend == LexicalFTS5); err != nil {
		_ = db.Close()
		return nil, taxerrors.PersistenceError(true, "failed to initialize schema", err)
	}

	if cfg.LexicalBackend == LexicalBleve {
		s.lexical = cfg.Lexical
		if s.lexical == nil {
			idx, err := NewBleveIndex(cfg.BlevePath)
			if err != nil {
				_ = db.Close()
				return nil, taxerrors.PersistenceError(false, "failed to open lexical index", err)
			}
			s.lexical = idx
		}
		if err := s.syncLexical(context.Background()); err != nil {
			_ = s.lexical.Close()
			_ = db.Close()
			return nil, err
		}
	}

	return s, nil
}

func (s *SQLiteStore) initSchema(fts bool) error {
	schema := `
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
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_client ON documents(client_id);

	-- seq is the FTS5 rowid; id is the public chunk id.
	CREATE TABLE IF NOT EXISTS document_chunks (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		id          TEXT NOT NULL UNIQUE,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text        TEXT NOT NULL,
		embedding   BLOB NOT NULL,
		metadata    TEXT NOT NULL,
		chunk_type  TEXT NOT NULL,
		page        INTEGER NOT NULL DEFAULT 0,
		vendor      TEXT NOT NULL DEFAULT '',
		table_index INTEGER,
		is_header   INTEGER NOT NULL DEFAULT 0,
		created_at  INTEGER NOT NULL,
		UNIQUE(document_id, chunk_index)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_vendor ON document_chunks(vendor);
	`
	if fts {
		schema += `
	CREATE VIRTUAL TABLE IF NOT EXISTS document_fts USING fts5(
		text,
		tokenize='unicode61'
	);
	`
	}
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO store_state(key, value) VALUES (?, ?)`,
		StateKeySchemaVersion, strconv.Itoa(CurrentSchemaVersion))
	return err
}

// syncLexical refills the side index when its size disagrees with the
// chunk table, e.g. after it was cleared for corruption.
func (s *SQLiteStore) syncLexical(ctx context.Context) error {
	var rows int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&rows); err != nil {
		return taxerrors.PersistenceError(false, "failed to count chunks", err)
	}
	entries, err := s.lexical.Count()
	if err != nil {
		return taxerrors.PersistenceError(false, "failed to count lexical entries", err)
	}
	if rows == entries {
		return nil
	}

	s.logger.Warn("lexical_index_rebuild",
		slog.Int("chunks", rows),
		slog.Int("entries", entries))

	r, err := s.db.QueryContext(ctx, `SELECT id, text FROM document_chunks ORDER BY seq`)
	if err != nil {
		return taxerrors.PersistenceError(false, "failed to read chunks", err)
	}
	var docs []LexicalDoc
	for r.Next() {
		var d LexicalDoc
		if err := r.Scan(&d.ID, &d.Text); err != nil {
			_ = r.Close()
			return taxerrors.PersistenceError(false, "failed to scan chunk", err)
		}
		docs = append(docs, d)
	}
	_ = r.Close()
	if err := r.Err(); err != nil {
		return taxerrors.PersistenceError(false, "failed to read chunks", err)
	}
	if err := s.lexical.Index(ctx, docs); err != nil {
		return taxerrors.PersistenceError(true, "failed to rebuild lexical index", err)
	}
	return nil
}

func (s *SQLiteStore) useFTS() bool { return s.lexical == nil }

func (s *SQLiteStore) checkOpen() error {
	if s.closed {
		return taxerrors.PersistenceError(false, "store is closed", nil)
	}
	return nil
}

// SaveDocument inserts or updates a document.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *Document) error {
	if doc == nil || strings.TrimSpace(doc.ID) == "" {
		return taxerrors.InputError("document id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	now := nowMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, client_id, doc_type, period, category, file_type, file_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client_id  = excluded.client_id,
			doc_type   = excluded.doc_type,
			period     = excluded.period,
			category   = excluded.category,
			file_type  = excluded.file_type,
			file_path  = excluded.file_path,
			updated_at = excluded.updated_at`,
		doc.ID, doc.ClientID, doc.DocType, doc.Period, doc.Category, doc.FileType, doc.FilePath, now, now)
	if err != nil {
		return taxerrors.PersistenceError(true, "failed to save document", err).WithDetail("document_id", doc.ID)
	}
	return nil
}

// GetDocument returns the document, or nil without error when it does not exist.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var d Document
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, doc_type, period, category, file_type, file_path, created_at, updated_at
		FROM documents WHERE id = ?`, id).
		Scan(&d.ID, &d.ClientID, &d.DocType, &d.Period, &d.Category, &d.FileType, &d.FilePath, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, taxerrors.PersistenceError(false, "failed to get document", err).WithDetail("document_id", id)
	}
	d.CreatedAt, d.UpdatedAt = fromMilli(created), fromMilli(updated)
	return &d, nil
}

// StoreChunk persists a single chunk and returns its id.
func (s *SQLiteStore) StoreChunk(ctx context.Context, documentID string, chunkIndex int, text string, embedding []float32, meta chunk.Metadata) (string, error) {
	ids, err := s.StoreChunksBatch(ctx, documentID,
		[]*chunk.Chunk{{DocumentID: documentID, Index: chunkIndex, Text: text, Metadata: meta}},
		[][]float32{embedding})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// StoreChunksBatch persists chunks[i] with embeddings[i] in one transaction.
func (s *SQLiteStore) StoreChunksBatch(ctx context.Context, documentID string, chunks []*chunk.Chunk, embeddings [][]float32) ([]string, error) {
	rows, dim, err := prepareRows(documentID, chunks, embeddings)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []string{}, nil
	}

	unlock := s.docLocks.Lock(documentID)
	defer unlock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, taxerrors.PersistenceError(true, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := checkDimensionSQL(ctx, tx, false, dim); err != nil {
		return nil, err
	}

	insertStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_chunks
			(id, document_id, chunk_index, text, embedding, metadata, chunk_type, page, vendor, table_index, is_header, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, taxerrors.PersistenceError(true, "failed to prepare chunk statement", err)
	}
	defer insertStmt.Close()

	var ftsStmt *sql.Stmt
	if s.useFTS() {
		ftsStmt, err = tx.PrepareContext(ctx, `INSERT INTO document_fts(rowid, text) VALUES (?, ?)`)
		if err != nil {
			return nil, taxerrors.PersistenceError(true, "failed to prepare FTS statement", err)
		}
		defer ftsStmt.Close()
	}

	now := nowMilli()
	ids := make([]string, len(rows))
	docs := make([]LexicalDoc, 0, len(rows))
	for i, r := range rows {
		res, err := insertStmt.ExecContext(ctx,
			r.id, documentID, r.index, r.text, EncodeEmbedding(r.embedding), string(r.metaJSON),
			string(r.meta.Type), r.meta.Page, r.vendorKey(), r.tableIndex(), r.isHeader(), now)
		if err != nil {
			return nil, taxerrors.PersistenceError(true, "failed to insert chunk", err).
				WithDetail("document_id", documentID).
				WithDetail("chunk_index", strconv.Itoa(r.index))
		}
		if ftsStmt != nil {
			seq, err := res.LastInsertId()
			if err != nil {
				return nil, taxerrors.PersistenceError(true, "failed to read chunk rowid", err)
			}
			if _, err := ftsStmt.ExecContext(ctx, seq, r.text); err != nil {
				return nil, taxerrors.PersistenceError(true, "failed to index chunk text", err)
			}
		}
		ids[i] = r.id
		docs = append(docs, LexicalDoc{ID: r.id, Text: r.text})
	}

	if !s.useFTS() {
		if err := s.lexical.Index(ctx, docs); err != nil {
			return nil, taxerrors.PersistenceError(true, "failed to index chunk text", err)
		}
	}
	if err := tx.Commit(); err != nil {
		if !s.useFTS() {
			s.compensate(ctx, "delete", func() error { return s.lexical.Delete(ctx, ids) })
		}
		return nil, taxerrors.PersistenceError(true, "failed to commit chunks", err)
	}
	s.dim.Store(int64(dim))
	return ids, nil
}

// DeleteDocumentChunks removes every chunk of the document together with
// its lexical entries and returns how many were removed.
func (s *SQLiteStore) DeleteDocumentChunks(ctx context.Context, documentID string) (int, error) {
	unlock := s.docLocks.Lock(documentID)
	defer unlock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, taxerrors.PersistenceError(true, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var removed []LexicalDoc
	if s.useFTS() {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM document_fts WHERE rowid IN (
				SELECT seq FROM document_chunks WHERE document_id = ?)`, documentID); err != nil {
			return 0, taxerrors.PersistenceError(true, "failed to delete lexical entries", err)
		}
	} else {
		removed, err = lexicalDocsTx(ctx, tx, documentID)
		if err != nil {
			return 0, err
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, taxerrors.PersistenceError(true, "failed to delete chunks", err).WithDetail("document_id", documentID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, taxerrors.PersistenceError(true, "failed to count deleted chunks", err)
	}

	if len(removed) > 0 {
		ids := make([]string, len(removed))
		for i, d := range removed {
			ids[i] = d.ID
		}
		if err := s.lexical.Delete(ctx, ids); err != nil {
			return 0, taxerrors.PersistenceError(true, "failed to delete lexical entries", err)
		}
	}
	if err := tx.Commit(); err != nil {
		if len(removed) > 0 {
			s.compensate(ctx, "reindex", func() error { return s.lexical.Index(ctx, removed) })
		}
		return 0, taxerrors.PersistenceError(true, "failed to commit delete", err)
	}
	return int(n), nil
}

func lexicalDocsTx(ctx context.Context, tx *sql.Tx, documentID string) ([]LexicalDoc, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, text FROM document_chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, taxerrors.PersistenceError(false, "failed to read chunks", err)
	}
	defer rows.Close()
	var docs []LexicalDoc
	for rows.Next() {
		var d LexicalDoc
		if err := rows.Scan(&d.ID, &d.Text); err != nil {
			return nil, taxerrors.PersistenceError(false, "failed to scan chunk", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// compensate undoes a side index change after a failed commit.
func (s *SQLiteStore) compensate(ctx context.Context, op string, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Error("lexical_compensation_failed",
			slog.String("op", op),
			slog.String("error", err.Error()))
	}
}

// GetChunk returns the chunk with id, or ErrChunkNotFound.
func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	dim, err := s.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM `+chunkFrom+` WHERE c.id = ?`, id)
	c, err := scanChunk(row, dim)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chunkNotFound(id)
	}
	if err != nil {
		return nil, readError("failed to get chunk", err)
	}
	if c.MetadataErr != nil {
		return nil, c.MetadataErr
	}
	return c, nil
}

// GetChunks returns the chunks with the given ids in the order given.
// Unknown ids are skipped.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return []*Chunk{}, nil
	}
	a := &args{}
	q := `SELECT ` + chunkColumns + ` FROM ` + chunkFrom + ` WHERE c.id IN (` + a.list(ids) + `)`
	chunks, err := s.queryChunks(ctx, q, a.vals...)
	if err != nil {
		return nil, err
	}
	return orderByIDs(ids, chunks), nil
}

// GetDocumentChunks returns the document's chunks ordered by chunk index.
func (s *SQLiteStore) GetDocumentChunks(ctx context.Context, documentID string) ([]*Chunk, error) {
	return s.queryChunks(ctx, `SELECT `+chunkColumns+` FROM `+chunkFrom+`
		WHERE c.document_id = ? ORDER BY c.chunk_index`, documentID)
}

// ChunksNear returns chunks of the document on the same page within window
// positions of chunkIndex, excluding chunkIndex itself.
func (s *SQLiteStore) ChunksNear(ctx context.Context, documentID string, chunkIndex, window, page int) ([]*Chunk, error) {
	if window <= 0 {
		return []*Chunk{}, nil
	}
	return s.queryChunks(ctx, `SELECT `+chunkColumns+` FROM `+chunkFrom+`
		WHERE c.document_id = ? AND c.chunk_index BETWEEN ? AND ? AND c.chunk_index <> ? AND c.page = ?
		ORDER BY c.chunk_index`,
		documentID, chunkIndex-window, chunkIndex+window, chunkIndex, page)
}

// TableHeader returns the header chunk of a table, or nil when the table
// has none.
func (s *SQLiteStore) TableHeader(ctx context.Context, documentID string, tableIndex int) (*Chunk, error) {
	chunks, err := s.queryChunks(ctx, `SELECT `+chunkColumns+` FROM `+chunkFrom+`
		WHERE c.document_id = ? AND c.table_index = ? AND c.is_header = 1
		ORDER BY c.chunk_index LIMIT 1`, documentID, tableIndex)
	if err != nil || len(chunks) == 0 {
		return nil, err
	}
	return chunks[0], nil
}

// ChunksByVendor returns chunks of the client's other documents that share
// the vendor, ordered by document and chunk index.
func (s *SQLiteStore) ChunksByVendor(ctx context.Context, q VendorQuery) ([]*Chunk, error) {
	key := vendorKey(q.Vendor)
	if key == "" || q.Limit <= 0 {
		return []*Chunk{}, nil
	}
	a := &args{}
	match := `c.vendor = ` + a.add(key)
	if q.MinSubstring > 0 && len([]rune(key)) >= q.MinSubstring {
		match = `(` + match + ` OR instr(lower(c.text), ` + a.add(key) + `) > 0)`
	}
	query := `SELECT ` + chunkColumns + ` FROM ` + chunkFrom + `
		WHERE COALESCE(d.client_id, '') = ` + a.add(q.ClientID) + `
		AND c.document_id <> ` + a.add(q.ExcludeDocumentID) + `
		AND ` + match + `
		ORDER BY c.document_id, c.chunk_index LIMIT ` + a.add(q.Limit)
	return s.queryChunks(ctx, query, a.vals...)
}

func (s *SQLiteStore) queryChunks(ctx context.Context, query string, vals ...any) ([]*Chunk, error) {
	dim, err := s.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, vals...)
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

// SemanticCandidates streams the id and embedding of every chunk matching
// f. fn must not call back into the store.
func (s *SQLiteStore) SemanticCandidates(ctx context.Context, f Filters, fn func(Candidate) error) error {
	dim, err := s.Dimension(ctx)
	if err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	a := &args{}
	query := `SELECT c.id, c.document_id, c.embedding FROM ` + chunkFrom + ` WHERE 1=1` + a.where(f) + ` ORDER BY c.seq`
	rows, err := s.db.QueryContext(ctx, query, a.vals...)
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

// LexicalSearch returns chunks matching any query term, best first. Rank
// is bm25() for FTS5 and the negated score for Bleve; lower is better.
func (s *SQLiteStore) LexicalSearch(ctx context.Context, query string, limit int, f Filters) ([]*LexicalHit, error) {
	terms := QueryTerms(query, nil)
	if len(terms) == 0 || limit <= 0 {
		return []*LexicalHit{}, nil
	}
	if !s.useFTS() {
		return s.lexicalSearchSide(ctx, query, limit, f)
	}

	dim, err := s.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	a := &args{}
	match := a.add(FTSQuery(terms))
	q := `SELECT ` + chunkColumns + `, bm25(document_fts) AS rank
		FROM document_fts
		JOIN document_chunks c ON c.seq = document_fts.rowid
		LEFT JOIN documents d ON d.id = c.document_id
		WHERE document_fts MATCH ` + match + a.where(f) + `
		ORDER BY rank, c.id
		LIMIT ` + a.add(limit)

	rows, err := s.db.QueryContext(ctx, q, a.vals...)
	if err != nil {
		// Sanitized queries should not hit the FTS5 parser; treat it as no match.
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			s.logger.Debug("fts_query_rejected", slog.String("error", err.Error()))
			return []*LexicalHit{}, nil
		}
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

// lexicalSearchSide queries the Bleve index and applies filters by
// joining the hits against the chunk table.
func (s *SQLiteStore) lexicalSearchSide(ctx context.Context, query string, limit int, f Filters) ([]*LexicalHit, error) {
	fetch := limit
	if !f.IsZero() {
		fetch = limit * 4
	}
	scored, err := s.lexical.Search(ctx, query, fetch)
	if err != nil {
		return nil, readError("lexical search failed", err)
	}
	if len(scored) == 0 {
		return []*LexicalHit{}, nil
	}

	ids := make([]string, len(scored))
	for i, h := range scored {
		ids[i] = h.ID
	}
	a := &args{}
	q := `SELECT ` + chunkColumns + ` FROM ` + chunkFrom + ` WHERE c.id IN (` + a.list(ids) + `)` + a.where(f)
	chunks, err := s.queryChunks(ctx, q, a.vals...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	hits := make([]*LexicalHit, 0, limit)
	for _, h := range scored {
		c, ok := byID[h.ID]
		if !ok {
			continue
		}
		hits = append(hits, &LexicalHit{Chunk: c, Rank: -h.Score})
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

// Dimension returns the corpus embedding dimension, or 0 before the first
// chunk is written.
func (s *SQLiteStore) Dimension(ctx context.Context) (int, error) {
	s.mu.RLock()
	if err := s.checkOpen(); err != nil {
		s.mu.RUnlock()
		return 0, err
	}
	s.mu.RUnlock()
	if dim := int(s.dim.Load()); dim > 0 {
		return dim, nil
	}

	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_state WHERE key = ?`, StateKeyDimension).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
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
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	dim, err := s.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	st := &Stats{Dimension: dim, Backend: "sqlite/" + LexicalFTS5}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&st.Documents); err != nil {
		return nil, readError("failed to count documents", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&st.Chunks); err != nil {
		return nil, readError("failed to count chunks", err)
	}
	if s.useFTS() {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_fts`).Scan(&st.LexicalEntries); err != nil {
			return nil, readError("failed to count lexical entries", err)
		}
		return st, nil
	}
	st.Backend = "sqlite/" + LexicalBleve
	if st.LexicalEntries, err = s.lexical.Count(); err != nil {
		return nil, readError("failed to count lexical entries", err)
	}
	return st, nil
}

// Close checkpoints the WAL and closes the database. It is idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.lexical != nil {
		errs = append(errs, s.lexical.Close())
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// sqlQuerier is the subset of *sql.Tx used by checkDimensionSQL.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkDimensionSQL records dim as the corpus dimension on first write and
// rejects any other dimension afterwards.
func checkDimensionSQL(ctx context.Context, q sqlQuerier, dollar bool, dim int) error {
	a := &args{dollar: dollar}
	insert := `INSERT INTO store_state(key, value) VALUES (` + a.add(StateKeyDimension) + `, ` + a.add(strconv.Itoa(dim)) + `)
		ON CONFLICT(key) DO NOTHING`
	if _, err := q.ExecContext(ctx, insert, a.vals...); err != nil {
		return taxerrors.PersistenceError(true, "failed to record dimension", err)
	}

	b := &args{dollar: dollar}
	var v string
	if err := q.QueryRowContext(ctx, `SELECT value FROM store_state WHERE key = `+b.add(StateKeyDimension), b.vals...).Scan(&v); err != nil {
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

// readError keeps typed errors (dimension mismatch, not found) and wraps
// anything else as a persistence read failure.
func readError(msg string, err error) error {
	var te *taxerrors.Error
	if errors.As(err, &te) {
		return err
	}
	return taxerrors.PersistenceError(false, msg, err)
}
