package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bikash9609/ca-ai/internal/chunk"
	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
)

func TestSQLiteStore_StoreChunksBatch_RoundTrip(t *testing.T) {
	// Given: a document with three chunks
	s := newTestStore(t)
	ctx := context.Background()
	doc := &Document{ID: "doc-1", ClientID: "acme", DocType: "invoice", Period: "2024-Q1", Category: "gst"}
	require.NoError(t, s.SaveDocument(ctx, doc))

	chunks := []*chunk.Chunk{
		paragraph(2, "third"),
		paragraph(0, "first"),
		paragraph(1, "second"),
	}
	embeddings := [][]float32{{0.1, -0.2, 0.3}, {1.5, 0, -1}, {3.25, 2, 1e-7}}

	// When: stored as one batch
	ids, err := s.StoreChunksBatch(ctx, doc.ID, chunks, embeddings)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	// Then: document chunks come back ordered by chunk index
	got, err := s.GetDocumentChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, chunkTexts(got))

	// And: embeddings round trip exactly, positionally bound to their chunk
	assert.Equal(t, embeddings[1], got[0].Embedding)
	assert.Equal(t, embeddings[2], got[1].Embedding)
	assert.Equal(t, embeddings[0], got[2].Embedding)

	// And: document scope is joined onto each chunk
	assert.Equal(t, "acme", got[0].ClientID)
	assert.Equal(t, "invoice", got[0].DocType)
	assert.Equal(t, "2024-Q1", got[0].Period)
	assert.Equal(t, "gst", got[0].Category)
	assert.Equal(t, chunk.TypeParagraph, got[0].Metadata.Type)
	assert.NoError(t, got[0].MetadataErr)

	// And: the returned ids address the chunks
	c, err := s.GetChunk(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "third", c.Text)

	dim, err := s.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dim)
}

func TestSQLiteStore_StoreChunk_Single(t *testing.T) {
	// Given: a document
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveDocument(ctx, &Document{ID: "doc-1"}))

	// When: storing one chunk
	meta := chunk.Metadata{Type: chunk.TypePage, Page: 3, EndOffset: 4}
	id, err := s.StoreChunk(ctx, "doc-1", 0, "page", []float32{1, 2}, meta)
	require.NoError(t, err)

	// Then: it is readable with its metadata
	c, err := s.GetChunk(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Metadata.Page)
	assert.Equal(t, chunk.TypePage, c.Metadata.Type)
}

func TestSQLiteStore_StoreChunksBatch_LengthMismatch(t *testing.T) {
	// Given: two chunks but one embedding
	s := newTestStore(t)
	ctx := context.Background()

	// When: storing the batch
	_, err := s.StoreChunksBatch(ctx, "doc-1",
		[]*chunk.Chunk{paragraph(0, "a"), paragraph(1, "b")},
		[][]float32{{1, 0}})

	// Then: a validation error is returned and nothing is written
	require.Error(t, err)
	assert.Equal(t, taxerrors.ErrCodeBatchMismatch, taxerrors.GetCode(err))
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Chunks)
}

func TestSQLiteStore_StoreChunksBatch_AllOrNothing(t *testing.T) {
	// Given: a batch whose second row violates the unique chunk index
	s := newTestStore(t)
	ctx := context.Background()
	chunks := []*chunk.Chunk{paragraph(0, "alpha invoice"), paragraph(0, "beta invoice")}

	// When: storing the batch
	_, err := s.StoreChunksBatch(ctx, "doc-1", chunks, unitVectors(2, 4))

	// Then: the batch fails
	require.Error(t, err)

	// And: neither chunk rows nor lexical entries were kept
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Chunks)
	assert.Equal(t, 0, st.LexicalEntries)

	// And: the dimension was not recorded
	dim, err := s.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, dim)
}

func TestSQLiteStore_DimensionFixedAfterFirstWrite(t *testing.T) {
	// Given: a store holding 4-dimensional embeddings
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, &Document{ID: "doc-1"}, paragraph(0, "first"))

	// When: writing a 3-dimensional embedding
	_, err := s.StoreChunksBatch(ctx, "doc-2", []*chunk.Chunk{paragraph(0, "second")}, [][]float32{{1, 2, 3}})

	// Then: the write is rejected as a dimension mismatch
	require.Error(t, err)
	assert.True(t, errors.Is(err, taxerrors.ErrDimensionMismatch))
}

func TestSQLiteStore_StoreChunksBatch_MixedDimensions(t *testing.T) {
	s := newTestStore(t)
	_, err := s.StoreChunksBatch(context.Background(), "doc-1",
		[]*chunk.Chunk{paragraph(0, "a"), paragraph(1, "b")},
		[][]float32{{1, 2}, {1, 2, 3}})
	assert.True(t, errors.Is(err, taxerrors.ErrDimensionMismatch))
}

func TestSQLiteStore_StoreChunksBatch_RejectsInvalidInput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		documentID string
		chunks     []*chunk.Chunk
		embeddings [][]float32
	}{
		{"empty document id", "", []*chunk.Chunk{paragraph(0, "a")}, [][]float32{{1}}},
		{"empty text", "doc-1", []*chunk.Chunk{paragraph(0, "  ")}, [][]float32{{1}}},
		{"negative index", "doc-1", []*chunk.Chunk{paragraph(-1, "a")}, [][]float32{{1}}},
		{"empty embedding", "doc-1", []*chunk.Chunk{paragraph(0, "a")}, [][]float32{{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.StoreChunksBatch(ctx, tt.documentID, tt.chunks, tt.embeddings)
			assert.Equal(t, taxerrors.ErrCodeInvalidInput, taxerrors.GetCode(err))
		})
	}
}

func TestSQLiteStore_GetChunk_NotFound(t *testing.T) {
	s := newTestStore(t)

	c, err := s.GetChunk(context.Background(), "missing")

	assert.Nil(t, c)
	assert.True(t, errors.Is(err, taxerrors.ErrChunkNotFound))
}

func TestSQLiteStore_GetChunks_KeepsRequestedOrder(t *testing.T) {
	// Given: three stored chunks
	s := newTestStore(t)
	ids := seed(t, s, &Document{ID: "doc-1"}, paragraph(0, "a"), paragraph(1, "b"), paragraph(2, "c"))

	// When: fetching in a custom order with an unknown id mixed in
	got, err := s.GetChunks(context.Background(), []string{ids[2], "missing", ids[0]})

	// Then: found chunks follow the requested order
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, chunkTexts(got))
}

func TestSQLiteStore_DeleteDocumentChunks_RemovesLexicalEntries(t *testing.T) {
	// Given: two documents sharing a term
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, &Document{ID: "doc-1"}, paragraph(0, "freight charges"), paragraph(1, "freight tax"))
	seed(t, s, &Document{ID: "doc-2"}, paragraph(0, "freight refund"))

	// When: deleting the first document's chunks
	n, err := s.DeleteDocumentChunks(ctx, "doc-1")
	require.NoError(t, err)

	// Then: both rows were removed
	assert.Equal(t, 2, n)

	// And: lexical search no longer finds them
	hits, err := s.LexicalSearch(ctx, "freight", 10, Filters{})
	require.NoError(t, err)
	assert.Equal(t, []string{"freight refund"}, hitTexts(hits))

	// And: chunk and lexical counts agree
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Chunks)
	assert.Equal(t, 1, st.LexicalEntries)
}

func TestSQLiteStore_DeleteDocumentChunks_Unknown(t *testing.T) {
	s := newTestStore(t)
	n, err := s.DeleteDocumentChunks(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLiteStore_LexicalSearch_IdentifiersWithPunctuation(t *testing.T) {
	// Given: chunks mentioning an invoice number and a GSTIN
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, &Document{ID: "doc-1"},
		paragraph(0, "Invoice INV-001 dated 01/04/2024"),
		paragraph(1, "Supplier GSTIN 27ABCDE1234F1Z5"),
		paragraph(2, "Unrelated note"))

	tests := []struct {
		query string
		want  []string
	}{
		{"INV-001", []string{"Invoice INV-001 dated 01/04/2024"}},
		{"what about 27ABCDE1234F1Z5?", []string{"Supplier GSTIN 27ABCDE1234F1Z5"}},
		{`"unbalanced (quote AND`, []string{}},
		{"", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			// When: searching with punctuation in the query
			hits, err := s.LexicalSearch(ctx, tt.query, 10, Filters{})

			// Then: no syntax error reaches the caller
			require.NoError(t, err)
			assert.Equal(t, tt.want, hitTexts(hits))
		})
	}
}

func TestSQLiteStore_LexicalSearch_RankLowerIsBetter(t *testing.T) {
	// Given: one chunk mentioning the term more often
	s := newTestStore(t)
	seed(t, s, &Document{ID: "doc-1"},
		paragraph(0, "tds deducted on rent, with other unrelated words padding this line out"),
		paragraph(1, "tds tds tds"))

	// When: searching
	hits, err := s.LexicalSearch(context.Background(), "tds", 10, Filters{})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	// Then: the stronger match comes first with the lower rank
	assert.Equal(t, "tds tds tds", hits[0].Chunk.Text)
	assert.Less(t, hits[0].Rank, hits[1].Rank)
}

func TestSQLiteStore_LexicalSearch_Filters(t *testing.T) {
	// Given: the same term in two clients' documents
	s := newTestStore(t)
	seed(t, s, &Document{ID: "doc-1", ClientID: "acme", Period: "2024-Q1"}, paragraph(0, "rent receipt acme"))
	seed(t, s, &Document{ID: "doc-2", ClientID: "globex", Period: "2024-Q1"}, paragraph(0, "rent receipt globex"))

	// When: filtering by client
	hits, err := s.LexicalSearch(context.Background(), "rent", 10, Filters{ClientID: "globex"})

	// Then: only that client's chunk is returned
	require.NoError(t, err)
	assert.Equal(t, []string{"rent receipt globex"}, hitTexts(hits))
}

func TestSQLiteStore_SemanticCandidates_Filters(t *testing.T) {
	// Given: chunks in two clients
	s := newTestStore(t)
	seed(t, s, &Document{ID: "doc-1", ClientID: "acme"}, paragraph(0, "a"), paragraph(1, "b"))
	seed(t, s, &Document{ID: "doc-2", ClientID: "globex"}, paragraph(0, "c"))

	// When: streaming candidates for one client
	var got []Candidate
	err := s.SemanticCandidates(context.Background(), Filters{ClientID: "acme"}, func(c Candidate) error {
		got = append(got, c)
		return nil
	})

	// Then: only that client's chunks are streamed with their embeddings
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, c := range got {
		assert.Equal(t, "doc-1", c.DocumentID)
		assert.Len(t, c.Embedding, 4)
	}
}

func TestSQLiteStore_SemanticCandidates_StopsOnCallbackError(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, &Document{ID: "doc-1"}, paragraph(0, "a"), paragraph(1, "b"))

	stop := errors.New("stop")
	calls := 0
	err := s.SemanticCandidates(context.Background(), Filters{}, func(Candidate) error {
		calls++
		return stop
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestSQLiteStore_ChunksNear_SamePageWindow(t *testing.T) {
	// Given: six chunks where index 4 sits on another page
	s := newTestStore(t)
	seed(t, s, &Document{ID: "doc-1"},
		paragraph(0, "c0"), paragraph(1, "c1"), paragraph(2, "c2"),
		paragraph(3, "c3"), onPage(paragraph(4, "c4"), 2), paragraph(5, "c5"))

	// When: asking for neighbors of chunk 2 within two positions
	got, err := s.ChunksNear(context.Background(), "doc-1", 2, 2, 1)

	// Then: same-page neighbors are returned, excluding the chunk itself
	require.NoError(t, err)
	assert.Equal(t, []string{"c0", "c1", "c3"}, chunkTexts(got))
}

func TestSQLiteStore_TableHeader(t *testing.T) {
	// Given: a table with a header chunk and row chunks
	s := newTestStore(t)
	seed(t, s, &Document{ID: "doc-1"},
		tableRow(0, 0, true, "Date | Vendor | Amount"),
		tableRow(1, 0, false, "01/04/2024 | Acme | 100"),
		tableRow(2, 1, false, "other table row"))

	// When: looking up headers
	header, err := s.TableHeader(context.Background(), "doc-1", 0)
	require.NoError(t, err)
	none, err := s.TableHeader(context.Background(), "doc-1", 1)
	require.NoError(t, err)

	// Then: only the first table has one
	require.NotNil(t, header)
	assert.Equal(t, "Date | Vendor | Amount", header.Text)
	assert.True(t, header.Metadata.TableRow.IsHeader)
	assert.Nil(t, none)
}

func TestSQLiteStore_ChunksByVendor(t *testing.T) {
	// Given: vendor chunks across documents and clients
	s := newTestStore(t)
	seed(t, s, &Document{ID: "doc-1", ClientID: "acme"}, withVendor(paragraph(0, "Bill from Sharma Traders"), "Sharma Traders"))
	seed(t, s, &Document{ID: "doc-2", ClientID: "acme"},
		withVendor(paragraph(0, "Payment to vendor"), "SHARMA  traders"),
		paragraph(1, "Ledger entry sharma traders paid"),
		withVendor(paragraph(2, "Other vendor"), "Kumar"))
	seed(t, s, &Document{ID: "doc-3", ClientID: "globex"}, withVendor(paragraph(0, "Sharma Traders elsewhere"), "Sharma Traders"))

	ctx := context.Background()

	// When: querying with substring matching enabled
	got, err := s.ChunksByVendor(ctx, VendorQuery{
		ClientID: "acme", Vendor: "Sharma Traders", ExcludeDocumentID: "doc-1", Limit: 3, MinSubstring: 8,
	})
	require.NoError(t, err)

	// Then: structured and text matches from the client's other documents are returned
	assert.Equal(t, []string{"Payment to vendor", "Ledger entry sharma traders paid"}, chunkTexts(got))

	// When: substring matching does not apply
	got, err = s.ChunksByVendor(ctx, VendorQuery{
		ClientID: "acme", Vendor: "Sharma Traders", ExcludeDocumentID: "doc-1", Limit: 3,
	})
	require.NoError(t, err)

	// Then: only the structured vendor match is returned
	assert.Equal(t, []string{"Payment to vendor"}, chunkTexts(got))
}

func TestSQLiteStore_MalformedMetadata(t *testing.T) {
	// Given: a chunk whose stored metadata was corrupted
	s := newTestStore(t)
	ctx := context.Background()
	ids := seed(t, s, &Document{ID: "doc-1"}, paragraph(0, "good"), paragraph(1, "bad"))
	_, err := s.db.Exec(`UPDATE document_chunks SET metadata = '{broken' WHERE id = ?`, ids[1])
	require.NoError(t, err)

	// When: reading the document's chunks
	got, err := s.GetDocumentChunks(ctx, "doc-1")

	// Then: the read succeeds and the bad chunk carries its error
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NoError(t, got[0].MetadataErr)
	assert.True(t, errors.Is(got[1].MetadataErr, taxerrors.ErrMalformedMetadata))

	// And: fetching the bad chunk directly reports the error
	_, err = s.GetChunk(ctx, ids[1])
	assert.True(t, errors.Is(err, taxerrors.ErrMalformedMetadata))
}

func TestSQLiteStore_SaveDocument_Upsert(t *testing.T) {
	// Given: a saved document
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveDocument(ctx, &Document{ID: "doc-1", ClientID: "acme", Period: "2023"}))

	// When: saving it again with a new period
	require.NoError(t, s.SaveDocument(ctx, &Document{ID: "doc-1", ClientID: "acme", Period: "2024"}))

	// Then: the update is visible
	d, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "2024", d.Period)

	missing, err := s.GetDocument(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStore_ConcurrentWritesToDifferentDocuments(t *testing.T) {
	// Given: a store on disk
	s, err := NewSQLiteStore(t.TempDir() + "/taxctx.db")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	// When: eight documents are written concurrently
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			_, err := s.StoreChunksBatch(ctx, id,
				[]*chunk.Chunk{paragraph(0, "doc "+id), paragraph(1, "more "+id)},
				unitVectors(2, 4))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	// Then: every write succeeds and all chunks are present
	for err := range errs {
		require.NoError(t, err)
	}
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 16, st.Chunks)
	assert.Equal(t, 16, st.LexicalEntries)
}

func TestSQLiteStore_ClosedStore(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.GetDocumentChunks(context.Background(), "doc-1")
	assert.Error(t, err)
}

func TestNewSQLiteStoreWithConfig_UnknownLexicalBackend(t *testing.T) {
	_, err := NewSQLiteStoreWithConfig("", SQLiteConfig{LexicalBackend: "lucene"})
	assert.Equal(t, taxerrors.ErrCodeConfigInvalid, taxerrors.GetCode(err))
}
