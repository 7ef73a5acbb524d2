package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Bikash9609/ca-ai/internal/chunk"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func paragraph(index int, text string) *chunk.Chunk {
	return &chunk.Chunk{
		Index: index,
		Text:  text,
		Metadata: chunk.Metadata{
			Type:      chunk.TypeParagraph,
			Page:      1,
			EndOffset: len([]rune(text)),
		},
	}
}

func onPage(c *chunk.Chunk, page int) *chunk.Chunk {
	c.Metadata.Page = page
	return c
}

func withVendor(c *chunk.Chunk, vendor string) *chunk.Chunk {
	c.Metadata.Vendor = vendor
	return c
}

func tableRow(index, tableIndex int, header bool, text string) *chunk.Chunk {
	return &chunk.Chunk{
		Index: index,
		Text:  text,
		Metadata: chunk.Metadata{
			Type:      chunk.TypeTableRow,
			Page:      1,
			EndOffset: len([]rune(text)),
			TableRow:  &chunk.TableRow{TableIndex: tableIndex, RowIndex: index, IsHeader: header},
		},
	}
}

// unitVectors returns n distinct vectors of dimension dim.
func unitVectors(n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		v[i%dim] = 1
		out[i] = v
	}
	return out
}

// seed saves a document and stores chunks with distinct embeddings.
func seed(t *testing.T, s Store, doc *Document, chunks ...*chunk.Chunk) []string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveDocument(ctx, doc))
	ids, err := s.StoreChunksBatch(ctx, doc.ID, chunks, unitVectors(len(chunks), 4))
	require.NoError(t, err)
	require.Len(t, ids, len(chunks))
	return ids
}

func chunkTexts(chunks []*Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func hitTexts(hits []*LexicalHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Chunk.Text
	}
	return out
}
