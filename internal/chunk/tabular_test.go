package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTabularStrategy_Chunk_GroupsByVendor(t *testing.T) {
	// Given: a CSV with a vendor column and interleaved vendors
	s := NewTabularStrategy(DefaultOptions())
	text := "Date,Vendor,Amount\n" +
		"01-04-2024,Acme Traders,1000\n" +
		"02-04-2024,Beta Corp,2000\n" +
		"03-04-2024,Acme Traders,1500\n"

	// When: chunking
	chunks := s.Chunk(text)

	// Then: one chunk per vendor in first-appearance order
	require.Len(t, chunks, 2)
	assert.Equal(t, "Date,Vendor,Amount\n01-04-2024,Acme Traders,1000\n03-04-2024,Acme Traders,1500", chunks[0].Text)
	assert.Equal(t, "Acme Traders", chunks[0].Metadata.Vendor)
	assert.Equal(t, "Beta Corp", chunks[1].Metadata.Vendor)
	for _, c := range chunks {
		assert.Equal(t, TypeTableRow, c.Metadata.Type)
		require.NotNil(t, c.Metadata.TableRow)
		assert.Equal(t, "Date,Vendor,Amount", c.Metadata.TableRow.Header)
	}
	assert.Equal(t, 0, chunks[0].Metadata.TableRow.RowIndex)
	assert.Equal(t, 1, chunks[1].Metadata.TableRow.RowIndex)
}

func TestTabularStrategy_Chunk_GroupOverflow(t *testing.T) {
	// Given: five rows for one GSTIN and a group cap of two
	s := NewTabularStrategy(Options{MaxGroupRows: 2})
	var b strings.Builder
	b.WriteString("GSTIN\tInvoice\tAmount\n")
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, "27ABCDE1234F1Z5\tINV-%d\t%d\n", i, 100*(i+1))
	}

	// When: chunking
	chunks := s.Chunk(b.String())

	// Then: the group overflows into new chunks for the same key
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.Equal(t, "27ABCDE1234F1Z5", c.Metadata.Vendor)
		assert.True(t, strings.HasPrefix(c.Text, "GSTIN\tInvoice\tAmount\n"))
	}
	assert.Equal(t, 3, strings.Count(chunks[0].Text, "\n")+1)
	assert.Equal(t, 2, strings.Count(chunks[2].Text, "\n")+1)
}

func TestTabularStrategy_Chunk_BatchesWithoutVendorColumn(t *testing.T) {
	// Given: 25 rows and no vendor-like column
	s := NewTabularStrategy(DefaultOptions())
	var b strings.Builder
	b.WriteString("Date,Description,Amount\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, "01-04-2024,Expense %d,%d\n", i, i+1)
	}

	// When: chunking
	chunks := s.Chunk(b.String())

	// Then: batches of ten rows, each repeating the header
	require.Len(t, chunks, 3)
	assert.Equal(t, 10, chunks[1].Metadata.TableRow.RowIndex)
	assert.Equal(t, 20, chunks[2].Metadata.TableRow.RowIndex)
	for _, c := range chunks {
		assert.True(t, strings.HasPrefix(c.Text, "Date,Description,Amount\n"))
		assert.Empty(t, c.Metadata.Vendor)
	}
	assert.Equal(t, 6, strings.Count(chunks[2].Text, "\n")+1)
}

func TestTabularStrategy_Chunk_QuotedCSV(t *testing.T) {
	s := NewTabularStrategy(DefaultOptions())
	text := "Party Name,Amount\n\"Acme Traders, Pune\",1000\n"

	chunks := s.Chunk(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, "Acme Traders, Pune", chunks[0].Metadata.Vendor)
}

func TestTabularStrategy_Chunk_HeaderOnly(t *testing.T) {
	s := NewTabularStrategy(DefaultOptions())

	assert.Nil(t, s.Chunk("Date,Vendor,Amount\n\n"))
}

func TestVendorColumn(t *testing.T) {
	tests := []struct {
		headers []string
		want    int
	}{
		{[]string{"Date", "Supplier Name", "Amount"}, 1},
		{[]string{"PAN", "Vendor"}, 1},
		{[]string{"Date", "Amount"}, -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, vendorColumn(tt.headers), strings.Join(tt.headers, ","))
	}
}
