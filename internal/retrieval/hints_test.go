package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Bikash9609/ca-ai/internal/chunk"
	"github.com/Bikash9609/ca-ai/internal/store"
)

func TestPeriodHints(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"gst paid in April 2024", []string{"april2024", "2024-04", "2024"}},
		{"Q3 FY 2023-24 returns", []string{"fy2023-24", "q3", "2023"}},
		{"fy24 summary", []string{"fy24"}},
		{"returns filed in 2022", []string{"2022"}},
		{"what did fyodor send", nil},
		{"quarterly summary", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, periodHints(tt.query))
		})
	}
}

func TestParseHints_YearsInsideIdentifiersAreNotPeriods(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"status of INV-2024-001", nil},
		{"payment against INV/2023/45", nil},
		{"INV-2024-001 booked in April 2023", []string{"april2023", "2023-04", "2023"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			h := parseHints(tt.query)
			assert.NotEmpty(t, h.identifiers)
			assert.Equal(t, tt.want, h.periods)
		})
	}
}

func TestMatchesPeriod(t *testing.T) {
	c := &store.Chunk{Period: "FY 2023-24"}

	assert.True(t, matchesPeriod(c, []string{"fy2023-24"}))
	assert.True(t, matchesPeriod(c, []string{"2019", "2023"}))
	assert.False(t, matchesPeriod(c, []string{"2022"}))
	assert.False(t, matchesPeriod(&store.Chunk{}, []string{"2023"}))
}

func TestParseHints_Payment(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"TDS deducted on rent", true},
		{"dues register", false},
		{"amount due from client", true},
		{"list of invoices", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, parseHints(tt.query).payment)
		})
	}
}

func TestMatchesPaymentIntent(t *testing.T) {
	para := &store.Chunk{Text: "general terms", Metadata: chunk.Metadata{Type: chunk.TypeParagraph}}
	paid := &store.Chunk{Text: "Advance received", Metadata: chunk.Metadata{Type: chunk.TypeParagraph}}
	inv := &store.Chunk{Text: "Invoice 7", Metadata: chunk.Metadata{Type: chunk.TypeInvoiceBlock}}

	assert.False(t, matchesPaymentIntent(para))
	assert.True(t, matchesPaymentIntent(paid))
	assert.True(t, matchesPaymentIntent(inv))
}

func TestParseHints_Identifiers(t *testing.T) {
	h := parseHints("invoices of ABCDE1234F for bill/2024/17")
	assert.Contains(t, h.identifiers, "ABCDE1234F")
	assert.Contains(t, h.identifiers, "bill/2024/17")
}
