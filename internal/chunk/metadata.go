package chunk

import (
	"encoding/json"
	"fmt"
	"strings"

	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
)

// Metadata is the chunk's tagged variant. Type selects the payload:
// TableRow is set exactly for table_row chunks and Invoice exactly for
// invoice_block chunks; paragraph and page chunks carry no payload.
type Metadata struct {
	Type        Type     `json:"chunk_type"`
	Page        int      `json:"page,omitempty"`
	Section     string   `json:"section,omitempty"`
	StartOffset int      `json:"start_offset"`
	EndOffset   int      `json:"end_offset"`
	Vendor      string   `json:"vendor,omitempty"`
	Entities    Entities `json:"entities"`

	TableRow *TableRow `json:"table_row,omitempty"`
	Invoice  *Invoice  `json:"invoice,omitempty"`
}

// TableRow is the payload of a table_row chunk.
type TableRow struct {
	TableIndex int    `json:"table_index"`
	RowIndex   int    `json:"row_index"`
	Header     string `json:"header,omitempty"`
	// IsHeader marks the chunk holding only the table's header line.
	IsHeader bool `json:"is_header,omitempty"`
}

// Invoice is the payload of an invoice_block chunk.
type Invoice struct {
	Number string `json:"number,omitempty"`
	Anchor string `json:"anchor,omitempty"`
}

// Entities are identifiers and values extracted from chunk text.
type Entities struct {
	Dates          []string  `json:"dates,omitempty"`
	Amounts        []float64 `json:"amounts,omitempty"`
	PANs           []string  `json:"pan_numbers,omitempty"`
	GSTINs         []string  `json:"gstin_numbers,omitempty"`
	InvoiceNumbers []string  `json:"invoice_numbers,omitempty"`
	Names          []string  `json:"names,omitempty"`
}

// Identifiers returns PANs, GSTINs and invoice numbers in that order.
func (e Entities) Identifiers() []string {
	out := make([]string, 0, len(e.PANs)+len(e.GSTINs)+len(e.InvoiceNumbers))
	out = append(out, e.PANs...)
	out = append(out, e.GSTINs...)
	return append(out, e.InvoiceNumbers...)
}

// HasIdentifier reports whether id equals (case-insensitively) any
// extracted PAN, GSTIN or invoice number.
func (e Entities) HasIdentifier(id string) bool {
	for _, v := range e.Identifiers() {
		if strings.EqualFold(v, id) {
			return true
		}
	}
	return false
}

// Validate checks that the payload agrees with the discriminator.
func (m *Metadata) Validate() error {
	if !m.Type.Valid() {
		return fmt.Errorf("unknown chunk_type %q", m.Type)
	}
	if (m.Type == TypeTableRow) != (m.TableRow != nil) {
		return fmt.Errorf("chunk_type %s: table_row payload mismatch", m.Type)
	}
	if (m.Type == TypeInvoiceBlock) != (m.Invoice != nil) {
		return fmt.Errorf("chunk_type %s: invoice payload mismatch", m.Type)
	}
	if m.StartOffset < 0 || m.EndOffset < m.StartOffset {
		return fmt.Errorf("invalid offsets [%d,%d)", m.StartOffset, m.EndOffset)
	}
	return nil
}

// IdentifiesWith reports whether the chunk's entities or invoice payload
// contain id exactly (case-insensitive).
func (m *Metadata) IdentifiesWith(id string) bool {
	if m.Entities.HasIdentifier(id) {
		return true
	}
	return m.Invoice != nil && m.Invoice.Number != "" && strings.EqualFold(m.Invoice.Number, id)
}

// EncodeMetadata serializes m after validating it.
func EncodeMetadata(m *Metadata) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, taxerrors.New(taxerrors.ErrCodeMalformedMetadata, err.Error(), err)
	}
	return json.Marshal(m)
}

// DecodeMetadata parses and validates stored metadata. Any failure is
// reported as ErrMalformedMetadata.
func DecodeMetadata(data []byte) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, taxerrors.New(taxerrors.ErrCodeMalformedMetadata, "decode chunk metadata", err)
	}
	if err := m.Validate(); err != nil {
		return Metadata{}, taxerrors.New(taxerrors.ErrCodeMalformedMetadata, err.Error(), err)
	}
	return m, nil
}
