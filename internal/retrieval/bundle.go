package retrieval

import (
	"fmt"
	"strings"

	"github.com/Bikash9609/ca-ai/internal/store"
)

// Reason records how an item entered the bundle.
type Reason string

const (
	// ReasonMatch is a Pass B survivor kept on score.
	ReasonMatch Reason = "match"
	// ReasonEntityOverride is a survivor kept because it carries an
	// identifier named in the query.
	ReasonEntityOverride Reason = "entity_override"
	// ReasonNeighbor is an adjacent chunk on the same page.
	ReasonNeighbor Reason = "neighbor"
	// ReasonTableHeader is the header row of a matched table row.
	ReasonTableHeader Reason = "table_header"
	// ReasonVendor is a chunk from another document of the same vendor.
	ReasonVendor Reason = "vendor"
)

// Item is one chunk of a bundle. Scores are zero for expansion items.
type Item struct {
	Chunk         *store.Chunk `json:"-"`
	ChunkID       string       `json:"chunk_id"`
	DocumentID    string       `json:"document_id"`
	Text          string       `json:"text"`
	Reason        Reason       `json:"reason"`
	Similarity    float64      `json:"similarity,omitempty"`
	LexicalRank   float64      `json:"lexical_rank,omitempty"`
	CombinedScore float64      `json:"combined_score,omitempty"`
	// Via is the survivor that pulled an expansion item in.
	Via string `json:"via,omitempty"`
}

// Bundle is the ordered context returned for a query.
type Bundle struct {
	Query   string        `json:"query"`
	Filters store.Filters `json:"filters"`
	Items   []Item        `json:"items"`
	// Cached is set when the bundle was served from the context cache.
	Cached bool `json:"cached"`
}

// Len returns the number of items.
func (b *Bundle) Len() int { return len(b.Items) }

// IDs returns the chunk ids in bundle order.
func (b *Bundle) IDs() []string {
	ids := make([]string, len(b.Items))
	for i, it := range b.Items {
		ids[i] = it.ChunkID
	}
	return ids
}

// Render formats the bundle as prompt context: one section per item with
// a header naming where it came from.
func (b *Bundle) Render() string {
	if len(b.Items) == 0 {
		return "No relevant documents found."
	}
	sections := make([]string, len(b.Items))
	for i, it := range b.Items {
		sections[i] = renderHeader(i+1, it.Chunk) + "\n" + it.Text
	}
	return strings.Join(sections, "\n\n")
}

func renderHeader(n int, c *store.Chunk) string {
	var parts []string
	if c != nil {
		if c.DocType != "" {
			parts = append(parts, c.DocType)
		}
		if c.Metadata.Page > 0 {
			parts = append(parts, fmt.Sprintf("page %d", c.Metadata.Page))
		}
		if label := c.Metadata.Type.Label(); label != "" {
			parts = append(parts, label)
		}
		if c.Metadata.Vendor != "" {
			parts = append(parts, "vendor: "+c.Metadata.Vendor)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("[Chunk %d]", n)
	}
	return fmt.Sprintf("[Chunk %d – %s]", n, strings.Join(parts, " "))
}

// References returns one citation per item, e.g. "invoice, page 2".
func (b *Bundle) References() []string {
	refs := make([]string, len(b.Items))
	for i, it := range b.Items {
		var parts []string
		if it.Chunk != nil {
			if it.Chunk.DocType != "" {
				parts = append(parts, it.Chunk.DocType)
			}
			if it.Chunk.Metadata.Page > 0 {
				parts = append(parts, fmt.Sprintf("page %d", it.Chunk.Metadata.Page))
			}
		}
		if len(parts) == 0 {
			refs[i] = "document"
			continue
		}
		refs[i] = strings.Join(parts, ", ")
	}
	return refs
}

func (b *Bundle) clone() *Bundle {
	out := *b
	out.Items = append([]Item(nil), b.Items...)
	return &out
}
