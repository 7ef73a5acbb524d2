package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Bikash9609/ca-ai/internal/store"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyIndexGap indicates chunk indices that are not 0..n-1.
	InconsistencyIndexGap InconsistencyType = iota
	// InconsistencyMalformedMetadata indicates metadata that failed to decode.
	InconsistencyMalformedMetadata
	// InconsistencyDimension indicates an embedding of the wrong dimension.
	InconsistencyDimension
	// InconsistencyLexicalCount indicates chunk rows and lexical entries
	// differ in number.
	InconsistencyLexicalCount
)

// String returns a human-readable description of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyIndexGap:
		return "index_gap"
	case InconsistencyMalformedMetadata:
		return "malformed_metadata"
	case InconsistencyDimension:
		return "dimension"
	case InconsistencyLexicalCount:
		return "lexical_count"
	default:
		return "unknown"
	}
}

// Inconsistency represents a detected issue.
type Inconsistency struct {
	Type    InconsistencyType
	ChunkID string
	Details string
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of chunks verified.
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// OK reports whether no issue was found.
func (r *CheckResult) OK() bool { return len(r.Inconsistencies) == 0 }

// ConsistencyChecker validates persisted chunks.
type ConsistencyChecker struct {
	store  store.Store
	logger *slog.Logger
}

// NewConsistencyChecker creates a checker over s.
func NewConsistencyChecker(s store.Store, logger *slog.Logger) *ConsistencyChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsistencyChecker{store: s, logger: logger}
}

// CheckDocument verifies one document's chunks: indices run 0..n-1,
// metadata decodes and every embedding has the store dimension.
func (c *ConsistencyChecker) CheckDocument(ctx context.Context, documentID string) (*CheckResult, error) {
	start := time.Now()

	chunks, err := c.store.GetDocumentChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	dim, err := c.store.Dimension(ctx)
	if err != nil {
		return nil, err
	}

	var issues []Inconsistency
	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyIndexGap,
				ChunkID: ch.ID,
				Details: fmt.Sprintf("expected chunk_index %d, found %d", i, ch.ChunkIndex),
			})
		}
		if ch.MetadataErr != nil {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyMalformedMetadata,
				ChunkID: ch.ID,
				Details: ch.MetadataErr.Error(),
			})
		}
		if dim > 0 && len(ch.Embedding) != dim {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyDimension,
				ChunkID: ch.ID,
				Details: fmt.Sprintf("embedding has %d values, store dimension is %d", len(ch.Embedding), dim),
			})
		}
	}

	if len(issues) > 0 {
		c.logger.Warn("document_inconsistent",
			slog.String("document_id", documentID),
			slog.Int("issues", len(issues)))
	}
	return &CheckResult{
		Checked:         len(chunks),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// QuickCheck only verifies that every chunk row has a lexical entry.
// Returns true if counts are consistent.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) (bool, error) {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return false, err
	}
	consistent := stats.Chunks == stats.LexicalEntries
	if !consistent {
		c.logger.Debug("index counts mismatch",
			slog.Int("chunks", stats.Chunks),
			slog.Int("lexical", stats.LexicalEntries))
	}
	return consistent, nil
}
