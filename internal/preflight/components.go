package preflight

import (
	"context"
	"fmt"
	"os"

	"github.com/Bikash9609/ca-ai/internal/embed"
	"github.com/Bikash9609/ca-ai/internal/store"
)

// probeText is embedded to confirm the embedder works end to end.
const probeText = "GST input tax credit reconciliation"

// CheckEmbedder builds the configured embedder and embeds a probe text.
// It returns the embedder's dimension, or 0 when it could not be built.
func (c *Checker) CheckEmbedder(ctx context.Context) (CheckResult, int) {
	result := CheckResult{
		Name:     "embedder",
		Required: true,
	}
	ec := c.cfg.Embeddings

	e, err := embed.NewEmbedder(ec.Provider, ec.Dimensions, 0)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %q embedder: %v", ec.Provider, err)
		return result, 0
	}
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(ctx, probeText)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("embedding failed: %v", err)
		return result, 0
	}
	if len(vec) != e.Dimensions() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("returned %d values, expected %d", len(vec), e.Dimensions())
		return result, 0
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dims)", e.ModelName(), e.Dimensions())
	return result, e.Dimensions()
}

// CheckStore opens the configured store and compares its recorded
// embedding dimension with dims. A SQLite store that does not exist yet is
// a warning, not a failure.
func (c *Checker) CheckStore(ctx context.Context, dims int) CheckResult {
	result := CheckResult{
		Name:     "store",
		Required: true,
	}
	sc := c.cfg.Store

	if sc.Backend != store.BackendPostgres {
		if _, err := os.Stat(sc.Path); os.IsNotExist(err) {
			result.Status = StatusWarn
			result.Message = "no index yet (run 'taxctx index')"
			result.Details = sc.Path
			return result
		}
	}

	s, err := store.Open(ctx, sc, c.cfg.DataDir, c.logger)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot open %s store: %v", sc.Backend, err)
		return result
	}
	defer func() { _ = s.Close() }()

	stats, err := s.Stats(ctx)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read stats: %v", err)
		return result
	}

	if dims > 0 && stats.Dimension > 0 && stats.Dimension != dims {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("store holds %d-dim embeddings, embedder produces %d", stats.Dimension, dims)
		result.Details = fmt.Sprintf("set embeddings.dimensions to %d or use a new data directory", stats.Dimension)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s, %d documents, %d chunks", stats.Backend, stats.Documents, stats.Chunks)
	return result
}
