package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Bikash9609/ca-ai/internal/embed"
	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
	"github.com/Bikash9609/ca-ai/internal/store"
	"github.com/Bikash9609/ca-ai/internal/ui"
)

func newStatusCmd(g *globals) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store health and counts",
		Long: `Show document and chunk counts, the embedding dimension recorded by
the store, and whether the configured embedder matches it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := g.cfg

			if cfg.Store.Backend != store.BackendPostgres {
				if _, err := os.Stat(cfg.Store.Path); os.IsNotExist(err) {
					return taxerrors.New(taxerrors.ErrCodeConfigNotFound, "no store found at "+cfg.Store.Path, nil).
						WithSuggestion("run 'taxctx index' first")
				}
			}

			s, err := store.Open(ctx, cfg.Store, cfg.DataDir, g.logger)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			stats, err := s.Stats(ctx)
			if err != nil {
				return err
			}

			info := ui.StatusInfo{
				DataDir:          cfg.DataDir,
				Backend:          stats.Backend,
				Documents:        stats.Documents,
				Chunks:           stats.Chunks,
				LexicalEntries:   stats.LexicalEntries,
				Dimension:        stats.Dimension,
				DatabaseSize:     databaseSize(cfg.Store.Path),
				EmbedderProvider: cfg.Embeddings.Provider,
				EmbedderStatus:   "ready",
			}
			e, err := embed.NewEmbedder(cfg.Embeddings.Provider, cfg.Embeddings.Dimensions, 0)
			switch {
			case err != nil:
				info.EmbedderStatus = "error"
			case stats.Dimension > 0 && stats.Dimension != e.Dimensions():
				info.EmbedderModel = e.ModelName()
				info.EmbedderStatus = "mismatch"
			default:
				info.EmbedderModel = e.ModelName()
			}
			if e != nil {
				_ = e.Close()
			}

			r := ui.NewStatusRenderer(cmd.OutOrStdout(), !ui.IsTTY(cmd.OutOrStdout()) || ui.DetectNoColor())
			if jsonOutput {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// databaseSize is the SQLite file plus its WAL, 0 when absent.
func databaseSize(path string) int64 {
	if path == "" {
		return 0
	}
	var total int64
	for _, p := range []string{path, path + "-wal"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}
