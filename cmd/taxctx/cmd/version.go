package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Bikash9609/ca-ai/internal/store"
	"github.com/Bikash9609/ca-ai/pkg/version"
)

// versionReport is the --json shape: build info plus what an index written
// by this binary looks like.
type versionReport struct {
	version.BuildInfo
	SchemaVersion      int    `json:"schema_version"`
	EmbeddingProvider  string `json:"embedding_provider,omitempty"`
	EmbeddingDimension int    `json:"embedding_dimensions,omitempty"`
}

func newVersionCmd(g *globals) *cobra.Command {
	var asJSON, short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show build and index format versions",
		Long: `Show the taxctx build (commit, date, Go toolchain) together with the
store schema version and the configured embedder. An index built with a
different embedding dimension must be rebuilt with 'taxctx reindex'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if short {
				_, err := fmt.Fprintln(out, version.Short())
				return err
			}

			rep := versionReport{BuildInfo: version.GetInfo(), SchemaVersion: store.CurrentSchemaVersion}
			if g.cfg != nil {
				rep.EmbeddingProvider = g.cfg.Embeddings.Provider
				rep.EmbeddingDimension = g.cfg.Embeddings.Dimensions
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}

			if _, err := fmt.Fprintln(out, version.String()); err != nil {
				return err
			}
			_, err := fmt.Fprintf(out, "store schema v%d", rep.SchemaVersion)
			if err == nil && rep.EmbeddingProvider != "" {
				_, err = fmt.Fprintf(out, ", embeddings %s/%d", rep.EmbeddingProvider, rep.EmbeddingDimension)
			}
			if err == nil {
				_, err = fmt.Fprintln(out)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	cmd.Flags().BoolVar(&short, "short", false, "print only the version number")
	return cmd
}
