package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Bikash9609/ca-ai/internal/output"
)

func newDeleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>...",
		Short: "Delete every chunk of a document",
		Long: `Delete the chunks and lexical entries of each named document.

The document record is kept so a later reindex reuses its metadata.
Deleting a document with no chunks is not an error.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.openApp(ctx, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ix, err := a.indexer(nil)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			for _, id := range args {
				n, err := ix.DeleteDocument(ctx, id)
				if err != nil {
					return err
				}
				if n == 0 {
					out.Warningf("%s: no chunks found", id)
					continue
				}
				out.Successf("%s: deleted %d chunks", id, n)
			}
			return nil
		},
	}
}
