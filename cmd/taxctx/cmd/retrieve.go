package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
	"github.com/Bikash9609/ca-ai/internal/output"
	"github.com/Bikash9609/ca-ai/internal/retrieval"
)

func newRetrieveCmd(g *globals) *cobra.Command {
	var (
		filters filterFlags
		limit   int
		format  string
		render  bool
	)

	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Build the multi-pass context bundle for a query",
		Long: `Build the context bundle a language model would receive for a query.

Pass A recalls candidates with hybrid search, Pass B keeps those that
match the query's identifiers, period hints and payment intent, and
Pass C adds neighboring chunks, table headers and same-vendor chunks
until the bundle limit is reached.`,
		Example: `  taxctx retrieve "GST paid to 27ABCDE1234F1Z5 in Q2" --client acme
  taxctx retrieve "rent TDS FY2023-24" --client acme --render
  taxctx retrieve "invoice INV-0042" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := strings.Join(args, " ")
			if format != "text" && format != "json" {
				return taxerrors.InputError("--format must be text or json")
			}

			a, err := g.openApp(ctx, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			start := time.Now()
			r := a.retriever()
			var bundle *retrieval.Bundle
			if limit > 0 {
				emb, embErr := a.embedder.Embed(ctx, query)
				if embErr != nil {
					return taxerrors.New(taxerrors.ErrCodeEmbeddingFailed, "failed to embed query", embErr)
				}
				bundle, err = r.Retrieve(ctx, retrieval.Query{
					Text:      query,
					Embedding: emb,
					Filters:   filters.filters(),
					Limit:     limit,
				})
			} else {
				bundle, err = r.RetrieveText(ctx, query, filters.filters())
			}
			if err != nil {
				return err
			}
			a.logger.Info("retrieve_complete",
				slog.String("query", query),
				slog.Int("items", bundle.Len()),
				slog.Duration("duration", time.Since(start)))

			switch {
			case format == "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(bundle)
			case render:
				_, err := fmt.Fprintln(cmd.OutOrStdout(), bundle.Render())
				return err
			}
			printBundle(output.New(cmd.OutOrStdout()), bundle)
			return nil
		},
	}

	filters.register(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum bundle size (default: retrieval.limit)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&render, "render", false, "Print the packed prompt context")

	return cmd
}

func printBundle(out *output.Writer, b *retrieval.Bundle) {
	if b.Len() == 0 {
		out.Warningf("no relevant context for %q", b.Query)
		return
	}
	out.Header(fmt.Sprintf("%d items for %q", b.Len(), b.Query))
	refs := b.References()
	for i, it := range b.Items {
		score := ""
		if it.CombinedScore > 0 {
			score = fmt.Sprintf(" %.3f", it.CombinedScore)
		}
		out.Statusf(fmt.Sprintf("%2d.", i+1), "%s #%s [%s%s] %s", it.DocumentID, chunkIndexOf(it), it.Reason, score, refs[i])
		out.Dim("    " + snippet(strings.ReplaceAll(it.Text, "\n", " "), 200))
	}
}

func chunkIndexOf(it retrieval.Item) string {
	if it.Chunk == nil {
		return "?"
	}
	return fmt.Sprint(it.Chunk.ChunkIndex)
}
