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
	"github.com/Bikash9609/ca-ai/internal/search"
	"github.com/Bikash9609/ca-ai/internal/store"
)

// filterFlags scope a query to part of the corpus.
type filterFlags struct {
	document string
	client   string
	period   string
	docType  string
	category string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.client, "client", "", "Only this client's documents")
	cmd.Flags().StringVar(&f.period, "period", "", "Only documents of this period")
	cmd.Flags().StringVarP(&f.docType, "type", "t", "", "Only this document type")
	cmd.Flags().StringVar(&f.category, "category", "", "Only this category")
	cmd.Flags().StringVar(&f.document, "document", "", "Only this document id")
}

func (f *filterFlags) filters() store.Filters {
	return store.Filters{
		DocumentID: f.document,
		ClientID:   f.client,
		Period:     f.period,
		Category:   f.category,
		DocType:    f.docType,
	}
}

// searchHit is the JSON shape of a search result.
type searchHit struct {
	Rank          int     `json:"rank"`
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	ChunkIndex    int     `json:"chunk_index"`
	ChunkType     string  `json:"chunk_type"`
	Text          string  `json:"text"`
	CombinedScore float64 `json:"combined_score"`
	SemanticScore float64 `json:"semantic_score"`
	KeywordScore  float64 `json:"keyword_score"`
	Similarity    float64 `json:"similarity,omitempty"`
	LexicalRank   float64 `json:"lexical_rank,omitempty"`
	ClientID      string  `json:"client_id,omitempty"`
	Period        string  `json:"period,omitempty"`
	DocType       string  `json:"doc_type,omitempty"`
}

func newSearchCmd(g *globals) *cobra.Command {
	var (
		filters filterFlags
		limit   int
		format  string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Hybrid search over indexed chunks",
		Long: `Search indexed chunks with hybrid search.

Combines semantic (embedding) similarity and full-text rank, each
normalized to [0, 1] and weighted by search.semantic_weight and
search.keyword_weight.`,
		Example: `  taxctx search "TDS on rent" --client acme
  taxctx search "27ABCDE1234F1Z5" --type invoice --limit 5
  taxctx search "advance tax Q3" --format json`,
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
			emb, err := a.embedder.Embed(ctx, query)
			if err != nil {
				return taxerrors.New(taxerrors.ErrCodeEmbeddingFailed, "failed to embed query", err)
			}
			results, err := a.hybrid().Search(ctx, query, emb, limit, a.cfg.Search.SemanticThreshold, filters.filters())
			if err != nil {
				return err
			}
			a.logger.Info("search_complete",
				slog.String("query", query),
				slog.Int("results", len(results)),
				slog.Duration("duration", time.Since(start)))

			hits := make([]searchHit, len(results))
			for i, r := range results {
				hits[i] = newSearchHit(i+1, r)
			}
			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(hits)
			}
			printHits(output.New(cmd.OutOrStdout()), query, hits)
			return nil
		},
	}

	filters.register(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func newSearchHit(rank int, r *search.Result) searchHit {
	c := r.Chunk
	return searchHit{
		Rank:          rank,
		ChunkID:       c.ID,
		DocumentID:    c.DocumentID,
		ChunkIndex:    c.ChunkIndex,
		ChunkType:     string(c.Metadata.Type),
		Text:          c.Text,
		CombinedScore: r.CombinedScore,
		SemanticScore: r.SemanticScore,
		KeywordScore:  r.KeywordScore,
		Similarity:    r.Similarity,
		LexicalRank:   r.LexicalRank,
		ClientID:      c.ClientID,
		Period:        c.Period,
		DocType:       c.DocType,
	}
}

func printHits(out *output.Writer, query string, hits []searchHit) {
	if len(hits) == 0 {
		out.Warningf("no results for %q", query)
		return
	}
	out.Header(fmt.Sprintf("%d results for %q", len(hits), query))
	for _, h := range hits {
		out.Statusf(fmt.Sprintf("%2d.", h.Rank), "[%.3f] %s #%d %s", h.CombinedScore, h.DocumentID, h.ChunkIndex, h.ChunkType)
		out.Dim("    " + snippet(strings.ReplaceAll(h.Text, "\n", " "), 200))
	}
}
