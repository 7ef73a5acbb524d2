package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
	"github.com/Bikash9609/ca-ai/internal/index"
	"github.com/Bikash9609/ca-ai/internal/output"
	"github.com/Bikash9609/ca-ai/internal/store"
)

// chunkView is the JSON shape of a listed chunk.
type chunkView struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Index      int    `json:"chunk_index"`
	Type       string `json:"chunk_type"`
	Page       int    `json:"page,omitempty"`
	Vendor     string `json:"vendor,omitempty"`
	Text       string `json:"text"`
	Malformed  string `json:"malformed,omitempty"`
}

func newChunksCmd(g *globals) *cobra.Command {
	var (
		format string
		check  bool
		full   bool
	)

	cmd := &cobra.Command{
		Use:   "chunks <document-id>",
		Short: "List the persisted chunks of a document",
		Example: `  taxctx chunks inv-17
  taxctx chunks inv-17 --format json
  taxctx chunks inv-17 --check`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.openApp(ctx, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if check {
				return runChunkCheck(cmd, a, args[0])
			}

			chunks, err := a.store.GetDocumentChunks(ctx, args[0])
			if err != nil {
				return err
			}

			if format == "json" {
				views := make([]chunkView, len(chunks))
				for i, c := range chunks {
					views[i] = newChunkView(c)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}

			out := output.New(cmd.OutOrStdout())
			if len(chunks) == 0 {
				out.Warningf("no chunks for %s", args[0])
				return nil
			}
			out.Header(fmt.Sprintf("%s: %d chunks", args[0], len(chunks)))
			for _, c := range chunks {
				v := newChunkView(c)
				out.Statusf(fmt.Sprintf("#%-3d", v.Index), "%s", describeChunk(v))
				text := v.Text
				if !full {
					text = snippet(text, 160)
				}
				out.Dim("      " + strings.ReplaceAll(text, "\n", "\n      "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&check, "check", false, "Verify chunk indices, metadata and embedding dimensions")
	cmd.Flags().BoolVar(&full, "full", false, "Print full chunk text")

	return cmd
}

func runChunkCheck(cmd *cobra.Command, a *app, documentID string) error {
	ctx := cmd.Context()
	checker := index.NewConsistencyChecker(a.store, a.logger)
	out := output.New(cmd.OutOrStdout())

	result, err := checker.CheckDocument(ctx, documentID)
	if err != nil {
		return err
	}
	inSync, err := checker.QuickCheck(ctx)
	if err != nil {
		return err
	}

	for _, issue := range result.Inconsistencies {
		out.Errorf("%s %s: %s", issue.Type, issue.ChunkID, issue.Details)
	}
	if !inSync {
		out.Warning("chunk rows and lexical entries differ in number")
	}
	if !result.OK() {
		return taxerrors.New(taxerrors.ErrCodeCorruptStore,
			fmt.Sprintf("%d inconsistencies in %s", len(result.Inconsistencies), documentID), nil).
			WithSuggestion("run 'taxctx reindex' on the document")
	}
	out.Successf("%s: %d chunks consistent", documentID, result.Checked)
	return nil
}

func newChunkView(c *store.Chunk) chunkView {
	v := chunkView{
		ID:         c.ID,
		DocumentID: c.DocumentID,
		Index:      c.ChunkIndex,
		Type:       string(c.Metadata.Type),
		Page:       c.Metadata.Page,
		Vendor:     c.Metadata.Vendor,
		Text:       c.Text,
	}
	if c.MetadataErr != nil {
		v.Malformed = c.MetadataErr.Error()
	}
	return v
}

func describeChunk(v chunkView) string {
	parts := []string{v.Type}
	if v.Page > 0 {
		parts = append(parts, fmt.Sprintf("page %d", v.Page))
	}
	if v.Vendor != "" {
		parts = append(parts, "vendor: "+v.Vendor)
	}
	if v.Malformed != "" {
		parts = append(parts, "malformed metadata")
	}
	parts = append(parts, fmt.Sprintf("%d chars", len([]rune(v.Text))))
	return strings.Join(parts, " · ")
}

// snippet shortens s to at most n runes.
func snippet(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}
