package ui

import (
	"encoding/json"
	"fmt"
	"io"
)

// StatusInfo contains store health information.
type StatusInfo struct {
	DataDir        string `json:"data_dir"`
	Backend        string `json:"backend"`
	Documents      int    `json:"documents"`
	Chunks         int    `json:"chunks"`
	LexicalEntries int    `json:"lexical_entries"`
	// Dimension is 0 until the first embedding is written.
	Dimension int `json:"dimension"`

	// DatabaseSize is the on-disk size of the store, 0 when not file backed.
	DatabaseSize int64 `json:"database_size"`

	EmbedderProvider string `json:"embedder_provider"`
	EmbedderModel    string `json:"embedder_model,omitempty"`
	EmbedderStatus   string `json:"embedder_status"` // "ready", "mismatch", "error"
}

// InSync reports whether every chunk has a lexical entry.
func (s StatusInfo) InSync() bool {
	return s.Chunks == s.LexicalEntries
}

// StatusRenderer displays store status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Store Status: "+info.DataDir))

	_, _ = fmt.Fprintf(r.out, "  Backend:   %s\n", info.Backend)
	_, _ = fmt.Fprintf(r.out, "  Documents: %d\n", info.Documents)
	_, _ = fmt.Fprintf(r.out, "  Chunks:    %d\n", info.Chunks)

	lexical := fmt.Sprintf("%d", info.LexicalEntries)
	if info.InSync() {
		lexical = r.styles.Success.Render(lexical)
	} else {
		lexical = r.styles.Warning.Render(lexical + " (out of sync)")
	}
	_, _ = fmt.Fprintf(r.out, "  Lexical:   %s\n", lexical)

	if info.Dimension > 0 {
		_, _ = fmt.Fprintf(r.out, "  Dimension: %d\n", info.Dimension)
	} else {
		_, _ = fmt.Fprintf(r.out, "  Dimension: %s\n", r.styles.Dim.Render("unset"))
	}
	if info.DatabaseSize > 0 {
		_, _ = fmt.Fprintf(r.out, "  Size:      %s\n", FormatBytes(info.DatabaseSize))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Embedder:")
	_, _ = fmt.Fprintf(r.out, "    Provider: %s\n", info.EmbedderProvider)
	if info.EmbedderModel != "" {
		_, _ = fmt.Fprintf(r.out, "    Model:    %s\n", info.EmbedderModel)
	}
	_, _ = fmt.Fprintf(r.out, "    Status:   %s\n", r.renderStatus(info.EmbedderStatus))
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready":
		return r.styles.Success.Render(status)
	case "mismatch":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
