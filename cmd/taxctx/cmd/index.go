package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
	"github.com/Bikash9609/ca-ai/internal/index"
	"github.com/Bikash9609/ca-ai/internal/output"
	"github.com/Bikash9609/ca-ai/internal/store"
	"github.com/Bikash9609/ca-ai/internal/ui"
)

// documentFlags are the document fields set from the command line.
type documentFlags struct {
	id       string
	client   string
	period   string
	docType  string
	category string
	fileType string
}

func (f *documentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "id", "", "Document id (default: file name without extensions)")
	cmd.Flags().StringVar(&f.client, "client", "", "Client the document belongs to")
	cmd.Flags().StringVar(&f.period, "period", "", "Tax period, e.g. 2024-04 or FY2023-24")
	cmd.Flags().StringVar(&f.docType, "type", "", "Document type, e.g. invoice, bank_statement, gstr3b")
	cmd.Flags().StringVar(&f.category, "category", "", "Document category")
	cmd.Flags().StringVar(&f.fileType, "file-type", "", "Source file type used to pick a chunking strategy (default: from file name)")
}

func newIndexCmd(g *globals, replace bool) *cobra.Command {
	var (
		doc   documentFlags
		noTUI bool
	)

	use, short := "index <file>...", "Index extracted document text"
	if replace {
		use, short = "reindex <file>...", "Replace the chunks of already indexed documents"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.

Each file holds the text extracted from one source document. Use "-" to
read a single document from stdin (requires --id). The chunking strategy
follows the source file type: "invoice.pdf.txt" is chunked as a pdf.`,
		Example: `  taxctx index acme/inv-17.pdf.txt --client acme --type invoice --period 2024-04
  pdftotext gstr3b.pdf - | taxctx index - --id gstr3b-apr --client acme --file-type pdf
  taxctx reindex statements/*.txt --client acme --type bank_statement`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Ctrl+C cancels between embedding batches.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			inputs, err := readInputs(cmd.InOrStdin(), args, doc, replace)
			if err != nil {
				return err
			}

			a, err := g.openApp(ctx, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			title := inputs[0].Document.ID
			if len(inputs) > 1 {
				title = fmt.Sprintf("%d documents", len(inputs))
			}
			renderer := ui.NewRenderer(ui.NewConfig(cmd.ErrOrStderr(),
				ui.WithForcePlain(noTUI),
				ui.WithNoColor(ui.DetectNoColor()),
				ui.WithTitle(title)))

			ix, err := a.indexer(renderer)
			if err != nil {
				return err
			}
			if err := renderer.Start(ctx); err != nil {
				return err
			}
			results, indexErr := ix.IndexDocuments(ctx, inputs)
			_ = renderer.Stop()

			out := output.New(cmd.OutOrStdout())
			for _, res := range results {
				switch {
				case res == nil:
				case res.Err != nil:
					out.Errorf("%s: %v", res.DocumentID, res.Err)
				case res.ChunksCreated == 0:
					out.Warningf("%s: no text to index", res.DocumentID)
				default:
					out.Successf("%s: %d chunks (%s)", res.DocumentID, res.ChunksCreated, res.Strategy)
				}
			}
			return indexErr
		},
	}

	doc.register(cmd)
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")

	return cmd
}

// readInputs loads every file named in args as one document.
func readInputs(stdin io.Reader, args []string, f documentFlags, replace bool) ([]index.Input, error) {
	if len(args) > 1 && f.id != "" {
		return nil, taxerrors.InputError("--id can only be used with a single file")
	}

	inputs := make([]index.Input, 0, len(args))
	for _, path := range args {
		var (
			data []byte
			err  error
		)
		if path == "-" {
			if f.id == "" {
				return nil, taxerrors.InputError("--id is required when reading from stdin")
			}
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, taxerrors.InputError(fmt.Sprintf("failed to read %s: %v", path, err))
		}

		doc := &store.Document{
			ID:       f.id,
			ClientID: f.client,
			Period:   f.period,
			DocType:  f.docType,
			Category: f.category,
			FileType: f.fileType,
		}
		if path != "-" {
			if abs, err := filepath.Abs(path); err == nil {
				doc.FilePath = abs
			}
			if doc.ID == "" {
				doc.ID = documentID(path)
			}
		}
		if doc.FileType == "" {
			doc.FileType = sourceFileType(path)
		}
		inputs = append(inputs, index.Input{Document: doc, Text: string(data), Replace: replace})
	}
	return inputs, nil
}

// documentID is the file name without its extensions:
// "acme/inv-17.pdf.txt" is "inv-17".
func documentID(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}

// sourceFileType is the type of the document the text was extracted
// from: "inv.pdf.txt" is "pdf", "notes.txt" is "txt", "ledger.csv" is
// "csv".
func sourceFileType(path string) string {
	base := strings.ToLower(filepath.Base(path))
	if path == "-" {
		return "txt"
	}
	if strings.HasSuffix(base, ".txt") {
		inner := strings.TrimPrefix(filepath.Ext(strings.TrimSuffix(base, ".txt")), ".")
		if inner != "" {
			return inner
		}
		return "txt"
	}
	if ext := strings.TrimPrefix(filepath.Ext(base), "."); ext != "" {
		return ext
	}
	return "txt"
}
