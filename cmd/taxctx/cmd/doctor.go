package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
	"github.com/Bikash9609/ca-ai/internal/preflight"
)

func newDoctorCmd(g *globals) *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that taxctx can index and retrieve with this configuration",
		Long: `Run diagnostics against the configured data directory.

Checks:
  - Data directory is writable (created if missing)
  - Disk space (100MB minimum)
  - File descriptor limit for watch mode (1024 minimum, warning only)
  - The configured embedder produces vectors of the configured size
  - The store opens and its embedding dimension matches the embedder

Use --verbose for detailed diagnostic information.
Use --json for machine-readable output.`,
		Example: `  taxctx doctor
  taxctx doctor --verbose
  taxctx doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			checker := preflight.New(g.cfg,
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose),
				preflight.WithLogger(g.logger))
			results := checker.RunAll(cmd.Context())

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(map[string]any{
					"status": checker.SummaryStatus(results),
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return taxerrors.New(taxerrors.ErrCodeConfigInvalid, "preflight checks failed", nil).
					WithSuggestion("run 'taxctx doctor --verbose' for details")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
