package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
	"github.com/Bikash9609/ca-ai/internal/index"
	"github.com/Bikash9609/ca-ai/internal/output"
	"github.com/Bikash9609/ca-ai/internal/ui"
	"github.com/Bikash9609/ca-ai/internal/watcher"
)

func newWatchCmd(g *globals) *cobra.Command {
	var (
		client  string
		polling bool
		once    bool
	)

	cmd := &cobra.Command{
		Use:   "watch <inbox-dir>",
		Short: "Keep the index in step with an inbox directory",
		Long: `Watch an inbox directory and index what lands in it.

An inbox item is <name>.txt (extracted text) plus an optional
<name>.meta.yaml sidecar:

  id: inv-2024-17
  client: acme
  period: 2024-04
  doc_type: invoice
  category: purchases
  file_type: pdf

Items are reindexed when either file changes and their chunks are
deleted when the text file is removed. Every item is reconciled once at
startup. Hidden files and directories are ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root, err := filepath.Abs(args[0])
			if err != nil {
				return taxerrors.InputError("invalid inbox path: " + err.Error())
			}
			if info, err := os.Stat(root); err != nil || !info.IsDir() {
				return taxerrors.InputError("inbox must be an existing directory: " + root)
			}

			a, err := g.openApp(ctx, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := output.New(cmd.OutOrStdout())
			renderer := ui.NewPlainRenderer(ui.NewConfig(cmd.ErrOrStderr()))
			ix, err := a.indexer(renderer)
			if err != nil {
				return err
			}
			coord, err := index.NewCoordinator(index.CoordinatorConfig{
				Root:          root,
				Indexer:       ix,
				DefaultClient: client,
				Logger:        a.logger,
			})
			if err != nil {
				return err
			}

			results, err := coord.Reconcile(ctx)
			indexed := 0
			for _, res := range results {
				if res != nil && res.Err == nil {
					indexed++
				}
			}
			if err != nil {
				out.Warningf("reconciled %d items with errors: %v", indexed, err)
			} else {
				out.Successf("reconciled %d items in %s", indexed, root)
			}
			if once {
				return err
			}

			return runWatchLoop(ctx, out, coord, root, watcher.Options{
				DebounceWindow: a.cfg.WatchDebounce(),
				Logger:         a.logger,
				ForcePolling:   polling,
			}, a.logger)
		},
	}

	cmd.Flags().StringVar(&client, "client", "", "Client for items whose sidecar names none")
	cmd.Flags().BoolVar(&polling, "poll", false, "Poll for changes instead of using filesystem notifications")
	cmd.Flags().BoolVar(&once, "once", false, "Reconcile the inbox and exit")

	return cmd
}

func runWatchLoop(ctx context.Context, out *output.Writer, coord *index.Coordinator, root string, opts watcher.Options, logger *slog.Logger) error {
	w, err := watcher.NewHybridWatcher(opts)
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	startErr := make(chan error, 1)
	go func() { startErr <- w.Start(ctx, root) }()

	out.Statusf("👀", "watching %s (%s), Ctrl+C to stop", root, w.WatcherType())
	logger.Info("watch_started", slog.String("root", root), slog.String("watcher", w.WatcherType()))

	watchErrs := w.Errors()
	for {
		select {
		case <-ctx.Done():
			out.Status("", "stopped")
			return nil
		case err := <-startErr:
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			if err := coord.HandleEvents(ctx, batch); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			logger.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}
