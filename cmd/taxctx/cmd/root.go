// Package cmd provides the CLI commands for taxctx.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Bikash9609/ca-ai/internal/config"
	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
	"github.com/Bikash9609/ca-ai/internal/logging"
	"github.com/Bikash9609/ca-ai/internal/profiling"
	"github.com/Bikash9609/ca-ai/pkg/version"
)

// globals holds the persistent flags and the state built from them before
// a subcommand runs.
type globals struct {
	configPath string
	dataDir    string
	envFile    string
	debug      bool
	profile    profiling.Paths

	cfg            *config.Config
	logger         *slog.Logger
	loggingCleanup func()
	profiler       *profiling.Session
}

// NewRootCmd creates the root command for the taxctx CLI.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRoot()
	return cmd
}

func newRoot() (*cobra.Command, *globals) {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "taxctx",
		Short: "Chunk, index and retrieve tax document context",
		Long: `taxctx turns extracted tax and accounting document text into
metadata-rich chunks, stores them with embeddings, and answers queries
with a small multi-pass context bundle (recall, precision filter,
context expansion) ready for a language model.`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: g.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return g.teardown()
		},
	}
	cmd.SetVersionTemplate("taxctx version {{.Version}}\n")

	flags := cmd.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "Config file (default: user and project config)")
	flags.StringVar(&g.dataDir, "data-dir", "", "Data directory (overrides data_dir)")
	flags.StringVar(&g.envFile, "env-file", ".env", "Environment file loaded before config")
	flags.BoolVar(&g.debug, "debug", false, "Enable debug logging to stderr and the log file")
	flags.StringVar(&g.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	flags.StringVar(&g.profile.Heap, "profile-mem", "", "Write memory profile to file")
	flags.StringVar(&g.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newIndexCmd(g, false))
	cmd.AddCommand(newIndexCmd(g, true))
	cmd.AddCommand(newDeleteCmd(g))
	cmd.AddCommand(newChunksCmd(g))
	cmd.AddCommand(newSearchCmd(g))
	cmd.AddCommand(newRetrieveCmd(g))
	cmd.AddCommand(newWatchCmd(g))
	cmd.AddCommand(newStatusCmd(g))
	cmd.AddCommand(newDoctorCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newVersionCmd(g))

	return cmd, g
}

// Execute runs the root command and prints a formatted error on failure.
func Execute() error {
	cmd, g := newRoot()
	err := cmd.Execute()
	// PersistentPostRunE is skipped when a command fails.
	_ = g.teardown()
	if err != nil {
		_, _ = fmt.Fprint(cmd.ErrOrStderr(), taxerrors.FormatForCLI(err))
	}
	return err
}

// setup loads .env, configuration and logging, and starts profiling.
func (g *globals) setup(cmd *cobra.Command, _ []string) error {
	if g.envFile != "" {
		if err := godotenv.Load(g.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", g.envFile, err)
		}
	}

	cfg, err := g.loadConfig()
	if err != nil {
		return taxerrors.ConfigError("failed to load configuration", err).
			WithSuggestion("run 'taxctx config show' or fix the file named above")
	}
	g.cfg = cfg

	logCfg := cfg.LoggingSetup(false)
	if g.debug {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// File logging is optional; keep going on stderr at warn level.
		logger, cleanup = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn})), func() {}
		logger.Warn("file_logging_unavailable", slog.String("error", err.Error()))
	}
	g.logger = logger
	g.loggingCleanup = cleanup
	slog.SetDefault(logger)
	logger.Debug("config_loaded",
		slog.String("command", cmd.Name()),
		slog.String("data_dir", cfg.DataDir),
		slog.String("backend", cfg.Store.Backend))

	if g.profile.Enabled() {
		session, err := profiling.Start(g.profile)
		if err != nil {
			return err
		}
		g.profiler = session
	}
	return nil
}

func (g *globals) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFile(g.configPath)
	} else {
		wd, wdErr := os.Getwd()
		if wdErr != nil {
			return nil, wdErr
		}
		cfg, err = config.Load(wd)
	}
	if err != nil {
		return nil, err
	}

	if g.dataDir != "" {
		abs, err := filepath.Abs(g.dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve data dir: %w", err)
		}
		cfg.SetDataDir(abs)
	}
	return cfg, nil
}

func (g *globals) teardown() error {
	var err error
	if g.profiler != nil {
		err = g.profiler.Stop()
		g.profiler = nil
	}
	if g.loggingCleanup != nil {
		g.loggingCleanup()
		g.loggingCleanup = nil
	}
	return err
}
