// Package main provides the cg CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/citegraph/internal/acquire"
	"github.com/matsen/citegraph/internal/config"
	"github.com/matsen/citegraph/internal/logging"
	"github.com/matsen/citegraph/internal/refcache"
	"github.com/matsen/citegraph/internal/scopus"
	"github.com/matsen/citegraph/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	debugOutput bool
	configPath  string

	logger = zap.NewNop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// SilenceErrors is set, so cobra errors are printed here.
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cg",
	Short: "Citation graph builder for a bibliography topic",
	Long: `cg fetches a batch of publications from Scopus, gathers their reference
lists and ranks the cited works by how many of the batch cite them.

Core features:
  - Per-identifier reference cache with freshness checks
  - Complete paginated reference lists, never partial ones
  - Parallel acquisition sharing one provider quota
  - Markdown notes with citation counts kept up to date

The project file (citegraph.yml) lists the identifiers and tuning.
All commands output JSON by default for agent integration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env file is fine.
		_ = godotenv.Load()

		l, err := logging.New(debugOutput)
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().BoolVar(&debugOutput, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigFile, "Project config file")
	rootCmd.Version = Version
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// mustLoadConfig loads the project config, exits on error.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return cfg
}

// loadConfigOrDefault loads the project config when the file exists and
// falls back to defaults otherwise. Commands that work without a project use
// it.
func loadConfigOrDefault() *config.Config {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return config.Default()
	}
	return mustLoadConfig()
}

// mustOpenStore opens the provider response database, exits on error.
// The caller is responsible for calling Close() on the returned DB.
func mustOpenStore(cfg *config.Config) *storage.DB {
	dir := cfg.ResolveCacheDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		exitWithError(ExitError, "creating cache directory: %v", err)
	}
	db, err := storage.OpenDB(config.ResponsesPath(dir))
	if err != nil {
		exitWithError(ExitError, "opening response store: %v", err)
	}
	return db
}

// mustScopusClient builds the provider client, exits when no API key is
// configured.
func mustScopusClient(db *storage.DB) *scopus.Client {
	key, err := config.ScopusAPIKey()
	if err != nil {
		if errors.Is(err, config.ErrNoAPIKey) {
			fmt.Fprintln(os.Stderr, config.HelpfulConfigMessage())
			os.Exit(ExitAuthError)
		}
		exitWithError(ExitConfigError, "loading global config: %v", err)
	}
	return scopus.NewClient(
		scopus.WithAPIKey(key),
		scopus.WithStore(db),
		scopus.WithLogger(logger.Named("scopus")),
	)
}

// newSession wires the provider and the reference cache for cfg.
func newSession(cfg *config.Config, client *scopus.Client) *acquire.Session {
	store := refcache.New(config.RefsPath(cfg.ResolveCacheDir()), refcache.WithLogger(logger.Named("refcache")))
	return acquire.NewSession(client, store, cfg.Identifiers, cfg.Ignored, acquire.Options{
		MaxAgeDays:     cfg.MaxAgeDays,
		MinRefreshDays: cfg.MinRefreshDays,
		MinGap:         cfg.MinGap,
		Logger:         logger,
	})
}

// acquireResult runs the acquisition for cfg. A batch that completed with
// unexpected provider errors still returns its result together with the
// error; any other error exits.
func acquireResult(ctx context.Context, cfg *config.Config, workers int) (*acquire.Result, error) {
	if len(cfg.Identifiers) == 0 {
		exitWithError(ExitConfigError, "no identifiers in %s", configPath)
	}

	db := mustOpenStore(cfg)
	defer db.Close()

	session := newSession(cfg, mustScopusClient(db))
	res, err := session.AcquireParallel(ctx, workers)
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, acquire.ErrUnexpected) && res != nil:
		logger.Error("batch finished with provider errors", zap.Error(err))
		return res, err
	case errors.Is(err, context.Canceled):
		exitWithError(ExitError, "interrupted")
	case errors.Is(err, acquire.ErrAccounting):
		exitWithError(ExitAccountingError, "%v", err)
	case scopus.IsAuthError(err):
		exitWithError(ExitAuthError, "%v", err)
	}
	exitWithError(ExitProviderError, "acquiring references: %v", err)
	return nil, err
}

// workerCount picks the number of parallel workers: the flag when set, the
// project num_proc otherwise.
func workerCount(flag int, cfg *config.Config) int {
	if flag > 0 {
		return flag
	}
	return cfg.NumProc
}
