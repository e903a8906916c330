package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/config"
	"github.com/matsen/citegraph/internal/refcache"
)

var pruneOlderThan float64

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the local caches",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove stale provider responses",
	Long: `Remove provider responses older than --older-than days from the
response store. Reference cache files are not touched; they are refreshed
by cg run when stale.

Examples:
  cg cache prune --older-than 90`,
	Args: cobra.NoArgs,
	Run:  runCachePrune,
}

var cachePathCmd = &cobra.Command{
	Use:   "path [identifier]",
	Short: "Print the reference cache directory, or the cache file of an identifier",
	Args:  cobra.MaximumNArgs(1),
	Run:   runCachePath,
}

func init() {
	cachePruneCmd.Flags().Float64Var(&pruneOlderThan, "older-than", 90, "Age in days")
	cacheCmd.AddCommand(cachePruneCmd, cachePathCmd)
	rootCmd.AddCommand(cacheCmd)
}

// PruneResponse is the JSON output of cg cache prune.
type PruneResponse struct {
	Removed   int64  `json:"removed"`
	Remaining int    `json:"remaining"`
	Path      string `json:"path"`
}

func runCachePrune(cmd *cobra.Command, args []string) {
	if pruneOlderThan < 0 {
		exitWithError(ExitError, "--older-than must not be negative")
	}
	cfg := loadConfigOrDefault()
	db := mustOpenStore(cfg)
	defer db.Close()

	age := time.Duration(pruneOlderThan * float64(24*time.Hour))
	removed, err := db.PruneResponses(age)
	if err != nil {
		exitWithError(ExitError, "pruning: %v", err)
	}
	remaining, err := db.CountResponses()
	if err != nil {
		exitWithError(ExitError, "counting responses: %v", err)
	}

	resp := PruneResponse{
		Removed:   removed,
		Remaining: remaining,
		Path:      config.ResponsesPath(cfg.ResolveCacheDir()),
	}
	if humanOutput {
		outputHuman("removed %d responses, %d left in %s\n", resp.Removed, resp.Remaining, resp.Path)
		return
	}
	mustOutputJSON(resp)
}

// CachePathResponse is the JSON output of cg cache path.
type CachePathResponse struct {
	Dir  string `json:"dir"`
	Path string `json:"path,omitempty"`
}

func runCachePath(cmd *cobra.Command, args []string) {
	cfg := loadConfigOrDefault()
	store := refcache.New(config.RefsPath(cfg.ResolveCacheDir()))
	resp := CachePathResponse{Dir: store.Dir()}
	if len(args) > 0 {
		resp.Path = store.Path(args[0])
	}
	if humanOutput {
		if resp.Path != "" {
			outputHuman("%s\n", resp.Path)
		} else {
			outputHuman("%s\n", resp.Dir)
		}
		return
	}
	mustOutputJSON(resp)
}
