package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/acquire"
	"github.com/matsen/citegraph/internal/clipboard"
)

var (
	watchInterval time.Duration
	watchTimeout  time.Duration
	watchParallel int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Look up clipboard text in the acquisition results",
	Long: `Acquire the project (from the cache when fresh), then poll the clipboard.
Whenever it holds a new DOI, Scopus id or title fragment, print the matching
query papers and cited works with the places they are cited.

Stops on Ctrl-C or after --timeout.

Examples:
  cg watch
  cg watch --interval 1s --timeout 30m`,
	Args: cobra.NoArgs,
	Run:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", clipboard.DefaultInterval, "Clipboard polling interval")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 0, "Stop after this long (0 runs until interrupted)")
	watchCmd.Flags().IntVar(&watchParallel, "parallel", 0, "Number of parallel workers (default: num_proc from the project file)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	if !clipboard.IsAvailable() {
		exitWithError(ExitError, "%v: install xclip or xsel", clipboard.ErrClipboardUnavailable)
	}

	cfg := mustLoadConfig()
	ctx, cancel := signalContext()
	defer cancel()

	res, acqErr := acquireResult(ctx, cfg, workerCount(watchParallel, cfg))
	if err := writeFailures(os.Stderr, res, acqErr); err != nil {
		exitWithError(ExitError, "writing failures: %v", err)
	}

	if watchTimeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, watchTimeout)
		defer stop()
	}

	w := &clipboard.Watcher{
		Result:   res,
		Out:      os.Stdout,
		Interval: watchInterval,
		Logger:   logger.Named("watch"),
	}
	outputHuman("watching the clipboard (%d query papers, %d cited works)\n", len(res.IDs), res.Index.Len())
	err := w.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		exitWithError(ExitError, "%v", err)
	}
}

// writeFailures lists the identifiers missing from res.
func writeFailures(w io.Writer, res *acquire.Result, acqErr error) error {
	failed := failures(res)
	if len(failed) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(w, "warning: %d of %d identifiers failed and are not searched:\n", len(failed), len(res.IDs)); err != nil {
		return err
	}
	for _, f := range failed {
		if _, err := fmt.Fprintf(w, "  %s: %s\n", f.ID, f.Reason); err != nil {
			return err
		}
	}
	if acqErr != nil {
		if _, err := fmt.Fprintln(w, "warning: some failures were unexpected provider errors; rerun cg run for details"); err != nil {
			return err
		}
	}
	return nil
}
