package main

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/export"
	"github.com/matsen/citegraph/internal/reference"
	"github.com/matsen/citegraph/internal/report"
)

var (
	refsParallel int
	refsBibTeX   bool
)

var refsCmd = &cobra.Command{
	Use:   "refs <index>",
	Short: "Show the bibliography of one query paper",
	Long: `Show the reference list of the query paper at <index> (0-based, input order).

Examples:
  cg refs 0 --human
  cg refs 3 --bibtex > paper3.bib`,
	Args: cobra.ExactArgs(1),
	Run:  runRefs,
}

func init() {
	refsCmd.Flags().IntVar(&refsParallel, "parallel", 0, "Number of parallel workers (default: num_proc from the project file)")
	refsCmd.Flags().BoolVar(&refsBibTeX, "bibtex", false, "Print BibTeX entries")
	rootCmd.AddCommand(refsCmd)
}

// RefsResponse is the JSON output of cg refs.
type RefsResponse struct {
	Index      int                   `json:"index"`
	ID         string                `json:"id"`
	Title      string                `json:"title"`
	References []reference.Reference `json:"references"`
}

func runRefs(cmd *cobra.Command, args []string) {
	i, err := strconv.Atoi(args[0])
	if err != nil {
		exitWithError(ExitError, "invalid index %q", args[0])
	}

	cfg := mustLoadConfig()
	ctx, cancel := signalContext()
	defer cancel()

	res, _ := acquireResult(ctx, cfg, workerCount(refsParallel, cfg))
	refs, err := res.Bibliography(i)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	switch {
	case refsBibTeX:
		outputHuman("%s", export.ToBibTeXList(refs))
	case humanOutput:
		title := res.IDs[i]
		if p := res.Papers[i]; p != nil {
			title = p.Title
		}
		if err := report.Bibliography(os.Stdout, report.PaperLabel(i)+" "+title, refs); err != nil {
			exitWithError(ExitError, "writing report: %v", err)
		}
	default:
		resp := RefsResponse{Index: i, ID: res.IDs[i], References: refs}
		if p := res.Papers[i]; p != nil {
			resp.Title = p.Title
		}
		mustOutputJSON(resp)
	}
}
