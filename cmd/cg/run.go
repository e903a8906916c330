package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/citegraph/internal/acquire"
	"github.com/matsen/citegraph/internal/aggregate"
	"github.com/matsen/citegraph/internal/config"
	"github.com/matsen/citegraph/internal/export"
	"github.com/matsen/citegraph/internal/notes"
	"github.com/matsen/citegraph/internal/reference"
	"github.com/matsen/citegraph/internal/report"
)

var (
	runParallel   int
	runShowRefPos bool
	runMinRefs    int
	runNotesDir   string
	runBibTeX     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Acquire the project's papers and rank the works they cite",
	Long: `Fetch every identifier of the project file, gather complete reference
lists (from the cache when fresh) and rank the cited works by how many
query papers cite them. Ignored works are listed after the others.

Examples:
  cg run --human
  cg run --parallel 8 --show-ref-pos --min-refs 2 --human
  cg run --notes-dir obs_tmp --bibtex refs.bib`,
	Args: cobra.NoArgs,
	Run:  runRun,
}

func init() {
	runCmd.Flags().IntVar(&runParallel, "parallel", 0, "Number of parallel workers (default: num_proc from the project file)")
	runCmd.Flags().BoolVar(&runShowRefPos, "show-ref-pos", false, "List where each cited work appears")
	runCmd.Flags().IntVar(&runMinRefs, "min-refs", 0, "Only list works cited by at least this many distinct query papers")
	runCmd.Flags().StringVar(&runNotesDir, "notes-dir", "", "Write a note per query paper into this directory")
	runCmd.Flags().StringVar(&runBibTeX, "bibtex", "", "Append the cited works to this BibTeX file")
	rootCmd.AddCommand(runCmd)
}

// RunResponse is the JSON output of cg run.
type RunResponse struct {
	RunID          string             `json:"run_id"`
	Topic          string             `json:"topic,omitempty"`
	Papers         []report.PaperRow  `json:"papers"`
	CitedWorks     []report.CitedWork `json:"cited_works"`
	Unresolved     int                `json:"unresolved_references"`
	Failed         []FailureResponse  `json:"failed,omitempty"`
	NotesWritten   []string           `json:"notes_written,omitempty"`
	BibTeXAppended int                `json:"bibtex_appended,omitempty"`
	ProviderError  string             `json:"provider_error,omitempty"`
}

func runRun(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig()
	if cmd.Flags().Changed("show-ref-pos") {
		cfg.ShowRefPos = runShowRefPos
	}
	if cmd.Flags().Changed("min-refs") {
		cfg.MinRefs = runMinRefs
	}
	if runNotesDir != "" {
		cfg.NotesDir = config.ExpandPath(runNotesDir)
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, acqErr := acquireResult(ctx, cfg, workerCount(runParallel, cfg))
	ranked := res.Ranked()
	opts := report.ReferenceOptions{ShowPositions: cfg.ShowRefPos, MinRefs: cfg.MinRefs}

	var written []string
	if cfg.NotesDir != "" {
		written = writeNotes(cfg, res)
	}

	appended := 0
	if runBibTeX != "" {
		n, err := export.AppendNew(runBibTeX, citedReferences(ranked, cfg.MinRefs))
		if err != nil {
			exitWithError(ExitError, "appending to %s: %v", runBibTeX, err)
		}
		appended = n
	}

	if humanOutput {
		printRunHuman(res, ranked, opts)
		if len(written) > 0 {
			outputHuman("\nwrote %d notes to %s\n", len(written), cfg.NotesDir)
		}
		if runBibTeX != "" {
			outputHuman("appended %d entries to %s\n", appended, runBibTeX)
		}
	} else {
		mustOutputJSON(RunResponse{
			RunID:          res.RunID,
			Topic:          cfg.Topic,
			Papers:         report.PaperRows(res.Papers, false),
			CitedWorks:     report.CitedWorks(ranked, opts),
			Unresolved:     res.Index.Unresolved(),
			Failed:         failures(res),
			NotesWritten:   written,
			BibTeXAppended: appended,
			ProviderError:  errString(acqErr),
		})
	}

	if acqErr != nil {
		os.Exit(ExitProviderError)
	}
}

func printRunHuman(res *acquire.Result, ranked []aggregate.Ranked, opts report.ReferenceOptions) {
	w := os.Stdout
	if err := report.Papers(w, res.Papers, false); err != nil {
		exitWithError(ExitError, "writing report: %v", err)
	}
	fmt.Fprintln(w)
	if err := report.Papers(w, res.Papers, true); err != nil {
		exitWithError(ExitError, "writing report: %v", err)
	}
	fmt.Fprintln(w)
	if err := report.References(w, ranked, opts); err != nil {
		exitWithError(ExitError, "writing report: %v", err)
	}

	if n := res.Index.Unresolved(); n > 0 {
		outputHuman("\n%d references without a provider id were skipped\n", n)
	}
	if failed := failures(res); len(failed) > 0 {
		outputHuman("\nFailed identifiers:\n")
		for _, f := range failed {
			outputHuman("  %s: %s\n", f.ID, f.Reason)
		}
	}
}

func failures(res *acquire.Result) []FailureResponse {
	var out []FailureResponse
	for _, id := range res.FailedIDs() {
		out = append(out, FailureResponse{ID: id, Reason: errString(res.Failed[id])})
	}
	return out
}

// writeNotes creates a note per fetched query paper. Existing notes are left
// untouched.
func writeNotes(cfg *config.Config, res *acquire.Result) []string {
	if err := os.MkdirAll(cfg.NotesDir, 0o755); err != nil {
		exitWithError(ExitError, "creating notes directory: %v", err)
	}
	var written []string
	for _, p := range res.Papers {
		if p == nil {
			continue
		}
		path, err := notes.Write(cfg.NotesDir, notes.FromPaper(p, cfg.Topic))
		switch {
		case errors.Is(err, notes.ErrExists):
			logger.Debug("note exists", zap.String("path", path))
		case err != nil:
			logger.Warn("writing note failed", zap.String("title", p.Title), zap.Error(err))
		default:
			written = append(written, path)
		}
	}
	return written
}

// citedReferences returns the non-ignored cited works that pass minRefs.
func citedReferences(ranked []aggregate.Ranked, minRefs int) []reference.Reference {
	var refs []reference.Reference
	for _, r := range aggregate.FilterMinPapers(ranked, minRefs) {
		if !r.Ignored {
			refs = append(refs, r.Ref)
		}
	}
	return refs
}
