package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matsen/citegraph/internal/config"
	"github.com/matsen/citegraph/internal/doimeta"
	"github.com/matsen/citegraph/internal/fetch"
	"github.com/matsen/citegraph/internal/notes"
)

var (
	notesDir     string
	notesMaxAge  float64
	notesWorkers int
)

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Create and update Markdown paper notes",
	Long: `Create and update Markdown paper notes with YAML frontmatter.

Notes are written to --notes-dir, or notes_dir from the project file.`,
}

var notesUpdateCmd = &cobra.Command{
	Use:   "update [dir]",
	Short: "Refresh the citedby count of every note with a scopus_id",
	Long: `Walk a notes directory and rewrite the citedby value of every note whose
frontmatter carries a scopus_id. All other lines are kept as they are.

Examples:
  cg notes update obs_tmp --human
  cg notes update --max-age 0`,
	Args: cobra.MaximumNArgs(1),
	Run:  runNotesUpdate,
}

var notesFromDOICmd = &cobra.Command{
	Use:   "from-doi [doi...]",
	Short: "Create notes from DOIs",
	Long: `Create one note per DOI from doi.org metadata. Without arguments the
doi_list of the project file is used.

Examples:
  cg notes from-doi 10.1109/LRA.2018.2800120 --notes-dir obs_tmp`,
	Run: runNotesFromDOI,
}

var notesFromArxivCmd = &cobra.Command{
	Use:   "from-arxiv [id...]",
	Short: "Create notes from arXiv ids",
	Long: `Create one note per arXiv id from its abstract page. Without arguments
the arxiv_ids of the project file are used.

Examples:
  cg notes from-arxiv 1910.02490 --notes-dir obs_tmp`,
	Run: runNotesFromArxiv,
}

func init() {
	notesCmd.PersistentFlags().StringVar(&notesDir, "notes-dir", "", "Notes directory (default: notes_dir from the project file)")
	notesCmd.PersistentFlags().IntVar(&notesWorkers, "workers", 4, "Concurrent metadata lookups")
	notesUpdateCmd.Flags().Float64Var(&notesMaxAge, "max-age", 1, "Accept cached provider responses younger than this many days (0 forces a refresh)")
	notesCmd.AddCommand(notesUpdateCmd, notesFromDOICmd, notesFromArxivCmd)
	rootCmd.AddCommand(notesCmd)
}

// resolveNotesDir picks the notes directory: argument, flag, project file,
// global config.
func resolveNotesDir(cfg *config.Config, args []string) string {
	switch {
	case len(args) > 0:
		return config.ExpandPath(args[0])
	case notesDir != "":
		return config.ExpandPath(notesDir)
	case cfg.NotesDir != "":
		return cfg.NotesDir
	}
	if g, err := config.LoadGlobalConfig(); err == nil && g.NotesDir != "" {
		return config.ExpandPath(g.NotesDir)
	}
	exitWithError(ExitConfigError, "no notes directory: pass one or set notes_dir")
	return ""
}

// NoteUpdateResponse is one line of cg notes update output.
type NoteUpdateResponse struct {
	Path     string `json:"path"`
	ScopusID string `json:"scopus_id"`
	Old      int    `json:"old"`
	New      int    `json:"new"`
	Changed  bool   `json:"changed"`
	Error    string `json:"error,omitempty"`
}

func runNotesUpdate(cmd *cobra.Command, args []string) {
	cfg := loadConfigOrDefault()
	dir := resolveNotesDir(cfg, args)

	db := mustOpenStore(cfg)
	defer db.Close()
	adapter := fetch.NewAdapter(mustScopusClient(db),
		fetch.WithMinGap(cfg.MinGap),
		fetch.WithLogger(logger.Named("fetch")))

	refresh := fetch.MaxAge(notesMaxAge)
	if notesMaxAge <= 0 {
		refresh = fetch.ForceRefresh
	}
	lookup := func(ctx context.Context, scopusID string) (int, error) {
		// The EID form keeps short ids from being read as PubMed ids.
		resp, err := adapter.Fetch(ctx, "2-s2.0-"+scopusID, fetch.ViewFull, refresh, 0)
		if err != nil {
			return 0, err
		}
		if resp.Paper == nil {
			return 0, fmt.Errorf("no metadata for %s", scopusID)
		}
		return resp.Paper.CitedByCount, nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	updates, err := notes.UpdateCitedBy(ctx, dir, lookup, logger.Named("notes"))
	if err != nil {
		exitWithError(ExitError, "updating notes: %v", err)
	}

	failed := 0
	if humanOutput {
		for _, u := range updates {
			switch {
			case u.Err != nil:
				failed++
				outputHuman("FAIL %s: %v\n", u.Path, u.Err)
			case u.Changed:
				outputHuman("%5d -> %-5d %s\n", u.Old, u.New, u.Path)
			}
		}
		outputHuman("%d notes checked, quota remaining %s\n", len(updates), quotaLabel(adapter.RemainingQuota()))
	} else {
		out := make([]NoteUpdateResponse, 0, len(updates))
		for _, u := range updates {
			if u.Err != nil {
				failed++
			}
			out = append(out, NoteUpdateResponse{
				Path: u.Path, ScopusID: u.ScopusID, Old: u.Old, New: u.New,
				Changed: u.Changed, Error: errString(u.Err),
			})
		}
		mustOutputJSON(out)
	}
	if failed > 0 {
		exitWithError(ExitProviderError, "%d notes could not be updated", failed)
	}
}

func quotaLabel(q string) string {
	if q == "" {
		return "unchanged (all cached)"
	}
	return q
}

// NoteCreateResponse is one line of cg notes from-doi / from-arxiv output.
type NoteCreateResponse struct {
	ID     string `json:"id"`
	Path   string `json:"path,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// metadataLookup resolves one identifier to note metadata.
type metadataLookup func(ctx context.Context, id string) (notes.Metadata, error)

func runNotesFromDOI(cmd *cobra.Command, args []string) {
	cfg := loadConfigOrDefault()
	ids := args
	if len(ids) == 0 {
		ids = cfg.DOIList
	}
	client := doimeta.NewDOIClient()
	createNotes(cfg, ids, client.Lookup)
}

func runNotesFromArxiv(cmd *cobra.Command, args []string) {
	cfg := loadConfigOrDefault()
	ids := args
	if len(ids) == 0 {
		ids = cfg.ArxivIDs
	}
	client := doimeta.NewArxivClient()
	createNotes(cfg, ids, client.Lookup)
}

// createNotes looks ids up with bounded concurrency and writes one note each.
// Failures are reported per id; only cancellation stops the batch.
func createNotes(cfg *config.Config, ids []string, lookup metadataLookup) {
	if len(ids) == 0 {
		exitWithError(ExitError, "no identifiers given")
	}
	dir := resolveNotesDir(cfg, nil)

	ctx, cancel := signalContext()
	defer cancel()

	results := make([]NoteCreateResponse, len(ids))
	var mu sync.Mutex // serializes note creation so equal titles do not race
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(notesWorkers, 1))
	for i, id := range ids {
		g.Go(func() error {
			meta, err := lookup(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("metadata lookup failed", zap.String("id", id), zap.Error(err))
				results[i] = NoteCreateResponse{ID: id, Status: "failed", Error: err.Error()}
				return nil
			}
			meta.Topic = cfg.Topic

			mu.Lock()
			path, err := notes.Write(dir, meta)
			mu.Unlock()
			switch {
			case errors.Is(err, notes.ErrExists):
				results[i] = NoteCreateResponse{ID: id, Path: path, Status: "exists"}
			case err != nil:
				results[i] = NoteCreateResponse{ID: id, Status: "failed", Error: err.Error()}
			default:
				results[i] = NoteCreateResponse{ID: id, Path: path, Status: "created"}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		exitWithError(ExitError, "interrupted: %v", err)
	}

	failed := 0
	for _, r := range results {
		if r.Status == "failed" {
			failed++
		}
	}
	if humanOutput {
		for _, r := range results {
			if r.Error != "" {
				outputHuman("%-8s %s: %s\n", r.Status, r.ID, r.Error)
			} else {
				outputHuman("%-8s %s\n", r.Status, r.Path)
			}
		}
	} else {
		mustOutputJSON(results)
	}
	if failed > 0 {
		exitWithError(ExitProviderError, "%d of %d lookups failed", failed, len(ids))
	}
}
