// Package report renders acquisition results as console tables and as
// JSON-friendly rows.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/matsen/citegraph/internal/aggregate"
	"github.com/matsen/citegraph/internal/reference"
)

const (
	titleWidth  = 60
	venueWidth  = 40
	authorWidth = 20
	affilWidth  = 30
)

// PaperRow is one queried paper.
type PaperRow struct {
	Index            int    `json:"index"`
	CitedBy          int    `json:"citedby"`
	Title            string `json:"title"`
	CoverDate        string `json:"cover_date"`
	VenueAbbrev      string `json:"venue_abbrev"`
	LastAuthor       string `json:"last_author"`
	FirstAffiliation string `json:"first_affiliation"`
	DOI              string `json:"doi"`
	ScopusID         string `json:"scopus_id"`
}

// PaperRows lists the successfully fetched papers, in input order or by
// citation count (stable, so ties keep input order).
func PaperRows(papers []*reference.Paper, byCitations bool) []PaperRow {
	var rows []PaperRow
	for i, p := range papers {
		if p == nil {
			continue
		}
		rows = append(rows, PaperRow{
			Index:            i,
			CitedBy:          p.CitedByCount,
			Title:            p.Title,
			CoverDate:        p.CoverDate,
			VenueAbbrev:      p.VenueAbbrev,
			LastAuthor:       p.LastAuthor(),
			FirstAffiliation: p.FirstAffiliation(),
			DOI:              p.DOI,
			ScopusID:         p.ScopusID,
		})
	}
	if byCitations {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].CitedBy > rows[j].CitedBy })
	}
	return rows
}

// Papers writes the query-paper table.
func Papers(w io.Writer, papers []*reference.Paper, byCitations bool) error {
	heading := "Query papers (Input order)"
	if byCitations {
		heading = "Query papers (Most cited)"
	}
	if _, err := fmt.Fprintf(w, "\n%s %s\n", strings.Repeat("#", 32), heading); err != nil {
		return err
	}

	t := newTable(
		column{header: "#", right: true},
		column{header: "cites", right: true},
		column{header: "title", max: titleWidth},
		column{header: "cover date"},
		column{header: "source title abbr", max: venueWidth},
		column{header: "last author", max: authorWidth},
		column{header: "first affil", max: affilWidth},
		column{header: "doi"},
	)
	for _, r := range PaperRows(papers, byCitations) {
		t.add(PaperLabel(r.Index), strconv.Itoa(r.CitedBy), r.Title, r.CoverDate,
			r.VenueAbbrev, r.LastAuthor, r.FirstAffiliation, r.DOI)
	}
	return t.write(w)
}

// PaperLabel is the short tag of an input paper, e.g. "3r".
func PaperLabel(i int) string {
	return strconv.Itoa(i) + "r"
}

// ReferenceOptions controls the cited-works table.
type ReferenceOptions struct {
	// ShowPositions appends each work's occurrence set, e.g. "3r@12".
	ShowPositions bool
	// MinRefs hides works cited by fewer distinct input papers.
	MinRefs int
}

// CitedWork is one row of the ranked cited-works list.
type CitedWork struct {
	Rank        int                    `json:"rank"`
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Year        int                    `json:"year,omitempty"`
	SourceTitle string                 `json:"sourcetitle"`
	DOI         string                 `json:"doi,omitempty"`
	CitedBy     int                    `json:"citedby"`
	LocalCites  int                    `json:"local_cites"`
	Ignored     bool                   `json:"ignored,omitempty"`
	Occurrences []aggregate.Occurrence `json:"occurrences,omitempty"`
}

// CitedWorks converts ranked entries to rows, applying opts.MinRefs.
func CitedWorks(ranked []aggregate.Ranked, opts ReferenceOptions) []CitedWork {
	ranked = aggregate.FilterMinPapers(ranked, opts.MinRefs)
	rows := make([]CitedWork, 0, len(ranked))
	for i, r := range ranked {
		row := CitedWork{
			Rank:        i + 1,
			ID:          r.Ref.ID,
			Title:       r.Ref.Title,
			Year:        r.Ref.Year(),
			SourceTitle: r.Ref.SourceTitle,
			DOI:         r.Ref.DOI,
			CitedBy:     r.Ref.CitedByCount,
			LocalCites:  r.Count(),
			Ignored:     r.Ignored,
		}
		if opts.ShowPositions {
			row.Occurrences = r.Occurrences()
		}
		rows = append(rows, row)
	}
	return rows
}

// OccurrenceLabel renders an occurrence as "3r@12".
func OccurrenceLabel(o aggregate.Occurrence) string {
	return fmt.Sprintf("%s@%d", PaperLabel(o.Paper), o.Position)
}

// References writes the ranked cited-works table. Ignored works follow a
// separator line.
func References(w io.Writer, ranked []aggregate.Ranked, opts ReferenceOptions) error {
	if _, err := fmt.Fprintf(w, "\n%s Cited papers\n", strings.Repeat("#", 32)); err != nil {
		return err
	}

	cols := []column{
		{header: "#", right: true},
		{header: "local cites", right: true},
		{header: "total cites", right: true},
		{header: "title", max: titleWidth},
		{header: "pub year"},
		{header: "source title", max: venueWidth},
		{header: "scopus_id"},
	}
	if opts.ShowPositions {
		cols = append(cols, column{header: "occurrences"})
	}
	t := newTable(cols...)

	separated := false
	for _, r := range CitedWorks(ranked, opts) {
		if r.Ignored && !separated {
			t.separate("Ignored references:")
			separated = true
		}
		cells := []string{
			strconv.Itoa(r.Rank),
			strconv.Itoa(r.LocalCites),
			dash(r.CitedBy),
			r.Title,
			dash(r.Year),
			r.SourceTitle,
			r.ID,
		}
		if opts.ShowPositions {
			labels := make([]string, len(r.Occurrences))
			for i, o := range r.Occurrences {
				labels[i] = OccurrenceLabel(o)
			}
			cells = append(cells, strings.Join(labels, ", "))
		}
		t.add(cells...)
	}
	return t.write(w)
}

// Bibliography writes one input paper's reference list in its own order.
func Bibliography(w io.Writer, label string, refs []reference.Reference) error {
	if _, err := fmt.Fprintf(w, "\n%s Bibliography of %s (%d references)\n", strings.Repeat("#", 32), label, len(refs)); err != nil {
		return err
	}

	t := newTable(
		column{header: "pos", right: true},
		column{header: "cites", right: true},
		column{header: "title", max: titleWidth},
		column{header: "year"},
		column{header: "source title", max: venueWidth},
		column{header: "first author", max: authorWidth},
		column{header: "scopus_id"},
	)
	for _, r := range refs {
		first := ""
		if names := reference.SplitAuthors(r.Authors); len(names) > 0 {
			first = names[0]
		}
		t.add(strconv.Itoa(r.Position), dash(r.CitedByCount), r.Title, dash(r.Year()),
			r.SourceTitle, first, r.ID)
	}
	return t.write(w)
}

func dash(n int) string {
	if n == 0 {
		return "-"
	}
	return strconv.Itoa(n)
}
