package clipboard

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matsen/citegraph/internal/acquire"
	"github.com/matsen/citegraph/internal/aggregate"
	"github.com/matsen/citegraph/internal/reference"
	"github.com/matsen/citegraph/internal/report"
)

const (
	// DefaultInterval is the clipboard polling period.
	DefaultInterval = 500 * time.Millisecond

	// minFragment is the shortest text treated as a title fragment.
	minFragment = 8
)

// Match is one hit of a lookup. Exactly one of Paper and Entry is set.
type Match struct {
	PaperIndex int
	Paper      *reference.Paper
	Rank       int
	Entry      *aggregate.Entry
	Ignored    bool
}

// Lookup finds the query papers and cited works that text names: a DOI, a
// provider id, or a fragment of a title.
func Lookup(res *acquire.Result, ranked []aggregate.Ranked, text string) []Match {
	q := normalizeQuery(text)
	if q == "" {
		return nil
	}
	var out []Match
	for i, p := range res.Papers {
		if p == nil {
			continue
		}
		if matches(q, p.Title, p.DOI, p.ScopusID, res.IDs[i], p.EID) {
			out = append(out, Match{PaperIndex: i, Paper: p})
		}
	}
	for i, r := range ranked {
		if matches(q, r.Ref.Title, r.Ref.DOI, r.Ref.ID) {
			out = append(out, Match{Rank: i + 1, Entry: r.Entry, Ignored: r.Ignored})
		}
	}
	return out
}

func normalizeQuery(text string) string {
	q := strings.ToLower(strings.TrimSpace(text))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "doi:", "scopus_id:", "2-s2.0-"} {
		q = strings.TrimPrefix(q, prefix)
	}
	return strings.TrimSpace(q)
}

// matches compares q exactly against ids and as a substring against title.
func matches(q, title string, ids ...string) bool {
	for _, id := range ids {
		if id != "" && normalizeQuery(id) == q {
			return true
		}
	}
	return len(q) >= minFragment && title != "" && strings.Contains(strings.ToLower(title), q)
}

// WriteMatches prints matches in a compact text form.
func WriteMatches(w io.Writer, text string, ms []Match) error {
	if len(ms) == 0 {
		_, err := fmt.Fprintf(w, "no match for %q\n", strings.TrimSpace(text))
		return err
	}
	for _, m := range ms {
		var err error
		if m.Paper != nil {
			_, err = fmt.Fprintf(w, "query paper %s: %s (%s, cited by %d)\n",
				report.PaperLabel(m.PaperIndex), m.Paper.Title, m.Paper.DOI, m.Paper.CitedByCount)
		} else {
			labels := make([]string, 0, m.Entry.Count())
			for _, o := range m.Entry.Occurrences() {
				labels = append(labels, report.OccurrenceLabel(o))
			}
			flag := ""
			if m.Ignored {
				flag = " [ignored]"
			}
			_, err = fmt.Fprintf(w, "cited work #%d%s %s: %s (%d) cited at %s\n",
				m.Rank, flag, m.Entry.Ref.ID, m.Entry.Ref.Title, m.Entry.Ref.Year(), strings.Join(labels, ", "))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Watcher polls a clipboard source and reports lookups of new text.
type Watcher struct {
	Result   *acquire.Result
	Read     func() (string, error)
	Out      io.Writer
	Interval time.Duration
	Logger   *zap.Logger
}

// Run polls until ctx is done. Each distinct non-empty clipboard text is
// looked up once.
func (w *Watcher) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := w.Logger
	if log == nil {
		log = zap.NewNop()
	}
	read := w.Read
	if read == nil {
		read = Paste
	}
	ranked := w.Result.Ranked()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		text, err := read()
		if err != nil {
			log.Debug("clipboard read failed", zap.Error(err))
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" || text == last {
			continue
		}
		last = text

		if err := WriteMatches(w.Out, text, Lookup(w.Result, ranked, text)); err != nil {
			return fmt.Errorf("write lookup: %w", err)
		}
	}
}
