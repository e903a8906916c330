package report

import (
	"io"
	"strings"
	"unicode/utf8"
)

// column describes one table column. Max of zero means unbounded.
type column struct {
	header string
	max    int
	right  bool
}

// table renders rows under headers with an underline, two spaces between
// columns, and an optional labeled separator line before row sepAt.
type table struct {
	columns  []column
	rows     [][]string
	sepAt    int
	sepLabel string
}

func newTable(cols ...column) *table {
	return &table{columns: cols, sepAt: -1}
}

func (t *table) add(cells ...string) {
	for i := range cells {
		if m := t.columns[i].max; m > 0 {
			cells[i] = truncate(cells[i], m)
		}
	}
	t.rows = append(t.rows, cells)
}

// separate places a separator line before the next added row.
func (t *table) separate(label string) {
	t.sepAt = len(t.rows)
	t.sepLabel = label
}

func (t *table) write(w io.Writer) error {
	widths := make([]int, len(t.columns))
	for i, c := range t.columns {
		widths[i] = width(c.header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if n := width(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var sb strings.Builder

	// Header
	for i, c := range t.columns {
		if i > 0 {
			sb.WriteString("  ")
		}
		sb.WriteString(pad(c.header, widths[i], c.right))
	}
	sb.WriteString("\n")

	// Underline
	for i, w := range widths {
		if i > 0 {
			sb.WriteString("  ")
		}
		sb.WriteString(strings.Repeat("-", w))
	}
	sb.WriteString("\n")

	// Rows
	for r, row := range t.rows {
		if r == t.sepAt {
			sb.WriteString(strings.Repeat("-", 32) + " " + t.sepLabel + "\n")
		}
		for i, cell := range row {
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(pad(cell, widths[i], t.columns[i].right))
		}
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, trimTrailing(sb.String()))
	return err
}

func width(s string) int {
	return utf8.RuneCountInString(s)
}

func truncate(s string, n int) string {
	if width(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func pad(s string, w int, right bool) string {
	n := width(s)
	if n >= w {
		return s
	}
	if right {
		return strings.Repeat(" ", w-n) + s
	}
	return s + strings.Repeat(" ", w-n)
}

// trimTrailing removes padding at line ends.
func trimTrailing(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return strings.Join(lines, "\n")
}
