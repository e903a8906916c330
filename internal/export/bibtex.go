// Package export renders papers and cited works as BibTeX.
package export

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/matsen/citegraph/internal/reference"
)

// ToBibTeX converts a cited work to BibTeX format.
func ToBibTeX(ref reference.Reference) string {
	entryType := determineEntryType(ref)
	var b strings.Builder

	b.WriteString(fmt.Sprintf("@%s{%s,\n", entryType, CiteKey(ref)))

	// Authors
	if names := reference.SplitAuthors(ref.Authors); len(names) > 0 {
		b.WriteString(fmt.Sprintf("  author = {%s},\n", formatAuthors(names)))
	}

	// Title
	title := ref.Title
	if title == "" {
		title = ref.SourceTitle
	}
	b.WriteString(fmt.Sprintf("  title = {%s},\n", escapeLatex(title)))

	// Venue
	if ref.SourceTitle != "" && ref.Title != "" {
		fieldName := "journal"
		if entryType == "inproceedings" {
			fieldName = "booktitle"
		}
		b.WriteString(fmt.Sprintf("  %s = {%s},\n", fieldName, escapeLatex(ref.SourceTitle)))
	}

	// Year (optional)
	if y := ref.Year(); y > 0 {
		b.WriteString(fmt.Sprintf("  year = {%d},\n", y))
	}

	if ref.Volume != "" {
		b.WriteString(fmt.Sprintf("  volume = {%s},\n", ref.Volume))
	}
	if ref.Issue != "" {
		b.WriteString(fmt.Sprintf("  number = {%s},\n", ref.Issue))
	}
	if pages := ref.Pages(); pages != "" {
		b.WriteString(fmt.Sprintf("  pages = {%s},\n", strings.Replace(pages, "-", "--", 1)))
	}

	// DOI (optional)
	if ref.DOI != "" {
		b.WriteString(fmt.Sprintf("  doi = {%s},\n", ref.DOI))
	}

	b.WriteString("}\n")

	return b.String()
}

// PaperToBibTeX converts a queried paper to BibTeX format.
func PaperToBibTeX(p reference.Paper) string {
	names, ids := reference.JoinAuthors(p.Authors)
	return ToBibTeX(reference.Reference{
		ID:           p.ScopusID,
		DOI:          p.DOI,
		Title:        p.Title,
		Authors:      names,
		AuthorIDs:    ids,
		SourceTitle:  p.Venue,
		CoverDate:    p.CoverDate,
		CitedByCount: p.CitedByCount,
	})
}

// ToBibTeXList converts multiple references to BibTeX format.
func ToBibTeXList(refs []reference.Reference) string {
	var entries []string
	for _, ref := range refs {
		entries = append(entries, ToBibTeX(ref))
	}
	return strings.Join(entries, "\n")
}

// CiteKey builds a citation key from the first author's surname, the year,
// and the tail of the Scopus id, e.g. "MurArtal2015-6827".
func CiteKey(ref reference.Reference) string {
	var b strings.Builder
	if names := reference.SplitAuthors(ref.Authors); len(names) > 0 {
		surname, _ := splitIndexedName(names[0])
		for _, r := range surname {
			if unicode.IsLetter(r) {
				b.WriteRune(r)
			}
		}
	}
	if b.Len() == 0 {
		b.WriteString("Anon")
	}
	if y := ref.Year(); y > 0 {
		b.WriteString(strconv.Itoa(y))
	}

	suffix := ref.ID
	if suffix == "" {
		suffix = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, ref.DOI)
	}
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	if suffix == "" {
		suffix = fmt.Sprintf("r%d", ref.Position)
	}
	return b.String() + "-" + suffix
}

// determineEntryType returns the BibTeX entry type for a reference.
func determineEntryType(ref reference.Reference) string {
	venue := strings.ToLower(ref.SourceTitle)

	// Preprints
	if strings.Contains(venue, "arxiv") ||
		strings.Contains(venue, "biorxiv") ||
		strings.Contains(venue, "medrxiv") {
		return "article"
	}

	// Conference proceedings
	if strings.Contains(venue, "proceedings") ||
		strings.Contains(venue, "conference") ||
		strings.Contains(venue, "workshop") ||
		strings.Contains(venue, "symposium") {
		return "inproceedings"
	}

	// Cited works without a resolvable venue
	if ref.Title == "" {
		return "misc"
	}

	// Default to article
	return "article"
}

// formatAuthors formats indexed names ("Smith J.") in BibTeX style:
// "Smith, J. and Doe, A."
func formatAuthors(names []string) string {
	formatted := make([]string, 0, len(names))
	for _, n := range names {
		surname, initials := splitIndexedName(n)
		if initials != "" {
			formatted = append(formatted, fmt.Sprintf("%s, %s", surname, initials))
		} else {
			formatted = append(formatted, surname)
		}
	}
	return strings.Join(formatted, " and ")
}

// splitIndexedName splits "Van Gool L." into ("Van Gool", "L.").
func splitIndexedName(name string) (surname, initials string) {
	name = strings.TrimSpace(name)
	i := strings.LastIndexByte(name, ' ')
	if i < 0 || !strings.HasSuffix(name, ".") {
		return name, ""
	}
	return name[:i], name[i+1:]
}

// escapeLatex escapes special LaTeX characters.
func escapeLatex(s string) string {
	// Order matters: & must be first (before other escapes that might produce &)
	replacer := strings.NewReplacer(
		"&", `\&`,
		"%", `\%`,
		"$", `\$`,
		"#", `\#`,
		"_", `\_`,
		"{", `\{`,
		"}", `\}`,
		"~", `\textasciitilde{}`,
		"^", `\textasciicircum{}`,
	)
	return replacer.Replace(s)
}
