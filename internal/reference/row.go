package reference

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldNames is the canonical field order of a Reference in the on-disk cache.
// Changing it invalidates every existing cache file.
var FieldNames = []string{
	"position",
	"id",
	"doi",
	"title",
	"authors",
	"authors_auid",
	"sourcetitle",
	"publicationyear",
	"coverDate",
	"volume",
	"issue",
	"first",
	"last",
	"citedbycount",
	"type",
}

// Row encodes r in FieldNames order. Text fields are escaped so that carriage
// returns survive CSV readers, which fold "\r\n" inside quoted fields to "\n".
func (r Reference) Row() []string {
	return []string{
		strconv.Itoa(r.Position),
		escapeText(r.ID),
		escapeText(r.DOI),
		escapeText(r.Title),
		escapeText(r.Authors),
		escapeText(r.AuthorIDs),
		escapeText(r.SourceTitle),
		escapeText(r.PublicationYear),
		escapeText(r.CoverDate),
		escapeText(r.Volume),
		escapeText(r.Issue),
		escapeText(r.FirstPage),
		escapeText(r.LastPage),
		strconv.Itoa(r.CitedByCount),
		escapeText(r.Type),
	}
}

// FromRow decodes a row written by Row.
func FromRow(row []string) (Reference, error) {
	if len(row) != len(FieldNames) {
		return Reference{}, fmt.Errorf("row has %d fields, want %d", len(row), len(FieldNames))
	}
	pos, err := strconv.Atoi(row[0])
	if err != nil {
		return Reference{}, fmt.Errorf("parsing position %q: %w", row[0], err)
	}
	cited := 0
	if row[13] != "" {
		cited, err = strconv.Atoi(row[13])
		if err != nil {
			return Reference{}, fmt.Errorf("parsing citedbycount %q: %w", row[13], err)
		}
	}
	return Reference{
		Position:        pos,
		ID:              unescapeText(row[1]),
		DOI:             unescapeText(row[2]),
		Title:           unescapeText(row[3]),
		Authors:         unescapeText(row[4]),
		AuthorIDs:       unescapeText(row[5]),
		SourceTitle:     unescapeText(row[6]),
		PublicationYear: unescapeText(row[7]),
		CoverDate:       unescapeText(row[8]),
		Volume:          unescapeText(row[9]),
		Issue:           unescapeText(row[10]),
		FirstPage:       unescapeText(row[11]),
		LastPage:        unescapeText(row[12]),
		CitedByCount:    cited,
		Type:            unescapeText(row[14]),
	}, nil
}

// escapeText writes a carriage return as `\r` and doubles backslashes.
func escapeText(s string) string {
	if !strings.ContainsAny(s, "\\\r") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			b.WriteString(`\\`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// unescapeText reverses escapeText. Unknown escapes are kept verbatim.
func unescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		switch s[i+1] {
		case '\\':
			b.WriteByte('\\')
			i++
		case 'r':
			b.WriteByte('\r')
			i++
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
