// Package reference defines the core domain types for queried papers and the
// works they cite.
package reference

import (
	"strconv"
	"strings"
)

// Paper is the FULL-view record of one queried publication.
type Paper struct {
	// Identity
	Identifier string `json:"identifier"` // Input identifier as given by the user
	ScopusID   string `json:"scopus_id"`  // Provider-native id
	EID        string `json:"eid,omitempty"`
	DOI        string `json:"doi"`

	// Metadata
	Title        string        `json:"title"`
	CitedByCount int           `json:"citedby"`
	Venue        string        `json:"venue"`        // prism:publicationName
	VenueAbbrev  string        `json:"venue_abbrev"` // Source title abbreviation
	CoverDate    string        `json:"cover_date"`   // YYYY-MM-DD
	Authors      []Author      `json:"authors"`
	Affiliations []Affiliation `json:"affiliations"`

	// Declared size of the REF view
	ReferenceCount int `json:"reference_count,omitempty"`
}

// Year returns the publication year taken from the cover date, or 0.
func (p Paper) Year() int {
	return yearOf(p.CoverDate)
}

// LastAuthor returns the indexed name of the last author, or "".
func (p Paper) LastAuthor() string {
	if len(p.Authors) == 0 {
		return ""
	}
	return p.Authors[len(p.Authors)-1].IndexedName
}

// FirstAffiliation returns the name of the first affiliation, or "".
func (p Paper) FirstAffiliation() string {
	if len(p.Affiliations) == 0 {
		return ""
	}
	return p.Affiliations[0].Name
}

// Reference is one entry of a paper's bibliography as returned by the REF view.
// ID is the aggregation key across papers.
type Reference struct {
	Position        int    `json:"position"` // 1-based index within the citing paper
	ID              string `json:"id"`       // Provider-native id of the cited work
	DOI             string `json:"doi"`
	Title           string `json:"title"`
	Authors         string `json:"authors"`      // "; "-joined indexed names
	AuthorIDs       string `json:"authors_auid"` // "; "-joined author ids, parallel to Authors
	SourceTitle     string `json:"sourcetitle"`
	PublicationYear string `json:"publicationyear"`
	CoverDate       string `json:"coverDate"`
	Volume          string `json:"volume"`
	Issue           string `json:"issue"`
	FirstPage       string `json:"first"`
	LastPage        string `json:"last"`
	CitedByCount    int    `json:"citedbycount"` // 0 when the provider gives none
	Type            string `json:"type"`
}

// Year returns the publication year of the cited work, or 0.
func (r Reference) Year() int {
	if y := yearOf(r.PublicationYear); y != 0 {
		return y
	}
	return yearOf(r.CoverDate)
}

// Pages formats the page range, e.g. "12-19".
func (r Reference) Pages() string {
	switch {
	case r.FirstPage != "" && r.LastPage != "":
		return r.FirstPage + "-" + r.LastPage
	default:
		return r.FirstPage + r.LastPage
	}
}

func yearOf(s string) int {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return 0
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0
	}
	return y
}
