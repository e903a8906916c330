package reference

import "strings"

// AuthorSeparator joins author names in the flat Reference representation.
const AuthorSeparator = "; "

// Author is a paper author as indexed by the provider.
type Author struct {
	ID          string `json:"auid,omitempty"`
	IndexedName string `json:"indexed_name"` // e.g. "Smith J."
	Surname     string `json:"surname,omitempty"`
	GivenName   string `json:"given_name,omitempty"`
}

// Affiliation is an institution listed on a paper.
type Affiliation struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

// JoinAuthors flattens authors into the parallel name and id strings used by
// Reference.
func JoinAuthors(authors []Author) (names, ids string) {
	n := make([]string, len(authors))
	a := make([]string, len(authors))
	for i, au := range authors {
		n[i] = au.IndexedName
		a[i] = au.ID
	}
	return strings.Join(n, AuthorSeparator), strings.Join(a, AuthorSeparator)
}

// SplitAuthors is the inverse of JoinAuthors for the name string.
func SplitAuthors(names string) []string {
	if strings.TrimSpace(names) == "" {
		return nil
	}
	parts := strings.Split(names, AuthorSeparator)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
