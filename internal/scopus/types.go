package scopus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// retrievalEnvelope is the top level of an Abstract Retrieval response.
type retrievalEnvelope struct {
	Response *abstractResponse `json:"abstracts-retrieval-response"`
}

type abstractResponse struct {
	Coredata    coredata               `json:"coredata"`
	Authors     *authorList            `json:"authors"`
	Affiliation oneOrMany[affiliation] `json:"affiliation"`
	Item        *item                  `json:"item"`
	References  *referenceSection      `json:"references"`
}

type coredata struct {
	Identifier      string  `json:"dc:identifier"`
	EID             string  `json:"eid"`
	DOI             string  `json:"prism:doi"`
	Title           string  `json:"dc:title"`
	CitedByCount    flexInt `json:"citedby-count"`
	PublicationName string  `json:"prism:publicationName"`
	CoverDate       string  `json:"prism:coverDate"`
}

type authorList struct {
	Author oneOrMany[author] `json:"author"`
}

type author struct {
	AUID        flexString `json:"@auid"`
	IndexedName string     `json:"ce:indexed-name"`
	Surname     string     `json:"ce:surname"`
	GivenName   string     `json:"ce:given-name"`
}

type affiliation struct {
	ID      flexString `json:"@id"`
	Name    string     `json:"affilname"`
	City    string     `json:"affiliation-city"`
	Country string     `json:"affiliation-country"`
}

type item struct {
	Bibrecord struct {
		Head struct {
			Source struct {
				Abbrev string `json:"sourcetitle-abbrev"`
			} `json:"source"`
		} `json:"head"`
		Tail *struct {
			Bibliography struct {
				RefCount flexInt `json:"@refcount"`
			} `json:"bibliography"`
		} `json:"tail"`
	} `json:"bibrecord"`
}

type referenceSection struct {
	Total     flexInt             `json:"@total-references"`
	Reference oneOrMany[refEntry] `json:"reference"`
}

type refEntry struct {
	Position        flexInt     `json:"@id"`
	ScopusID        flexString  `json:"scopus-id"`
	DOI             string      `json:"ce:doi"`
	Title           string      `json:"title"`
	AuthorList      *authorList `json:"author-list"`
	SourceTitle     string      `json:"sourcetitle"`
	PublicationYear flexString  `json:"publicationyear"`
	CoverDate       string      `json:"prism:coverDate"`
	Volume          flexString  `json:"volume"`
	Issue           flexString  `json:"issue"`
	First           flexString  `json:"first"`
	Last            flexString  `json:"last"`
	CitedByCount    flexInt     `json:"citedby-count"`
	Type            string      `json:"type"`
}

// serviceError is the body of a non-2xx response.
type serviceError struct {
	ServiceError struct {
		Status struct {
			Code string `json:"statusCode"`
			Text string `json:"statusText"`
		} `json:"status"`
	} `json:"service-error"`
}

// oneOrMany decodes a JSON value that is either a single object or an array
// of them. Scopus collapses one-element lists to a bare object.
type oneOrMany[T any] []T

func (m *oneOrMany[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*m = nil
		return nil
	case len(b) > 0 && b[0] == '[':
		var many []T
		if err := json.Unmarshal(b, &many); err != nil {
			return err
		}
		*m = many
		return nil
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*m = oneOrMany[T]{one}
	return nil
}

// flexString accepts a JSON string, number, or null.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*s = flexString(n.String())
	return nil
}

// flexInt accepts a JSON number or a numeric string; null and "" decode to 0.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(string(s))
	if err != nil {
		return fmt.Errorf("parsing integer %q: %w", s, err)
	}
	*n = flexInt(v)
	return nil
}
