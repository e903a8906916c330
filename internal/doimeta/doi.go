package doimeta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/matsen/citegraph/internal/notes"
)

// DOIClient resolves DOIs to CSL JSON through doi.org content negotiation.
type DOIClient struct {
	opts options
}

// NewDOIClient creates a DOI client.
func NewDOIClient(opts ...Option) *DOIClient {
	return &DOIClient{opts: newOptions(DOIBaseURL, opts)}
}

// cslItem is the subset of CSL JSON used for notes.
type cslItem struct {
	DOI            string      `json:"DOI"`
	Title          stringOrArr `json:"title"`
	ContainerTitle stringOrArr `json:"container-title"`
	Author         []struct {
		Family  string `json:"family"`
		Given   string `json:"given"`
		Literal string `json:"literal"`
	} `json:"author"`
	Issued struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"issued"`
	ReferencedBy int `json:"is-referenced-by-count"`
}

// stringOrArr decodes CSL fields that registries emit as a string or as a
// list of strings; the first entry wins.
type stringOrArr string

func (s *stringOrArr) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*s = stringOrArr(one)
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	if len(many) > 0 {
		*s = stringOrArr(many[0])
	} else {
		*s = ""
	}
	return nil
}

// Lookup returns note metadata for doi.
func (c *DOIClient) Lookup(ctx context.Context, doi string) (notes.Metadata, error) {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return notes.Metadata{}, fmt.Errorf("empty DOI")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.baseURL+"/"+doi, nil)
	if err != nil {
		return notes.Metadata{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.citationstyles.csl+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return notes.Metadata{}, fmt.Errorf("request %s: %w", doi, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return notes.Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, doi)
	case resp.StatusCode != http.StatusOK:
		return notes.Metadata{}, fmt.Errorf("doi.org returned %s for %s", resp.Status, doi)
	}

	var item cslItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return notes.Metadata{}, fmt.Errorf("parse CSL JSON for %s: %w", doi, err)
	}
	return item.metadata(doi), nil
}

func (item cslItem) metadata(doi string) notes.Metadata {
	m := notes.Metadata{
		Title:   strings.TrimSpace(string(item.Title)),
		DOI:     item.DOI,
		CitedBy: item.ReferencedBy,
		Venue:   string(item.ContainerTitle),
	}
	if m.DOI == "" {
		m.DOI = doi
	}
	for _, a := range item.Author {
		name := a.Literal
		if name == "" {
			name = indexedName(a.Family, a.Given)
		}
		if name != "" {
			m.Authors = append(m.Authors, name)
		}
	}
	if dp := item.Issued.DateParts; len(dp) > 0 && len(dp[0]) > 0 {
		m.Year = dp[0][0]
	}
	return m
}
