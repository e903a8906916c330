package doimeta

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/matsen/citegraph/internal/notes"
)

var yearExpr = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// ArxivClient scrapes arXiv abstract pages.
type ArxivClient struct {
	opts options
}

// NewArxivClient creates an arXiv client.
func NewArxivClient(opts ...Option) *ArxivClient {
	return &ArxivClient{opts: newOptions(ArxivBaseURL, opts)}
}

// NormalizeArxivID strips URL and "arXiv:" prefixes from an arXiv id.
func NormalizeArxivID(id string) string {
	id = strings.TrimSpace(id)
	for _, prefix := range []string{"https://arxiv.org/abs/", "http://arxiv.org/abs/", "arxiv.org/abs/", "arXiv:", "arxiv:"} {
		id = strings.TrimPrefix(id, prefix)
	}
	return id
}

// Lookup returns note metadata for an arXiv id.
func (c *ArxivClient) Lookup(ctx context.Context, id string) (notes.Metadata, error) {
	id = NormalizeArxivID(id)
	if id == "" {
		return notes.Metadata{}, fmt.Errorf("empty arXiv id")
	}

	doc, err := c.fetchDocument(ctx, c.opts.baseURL+"/abs/"+id)
	if err != nil {
		return notes.Metadata{}, fmt.Errorf("arXiv %s: %w", id, err)
	}
	m := parseAbstractPage(doc)
	m.ArXiv = id
	if m.Title == "" {
		return notes.Metadata{}, fmt.Errorf("arXiv %s: no title on abstract page", id)
	}
	return m, nil
}

func (c *ArxivClient) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

// parseAbstractPage prefers the citation_* meta tags and falls back to the
// visible page elements.
func parseAbstractPage(doc *goquery.Document) notes.Metadata {
	meta := func(name string) string {
		v, _ := doc.Find(fmt.Sprintf("meta[name=%q]", name)).First().Attr("content")
		return strings.TrimSpace(v)
	}

	m := notes.Metadata{
		Title: meta("citation_title"),
		DOI:   meta("citation_doi"),
		Venue: "arXiv",
	}
	if m.Title == "" {
		title := strings.TrimSpace(doc.Find("h1.title").First().Text())
		m.Title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))
	}

	doc.Find(`meta[name="citation_author"]`).Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("content")
		family, given, _ := strings.Cut(v, ",")
		if name := indexedName(family, given); name != "" {
			m.Authors = append(m.Authors, name)
		}
	})
	if len(m.Authors) == 0 {
		doc.Find("div.authors a").Each(func(_ int, s *goquery.Selection) {
			if name := strings.TrimSpace(s.Text()); name != "" {
				m.Authors = append(m.Authors, name)
			}
		})
	}

	date := meta("citation_date")
	if date == "" {
		date = doc.Find("div.dateline").First().Text()
	}
	if y := yearExpr.FindString(date); y != "" {
		m.Year, _ = strconv.Atoi(y)
	}
	return m
}
