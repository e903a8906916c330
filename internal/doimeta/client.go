// Package doimeta looks up publication metadata outside Scopus: DOI content
// negotiation for registered works and arXiv abstract pages for preprints.
package doimeta

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	// DOIBaseURL is the DOI resolver.
	DOIBaseURL = "https://doi.org"
	// ArxivBaseURL serves arXiv abstract pages.
	ArxivBaseURL = "https://arxiv.org"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 20 * time.Second

	userAgent = "citegraph/1.0 (mailto:citegraph@users.noreply.github.com)"
)

// ErrNotFound indicates the resolver does not know the identifier.
var ErrNotFound = errors.New("identifier not found")

type options struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures a client.
type Option func(*options)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = strings.TrimRight(u, "/") }
}

func newOptions(base string, opts []Option) options {
	o := options{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    base,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// indexedName renders "Family G." the way Scopus indexes author names.
func indexedName(family, given string) string {
	family = strings.TrimSpace(family)
	var initials strings.Builder
	for _, part := range strings.FieldsFunc(given, func(r rune) bool { return r == ' ' || r == '-' || r == '.' }) {
		for _, r := range part {
			initials.WriteRune(r)
			initials.WriteByte('.')
			break
		}
	}
	if initials.Len() == 0 {
		return family
	}
	if family == "" {
		return initials.String()
	}
	return family + " " + initials.String()
}
