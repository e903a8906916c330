package scopus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/matsen/citegraph/internal/fetch"
	"github.com/matsen/citegraph/internal/storage"
)

// fixtureServer serves testdata/full.json and testdata/ref.json and counts
// requests.
func fixtureServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	full, err := os.ReadFile(filepath.Join("testdata", "full.json"))
	if err != nil {
		t.Fatal(err)
	}
	ref, err := os.ReadFile(filepath.Join("testdata", "ref.json"))
	if err != nil {
		t.Fatal(err)
	}

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/content/abstract/doi/10.1109/LRA.2018.2800120" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"service-error":{"status":{"statusCode":"RESOURCE_NOT_FOUND","statusText":"The resource specified cannot be found."}}}`))
			return
		}
		w.Header().Set(QuotaHeader, "9876")
		switch r.URL.Query().Get("view") {
		case "FULL":
			w.Write(full)
		case "REF":
			w.Write(ref)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestClient(t *testing.T, baseURL string, withStore bool) *Client {
	t.Helper()
	opts := []ClientOption{WithBaseURL(baseURL), WithAPIKey("test-key"), WithRateLimit(1000)}
	if withStore {
		db, err := storage.OpenDB(filepath.Join(t.TempDir(), "responses.db"))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { db.Close() })
		opts = append(opts, WithStore(db))
	}
	return NewClient(opts...)
}

func TestFetch_Full(t *testing.T) {
	srv, _ := fixtureServer(t)
	c := newTestClient(t, srv.URL, false)

	resp, err := c.Fetch(context.Background(), fetch.Request{ID: "10.1109/LRA.2018.2800120", View: fetch.ViewFull})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	p := resp.Paper
	if p == nil {
		t.Fatal("Fetch() returned no paper")
	}
	if p.ScopusID != "85041960497" {
		t.Errorf("ScopusID = %q", p.ScopusID)
	}
	if p.CitedByCount != 143 {
		t.Errorf("CitedByCount = %d, want 143", p.CitedByCount)
	}
	if p.VenueAbbrev != "IEEE Robot. Autom. Lett." {
		t.Errorf("VenueAbbrev = %q", p.VenueAbbrev)
	}
	if len(p.Authors) != 2 || p.LastAuthor() != "Scaramuzza D." {
		t.Errorf("Authors = %+v", p.Authors)
	}
	if p.FirstAffiliation() != "University of Zurich" {
		t.Errorf("FirstAffiliation() = %q", p.FirstAffiliation())
	}
	if p.Year() != 2018 {
		t.Errorf("Year() = %d", p.Year())
	}
	if resp.TotalReferences != 3 || p.ReferenceCount != 3 {
		t.Errorf("TotalReferences = %d, ReferenceCount = %d, want 3", resp.TotalReferences, p.ReferenceCount)
	}
	if resp.RemainingQuota != "9876" {
		t.Errorf("RemainingQuota = %q", resp.RemainingQuota)
	}
}

func TestFetch_Ref(t *testing.T) {
	srv, _ := fixtureServer(t)
	c := newTestClient(t, srv.URL, false)

	resp, err := c.Fetch(context.Background(), fetch.Request{ID: "10.1109/LRA.2018.2800120", View: fetch.ViewRef, Start: 1})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if resp.TotalReferences != 3 || len(resp.References) != 3 {
		t.Fatalf("got %d of %d references", len(resp.References), resp.TotalReferences)
	}

	orb := resp.References[0]
	if orb.ID != "84871676827" || orb.Position != 1 || orb.CitedByCount != 5000 {
		t.Errorf("refs[0] = %+v", orb)
	}
	if orb.Authors != "Mur-Artal R.; Tardos J.D." || orb.AuthorIDs != "55000000001; 55000000002" {
		t.Errorf("refs[0] authors = %q / %q", orb.Authors, orb.AuthorIDs)
	}
	if orb.Pages() != "1147-1163" {
		t.Errorf("refs[0].Pages() = %q", orb.Pages())
	}

	// Numeric ids, single-author objects, and nulls.
	net := resp.References[1]
	if net.ID != "58249138093" || net.PublicationYear != "2016" || net.Authors != "Arandjelovic R." || net.CitedByCount != 0 {
		t.Errorf("refs[1] = %+v", net)
	}
	if resp.References[2].ID != "" {
		t.Errorf("refs[2].ID = %q, want empty", resp.References[2].ID)
	}
	if resp.Paper != nil {
		t.Error("REF view should not set Paper")
	}
}

func TestFetch_RequestShape(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Write([]byte(`{"abstracts-retrieval-response":{"references":{"@total-references":"0"}}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, false)
	if _, err := c.Fetch(context.Background(), fetch.Request{ID: "85041960497", View: fetch.ViewRef, Start: 41}); err != nil {
		t.Fatal(err)
	}

	if got.URL.Path != "/content/abstract/scopus_id/85041960497" {
		t.Errorf("path = %q", got.URL.Path)
	}
	q := got.URL.Query()
	if q.Get("view") != "REF" || q.Get("startref") != "41" || q.Get("refcount") != "40" {
		t.Errorf("query = %v", q)
	}
	if got.Header.Get("X-ELS-APIKey") != "test-key" {
		t.Errorf("X-ELS-APIKey = %q", got.Header.Get("X-ELS-APIKey"))
	}
	if got.Header.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q", got.Header.Get("Accept"))
	}
}

func TestFetch_MissingQuotaHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"abstracts-retrieval-response":{"coredata":{"dc:title":"x"}}}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL, false).Fetch(context.Background(), fetch.Request{ID: "10.1/x", View: fetch.ViewFull})
	if err != nil {
		t.Fatal(err)
	}
	if resp.RemainingQuota == "" {
		t.Error("network responses must report a quota value")
	}
}

func TestFetch_Cache(t *testing.T) {
	srv, hits := fixtureServer(t)
	c := newTestClient(t, srv.URL, true)
	ctx := context.Background()
	req := fetch.Request{ID: "10.1109/LRA.2018.2800120", View: fetch.ViewFull, Refresh: fetch.MaxAge(30)}

	first, err := c.Fetch(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if first.RemainingQuota == "" {
		t.Error("first fetch should come from the network")
	}

	second, err := c.Fetch(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if second.RemainingQuota != "" {
		t.Errorf("cache hit reported quota %q", second.RemainingQuota)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
	if second.Paper.Title != first.Paper.Title {
		t.Error("cached paper differs from the original")
	}

	// Identifier case does not matter to the cache.
	lower := req
	lower.ID = "10.1109/lra.2018.2800120"
	if resp, err := c.Fetch(ctx, lower); err != nil || resp.RemainingQuota != "" {
		t.Errorf("lower-case lookup missed the cache: %v", err)
	}

	forced := req
	forced.Refresh = fetch.ForceRefresh
	resp, err := c.Fetch(ctx, forced)
	if err != nil {
		t.Fatal(err)
	}
	if resp.RemainingQuota == "" || hits.Load() != 2 {
		t.Errorf("forced refresh did not reach the network (hits = %d)", hits.Load())
	}
}

func TestFetch_CachePagesSeparately(t *testing.T) {
	srv, hits := fixtureServer(t)
	c := newTestClient(t, srv.URL, true)
	ctx := context.Background()

	for _, start := range []int{1, 41, 1} {
		req := fetch.Request{ID: "10.1109/LRA.2018.2800120", View: fetch.ViewRef, Start: start, Refresh: fetch.MaxAge(30)}
		if _, err := c.Fetch(ctx, req); err != nil {
			t.Fatal(err)
		}
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}
}

// pagedServer serves a REF list of total references in pages of
// RefPageSize and records the requested startref values.
func pagedServer(t *testing.T, total int) (*httptest.Server, func() []string) {
	t.Helper()
	var (
		mu     sync.Mutex
		starts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		mu.Lock()
		starts = append(starts, q.Get("startref"))
		served := len(starts)
		mu.Unlock()
		start, _ := strconv.Atoi(q.Get("startref"))
		count, _ := strconv.Atoi(q.Get("refcount"))

		var entries []string
		for i := start; i < start+count && i <= total; i++ {
			entries = append(entries, fmt.Sprintf(`{"@id":"%d","scopus-id":"%d","title":"Ref %d"}`, i, 1000+i, i))
		}
		w.Header().Set(QuotaHeader, strconv.Itoa(5000-served))
		fmt.Fprintf(w, `{"abstracts-retrieval-response":{"references":{"@total-references":"%d","reference":[%s]}}}`,
			total, strings.Join(entries, ","))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return slices.Clone(starts)
	}
}

func TestFetch_RefFollowsPages(t *testing.T) {
	srv, starts := pagedServer(t, 90)
	c := newTestClient(t, srv.URL, true)
	ctx := context.Background()
	req := fetch.Request{ID: "85041960497", View: fetch.ViewRef, Start: 1, Refresh: fetch.MaxAge(30)}

	resp, err := c.Fetch(ctx, req)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if resp.TotalReferences != 90 || len(resp.References) != 90 {
		t.Fatalf("got %d of %d references, want 90", len(resp.References), resp.TotalReferences)
	}
	for i, r := range resp.References {
		if r.Position != i+1 || r.ID != strconv.Itoa(1001+i) {
			t.Fatalf("refs[%d] = position %d id %s", i, r.Position, r.ID)
		}
	}
	if got := strings.Join(starts(), ","); got != "1,41,81" {
		t.Errorf("startref sequence = %s, want 1,41,81", got)
	}
	if resp.RemainingQuota != "4997" {
		t.Errorf("RemainingQuota = %q, want the last page's value", resp.RemainingQuota)
	}

	// Every page is now cached: no network, no quota.
	again, err := c.Fetch(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if len(starts()) != 3 || again.RemainingQuota != "" || len(again.References) != 90 {
		t.Errorf("cached fetch: %d requests, quota %q, %d refs", len(starts()), again.RemainingQuota, len(again.References))
	}

	// A later start returns one page only.
	page, err := c.Fetch(ctx, fetch.Request{ID: "85041960497", View: fetch.ViewRef, Start: 41, Refresh: fetch.ForceRefresh})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.References) != RefPageSize || page.References[0].Position != 41 {
		t.Errorf("page at 41: %d refs starting at %d", len(page.References), page.References[0].Position)
	}
}

func TestFetch_RefStopsOnEmptyPage(t *testing.T) {
	// Declares more references than it ever serves.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("startref") != "1" {
			w.Write([]byte(`{"abstracts-retrieval-response":{"references":{"@total-references":"60"}}}`))
			return
		}
		w.Write([]byte(`{"abstracts-retrieval-response":{"references":{"@total-references":"60","reference":[{"@id":"1","scopus-id":"7"}]}}}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL, false).Fetch(context.Background(), fetch.Request{ID: "85041960497", View: fetch.ViewRef, Start: 1})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalReferences != 60 || len(resp.References) != 1 {
		t.Errorf("got %d of %d references", len(resp.References), resp.TotalReferences)
	}
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		headers map[string]string
		body    string
		check   func(error) bool
	}{
		{"not found", 404, nil, "", func(err error) bool { return IsNotFound(err) && fetch.IsNotFound(err) }},
		{"unauthorized", 401, nil, "", IsAuthError},
		{"forbidden", 403, nil, "", IsAuthError},
		{"throttled", 429, nil, "", func(err error) bool { return errors.Is(err, ErrRateLimited) }},
		{"quota", 429, map[string]string{"X-ELS-Status": "QUOTA_EXCEEDED"}, "", func(err error) bool {
			return errors.Is(err, ErrQuotaExceeded) && IsRateLimited(err)
		}},
		{"server error", 500, nil, `{"service-error":{"status":{"statusCode":"GENERAL_SYSTEM_ERROR","statusText":"boom"}}}`, func(err error) bool {
			var apiErr *APIError
			return errors.As(err, &apiErr) && apiErr.Code == "GENERAL_SYSTEM_ERROR" && apiErr.Message == "boom"
		}},
		{"invalid json", 200, nil, `{not json`, func(err error) bool { return errors.Is(err, ErrInvalidResponse) }},
		{"missing envelope", 200, nil, `{}`, func(err error) bool { return errors.Is(err, ErrInvalidResponse) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL, false).Fetch(context.Background(), fetch.Request{ID: "10.1/x", View: fetch.ViewFull})
			if err == nil {
				t.Fatal("Fetch() error = nil")
			}
			if !tt.check(err) {
				t.Errorf("Fetch() error = %v, wrong classification", err)
			}
		})
	}
}

func TestFetch_ErrorsNotCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, true)
	req := fetch.Request{ID: "10.1/x", View: fetch.ViewFull, Refresh: fetch.MaxAge(30)}
	c.Fetch(context.Background(), req)
	c.Fetch(context.Background(), req)
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}
}

func TestFetch_UnknownIDType(t *testing.T) {
	c := NewClient(WithBaseURL("http://127.0.0.1:1"))
	_, err := c.Fetch(context.Background(), fetch.Request{ID: "???", View: fetch.ViewFull})
	if !errors.Is(err, ErrUnknownIDType) {
		t.Errorf("Fetch() error = %v, want ErrUnknownIDType", err)
	}
}

func TestFetch_ContextCanceled(t *testing.T) {
	srv, _ := fixtureServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, srv.URL, false).Fetch(ctx, fetch.Request{ID: "10.1109/LRA.2018.2800120", View: fetch.ViewFull})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() error = %v, want context.Canceled", err)
	}
}

func TestNewClient_EnvAPIKey(t *testing.T) {
	t.Setenv("SCOPUS_API_KEY", "from-env")
	if c := NewClient(); c.apiKey != "from-env" {
		t.Errorf("apiKey = %q", c.apiKey)
	}
	if c := NewClient(WithAPIKey("explicit")); c.apiKey != "explicit" {
		t.Errorf("apiKey = %q, option should win", c.apiKey)
	}
}

func TestMaxAge(t *testing.T) {
	if maxAge(0) != 0 || maxAge(anyAgeDays+1) != 0 {
		t.Error("maxAge() should disable expiry for zero and huge ages")
	}
	if got := maxAge(1.5); got.Hours() != 36 {
		t.Errorf("maxAge(1.5) = %v", got)
	}
}
