// Package scopus is a client for the Elsevier Scopus Abstract Retrieval API.
// It implements fetch.Provider, keeping raw responses in a local SQLite cache
// so refresh ages can be honored without network calls.
package scopus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/matsen/citegraph/internal/fetch"
	"github.com/matsen/citegraph/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// BaseURL is the Elsevier API base URL.
	BaseURL = "https://api.elsevier.com"

	// ProviderName tags cached responses.
	ProviderName = "scopus"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 60 * time.Second

	// RateLimit stays under the documented 10 requests per second for
	// Abstract Retrieval.
	RateLimit = 9.0

	// RefPageSize is the number of references per REF page.
	RefPageSize = 40

	// QuotaHeader carries the remaining weekly quota of the key.
	QuotaHeader = "X-RateLimit-Remaining"

	// anyAgeDays is the refresh age beyond which cached entries never expire.
	anyAgeDays = 100_000
)

// Client is a rate-limited, caching HTTP client for the Scopus API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     string
	baseURL    string
	db         *storage.DB
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key for authenticated requests.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithRateLimit overrides the requests-per-second limit.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithStore enables the response cache.
func WithStore(db *storage.DB) ClientOption {
	return func(c *Client) {
		c.db = db
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a new Scopus API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:    BaseURL,
		logger:     zap.NewNop(),
	}

	// Check for API key in environment
	if key := os.Getenv("SCOPUS_API_KEY"); key != "" {
		c.apiKey = key
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Fetch implements fetch.Provider. Responses served from the cache carry no
// remaining quota; network responses always do.
//
// A REF request from the first reference follows the API's pages and returns
// the full list; a request with a later start returns that page only.
func (c *Client) Fetch(ctx context.Context, req fetch.Request) (*fetch.Response, error) {
	kind, err := DetectIDKind(req.ID)
	if err != nil {
		return nil, err
	}
	if req.View != fetch.ViewRef {
		return c.fetchPage(ctx, kind, req, 0)
	}
	if req.Start > 1 {
		return c.fetchPage(ctx, kind, req, req.Start)
	}
	return c.fetchAllRefs(ctx, kind, req)
}

// fetchAllRefs collects REF pages until the declared total is reached or a
// page comes back empty. Each page is cached on its own.
func (c *Client) fetchAllRefs(ctx context.Context, kind IDKind, req fetch.Request) (*fetch.Response, error) {
	first, err := c.fetchPage(ctx, kind, req, 1)
	if err != nil {
		return nil, err
	}
	total := first.TotalReferences
	quota := first.RemainingQuota
	for start := 1 + len(first.References); len(first.References) < total; {
		page, err := c.fetchPage(ctx, kind, req, start)
		if err != nil {
			return nil, err
		}
		if page.RemainingQuota != "" {
			quota = page.RemainingQuota
		}
		if len(page.References) == 0 {
			break
		}
		first.References = append(first.References, page.References...)
		start += len(page.References)
	}
	first.RemainingQuota = quota
	return first, nil
}

// fetchPage serves one request from the response cache or the network.
// start is 0 for FULL and the 1-based first reference for REF.
func (c *Client) fetchPage(ctx context.Context, kind IDKind, req fetch.Request, start int) (*fetch.Response, error) {
	key := storage.ResponseKey(ProviderName, string(req.View), req.ID, strconv.Itoa(start))

	if resp, ok := c.cached(key, req); ok {
		return resp, nil
	}

	body, quota, err := c.retrieve(ctx, kind, req, start)
	if err != nil {
		return nil, err
	}
	resp, err := parseResponse(req.View, body)
	if err != nil {
		return nil, err
	}

	if c.db != nil {
		entry := storage.Response{Key: key, Provider: ProviderName, View: string(req.View), ID: req.ID, Body: body}
		if err := c.db.PutResponse(entry); err != nil {
			c.logger.Warn("caching response", zap.String("id", req.ID), zap.Error(err))
		}
	}

	if quota == "" {
		quota = "unknown"
	}
	resp.RemainingQuota = quota
	return resp, nil
}

// cached returns a usable cached response for req, if any.
func (c *Client) cached(key string, req fetch.Request) (*fetch.Response, bool) {
	if c.db == nil || req.Refresh.Force {
		return nil, false
	}
	entry, ok, err := c.db.GetResponse(key, maxAge(req.Refresh.Days))
	if err != nil {
		c.logger.Warn("reading response cache", zap.String("id", req.ID), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	resp, err := parseResponse(req.View, entry.Body)
	if err != nil {
		c.logger.Warn("discarding unreadable cached response", zap.String("id", req.ID), zap.Error(err))
		return nil, false
	}
	c.logger.Debug("response cache hit", zap.String("id", req.ID), zap.String("view", string(req.View)))
	return resp, true
}

// maxAge converts a refresh age in days to a duration; zero accepts any age.
func maxAge(days float64) time.Duration {
	if days <= 0 || days >= anyAgeDays {
		return 0
	}
	return time.Duration(days * 24 * float64(time.Hour))
}

// checkHTTPErrors returns an error if the HTTP response indicates a problem.
func checkHTTPErrors(resp *http.Response, body []byte, id string) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	case resp.StatusCode == 401 || resp.StatusCode == 403:
		return fmt.Errorf("%w: status %d", ErrAuthError, resp.StatusCode)
	case resp.StatusCode == 429:
		if resp.Header.Get("X-ELS-Status") == "QUOTA_EXCEEDED" {
			return fmt.Errorf("%w: resets at %s", ErrQuotaExceeded, resp.Header.Get("X-RateLimit-Reset"))
		}
		return fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 400:
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Code:       "api_error",
			Message:    fmt.Sprintf("HTTP %d", resp.StatusCode),
			ID:         id,
		}
		var se serviceError
		if json.Unmarshal(body, &se) == nil && se.ServiceError.Status.Code != "" {
			apiErr.Code = se.ServiceError.Status.Code
			apiErr.Message = se.ServiceError.Status.Text
		}
		return apiErr
	}
	return nil
}

// retrieve performs one Abstract Retrieval request and returns the body and
// the remaining quota header.
func (c *Client) retrieve(ctx context.Context, kind IDKind, req fetch.Request, start int) ([]byte, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("view", string(req.View))
	if req.View == fetch.ViewRef {
		q.Set("startref", strconv.Itoa(start))
		q.Set("refcount", strconv.Itoa(RefPageSize))
	}
	// DOIs keep their slashes in the path.
	escaped := strings.ReplaceAll(url.PathEscape(req.ID), "%2F", "/")
	reqURL := fmt.Sprintf("%s/content/abstract/%s/%s?%s", c.baseURL, kind, escaped, q.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-ELS-APIKey", c.apiKey)
	}

	c.logger.Debug("scopus request", zap.String("url", reqURL))
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading body: %v", ErrNetworkError, err)
	}
	if err := checkHTTPErrors(resp, body, req.ID); err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get(QuotaHeader), nil
}

// parseResponse decodes a response body for view.
func parseResponse(view fetch.View, body []byte) (*fetch.Response, error) {
	var env retrievalEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if env.Response == nil {
		return nil, fmt.Errorf("%w: missing abstracts-retrieval-response", ErrInvalidResponse)
	}
	ar := env.Response

	resp := &fetch.Response{}
	switch view {
	case fetch.ViewFull:
		resp.Paper = mapPaper(ar)
		resp.TotalReferences = resp.Paper.ReferenceCount
	case fetch.ViewRef:
		if ar.References != nil {
			resp.References = mapReferences(ar.References.Reference)
			resp.TotalReferences = int(ar.References.Total)
		}
	default:
		return nil, fmt.Errorf("unsupported view %q", view)
	}
	return resp, nil
}
