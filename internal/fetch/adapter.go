package fetch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// LowQuotaThreshold triggers a warning when the remaining quota drops below it.
// Scopus grants about 10,000 abstract retrievals per week.
const LowQuotaThreshold = 200

// Adapter issues paced provider requests and tracks the remaining quota.
// An Adapter serves one logical caller; parallel workers each own one.
type Adapter struct {
	provider  Provider
	pacer     *Pacer
	logger    *zap.Logger
	lastQuota string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithMinGap sets the minimum gap between network requests.
func WithMinGap(gap time.Duration) Option {
	return func(a *Adapter) { a.pacer = NewPacer(gap) }
}

// WithPacer shares an existing pacer.
func WithPacer(p *Pacer) Option {
	return func(a *Adapter) { a.pacer = p }
}

// WithLogger sets the logger used for quota reports and failures.
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// NewAdapter wraps provider.
func NewAdapter(provider Provider, opts ...Option) *Adapter {
	a := &Adapter{
		provider: provider,
		pacer:    NewPacer(DefaultMinGap),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// MinGap returns the minimum gap enforced between network requests.
func (a *Adapter) MinGap() time.Duration {
	return a.pacer.Gap()
}

// RemainingQuota returns the last quota value reported by the provider, or ""
// if every response so far came from the provider cache.
func (a *Adapter) RemainingQuota() string {
	return a.lastQuota
}

// Fetch performs one request. Errors are either ErrNotFound (wrapped) or a
// *ProviderError; context cancellation is returned as is.
func (a *Adapter) Fetch(ctx context.Context, id string, view View, refresh Refresh, start int) (*Response, error) {
	if err := a.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	req := Request{ID: id, View: view, Refresh: refresh, Start: start}
	resp, err := a.provider.Fetch(ctx, req)
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%s view of %s: %w", view, id, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderError{ID: id, View: view, Err: err}
	}

	if resp.RemainingQuota != "" {
		a.pacer.Mark()
		a.lastQuota = resp.RemainingQuota
		a.logger.Info("remaining quota",
			zap.String("id", id),
			zap.String("view", string(view)),
			zap.String("remaining_quota", resp.RemainingQuota))
		if n, err := strconv.Atoi(resp.RemainingQuota); err == nil && n < LowQuotaThreshold {
			a.logger.Warn("provider quota nearly exhausted", zap.Int("remaining_quota", n))
		}
	}
	return resp, nil
}
