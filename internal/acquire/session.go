package acquire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matsen/citegraph/internal/aggregate"
	"github.com/matsen/citegraph/internal/fetch"
	"github.com/matsen/citegraph/internal/reference"
	"github.com/matsen/citegraph/internal/refcache"
	"go.uber.org/zap"
)

// Defaults for Options.
const (
	DefaultMaxAgeDays     = 30
	DefaultMinRefreshDays = 10
	DefaultWorkers        = 4
)

// Options tunes a Session.
type Options struct {
	// MaxAgeDays bounds the age of cached data, both the reference cache files
	// and provider-side cached responses.
	MaxAgeDays float64

	// MinRefreshDays is the lower end of the randomized refresh age used by
	// parallel workers. Each identifier draws uniformly from
	// [MinRefreshDays, MaxAgeDays] so cache entries written in one run do not
	// all expire together.
	MinRefreshDays float64

	// MinGap is the minimum gap between network requests of one caller.
	MinGap time.Duration

	Logger *zap.Logger
}

func (o *Options) setDefaults() {
	if o.MaxAgeDays <= 0 {
		o.MaxAgeDays = DefaultMaxAgeDays
	}
	if o.MinRefreshDays <= 0 || o.MinRefreshDays > o.MaxAgeDays {
		o.MinRefreshDays = min(DefaultMinRefreshDays, o.MaxAgeDays)
	}
	if o.MinGap == 0 {
		o.MinGap = fetch.DefaultMinGap
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Session acquires one batch of identifiers.
type Session struct {
	provider fetch.Provider
	store    *refcache.Store
	opts     Options
	ids      []string
	ignored  map[string]bool
	logger   *zap.Logger
}

// NewSession normalizes ids and ignore and prepares a session.
func NewSession(provider fetch.Provider, store *refcache.Store, ids, ignore []string, opts Options) *Session {
	opts.setDefaults()
	nids, nignored := Normalize(ids, ignore)
	return &Session{
		provider: provider,
		store:    store,
		opts:     opts,
		ids:      nids,
		ignored:  nignored,
		logger:   opts.Logger,
	}
}

// IDs returns the normalized identifiers in input order.
func (s *Session) IDs() []string {
	return s.ids
}

// Result is the outcome of one acquisition run. Papers and References are
// parallel to IDs and hold nil for failed identifiers.
type Result struct {
	RunID      string
	IDs        []string
	Papers     []*reference.Paper
	References [][]reference.Reference
	Index      *aggregate.Index
	Ignored    map[string]bool

	// Failed is the failure set with the reason for each identifier.
	Failed map[string]error
}

func newResult(ids []string, ignored map[string]bool) *Result {
	return &Result{
		RunID:      uuid.NewString(),
		IDs:        ids,
		Papers:     make([]*reference.Paper, len(ids)),
		References: make([][]reference.Reference, len(ids)),
		Index:      aggregate.NewIndex(),
		Ignored:    ignored,
		Failed:     make(map[string]error),
	}
}

// FailedIDs lists failed identifiers in input order.
func (r *Result) FailedIDs() []string {
	var out []string
	for _, id := range r.IDs {
		if _, ok := r.Failed[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Ranked returns the aggregate index in presentation order.
func (r *Result) Ranked() []aggregate.Ranked {
	return r.Index.Rank(r.Ignored)
}

// Bibliography returns the reference list of input paper i.
func (r *Result) Bibliography(i int) ([]reference.Reference, error) {
	if i < 0 || i >= len(r.IDs) {
		return nil, fmt.Errorf("paper index %d out of range [0, %d)", i, len(r.IDs))
	}
	if r.References[i] == nil {
		return nil, fmt.Errorf("no references for %s: %v", r.IDs[i], r.Failed[r.IDs[i]])
	}
	return r.References[i], nil
}

// Acquire fetches every identifier one at a time on the calling goroutine.
//
// Missing identifiers and inconsistent reference lists are recorded in
// Result.Failed and do not stop the batch. Unexpected provider failures while
// fetching references are recorded too, and are additionally returned, joined
// and wrapped in ErrUnexpected, together with the otherwise complete result.
// Only context cancellation aborts the run early.
func (s *Session) Acquire(ctx context.Context) (*Result, error) {
	return s.acquire(ctx, s.opts.MaxAgeDays, nil)
}

func (s *Session) acquire(ctx context.Context, maxAge float64, preFailed map[string]error) (*Result, error) {
	res := newResult(s.ids, s.ignored)
	for id, err := range preFailed {
		res.Failed[id] = err
	}
	log := s.logger.With(zap.String("run", res.RunID))
	adapter := fetch.NewAdapter(s.provider, fetch.WithMinGap(s.opts.MinGap), fetch.WithLogger(log))
	log.Info("acquiring bibliography",
		zap.Int("identifiers", len(s.ids)),
		zap.Duration("min_gap", adapter.MinGap()))
	refresh := fetch.MaxAge(maxAge)
	n := len(s.ids)

	for i, id := range s.ids {
		if _, failed := res.Failed[id]; failed {
			continue
		}
		log.Debug("query FULL", zap.Int("n", i+1), zap.Int("of", n), zap.String("id", id))
		paper, err := fetchPaper(ctx, adapter, id, refresh)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			res.Failed[id] = err
			logFailure(log, "FULL", id, err)
			continue
		}
		res.Papers[i] = paper
	}

	reconciler := NewReconciler(adapter, s.store, log)
	var unexpected []error
	for i, id := range s.ids {
		if _, failed := res.Failed[id]; failed {
			continue
		}
		log.Debug("query REF", zap.Int("n", i+1), zap.Int("of", n), zap.String("id", id))
		refs, err := reconciler.Reconcile(ctx, id, maxAge, refresh)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			res.Failed[id] = err
			logFailure(log, "REF", id, err)
			if fetch.IsProviderError(err) {
				unexpected = append(unexpected, err)
			}
			continue
		}
		res.References[i] = refs
		res.Index.Add(i, refs)
	}

	log.Info("acquisition finished",
		zap.Int("cited_works", res.Index.Len()),
		zap.Int("failed", len(res.Failed)),
		zap.String("remaining_quota", adapter.RemainingQuota()))

	if len(unexpected) > 0 {
		return res, fmt.Errorf("%w: %w", ErrUnexpected, errors.Join(unexpected...))
	}
	return res, nil
}

// fetchPaper performs the FULL-view request for id.
func fetchPaper(ctx context.Context, adapter *fetch.Adapter, id string, refresh fetch.Refresh) (*reference.Paper, error) {
	resp, err := adapter.Fetch(ctx, id, fetch.ViewFull, refresh, 0)
	if err != nil {
		return nil, err
	}
	if resp.Paper == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMetadata, id)
	}
	paper := *resp.Paper
	paper.Identifier = id
	if paper.ReferenceCount == 0 {
		paper.ReferenceCount = resp.TotalReferences
	}
	return &paper, nil
}

func logFailure(log *zap.Logger, view, id string, err error) {
	switch {
	case fetch.IsNotFound(err):
		log.Warn(view+" view cannot be found", zap.String("id", id))
	case errors.Is(err, ErrInconsistentReferences), errors.Is(err, ErrNoMetadata):
		log.Warn(view+" view is inconsistent", zap.String("id", id), zap.Error(err))
	default:
		log.Error("unhandled provider error", zap.String("view", view), zap.String("id", id), zap.Error(err))
	}
}
