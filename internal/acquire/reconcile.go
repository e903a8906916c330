package acquire

import (
	"context"
	"fmt"

	"github.com/matsen/citegraph/internal/fetch"
	"github.com/matsen/citegraph/internal/reference"
	"github.com/matsen/citegraph/internal/refcache"
	"go.uber.org/zap"
)

// Reconciler produces complete reference lists, from the cache when it is
// fresh enough and otherwise from the provider, following pagination until the
// declared total is reached.
type Reconciler struct {
	adapter *fetch.Adapter
	store   *refcache.Store
	logger  *zap.Logger
}

// NewReconciler returns a Reconciler. logger may be nil.
func NewReconciler(adapter *fetch.Adapter, store *refcache.Store, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{adapter: adapter, store: store, logger: logger}
}

// Reconcile returns the complete reference list of id. A cache file younger
// than cacheMaxAge days is trusted without any network call. Otherwise the
// first REF request uses refresh; if it does not carry the whole list, every
// further page is force-refreshed from the start. The result always has
// exactly the declared number of references; anything else is an error.
//
// An empty reference list is treated as an error: the provider output cannot
// distinguish a paper without references from a malformed response.
func (r *Reconciler) Reconcile(ctx context.Context, id string, cacheMaxAge float64, refresh fetch.Refresh) ([]reference.Reference, error) {
	if r.store.Fresh(id, cacheMaxAge) {
		if refs := r.store.Load(id); len(refs) > 0 {
			r.logger.Debug("reference cache hit", zap.String("id", id), zap.Int("refs", len(refs)))
			return refs, nil
		}
	}

	refs, err := r.fetchAll(ctx, id, refresh)
	if err != nil {
		return nil, err
	}

	if err := r.store.Save(id, refs); err != nil {
		r.logger.Warn("writing reference cache", zap.String("id", id), zap.Error(err))
	}
	return refs, nil
}

func (r *Reconciler) fetchAll(ctx context.Context, id string, refresh fetch.Refresh) ([]reference.Reference, error) {
	var (
		all         []reference.Reference
		start       = 1
		total       = -1
		needRefresh bool
	)

	for {
		rf := refresh
		if needRefresh {
			rf = fetch.ForceRefresh
		}

		resp, err := r.adapter.Fetch(ctx, id, fetch.ViewRef, rf, start)
		if err != nil {
			return nil, err
		}
		page := resp.References
		if len(page) == 0 {
			return nil, fmt.Errorf("%w: %s: empty reference list at start %d (declared %d)",
				ErrInconsistentReferences, id, start, resp.TotalReferences)
		}
		if total >= 0 && resp.TotalReferences != total {
			return nil, fmt.Errorf("%w: %s: declared total changed from %d to %d",
				ErrInconsistentReferences, id, total, resp.TotalReferences)
		}
		total = resp.TotalReferences

		if !needRefresh {
			if len(page) == total {
				return page, nil
			}
			// A partial page, probably a stale paginated response. Start over
			// from the first reference with forced refreshes.
			r.logger.Debug("partial reference page",
				zap.String("id", id), zap.Int("got", len(page)), zap.Int("total", total))
			needRefresh = true
			continue
		}

		all = append(all, page...)
		switch {
		case len(all) == total:
			return all, nil
		case len(all) > total:
			return nil, fmt.Errorf("%w: %s: accumulated %d references, declared %d",
				ErrInconsistentReferences, id, len(all), total)
		}
		start += len(page)
	}
}
