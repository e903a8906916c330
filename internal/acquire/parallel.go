package acquire

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/matsen/citegraph/internal/fetch"
	"go.uber.org/zap"
)

// readBackOffsetDays is added to the max age in the single-goroutine pass
// after the workers finish, so everything they just cached counts as fresh.
const readBackOffsetDays = 100 * 365

// token is all a worker reports per identifier. Fetched data travels through
// the caches only.
type token struct {
	id  string
	err error
}

// AcquireParallel fans the identifiers out to workers that populate the
// caches, then rebuilds the result with a single-goroutine pass that reads
// the caches back without touching the network.
//
// Each worker owns its own adapter and pacer, so no minimum gap is enforced
// across workers; a rate limit shared by the provider itself still applies.
// If the workers do not report exactly one token per identifier, the run
// fails with ErrAccounting.
func (s *Session) AcquireParallel(ctx context.Context, workers int) (*Result, error) {
	if workers <= 1 {
		return s.Acquire(ctx)
	}

	queue := make(chan string, len(s.ids))
	for _, id := range s.ids {
		queue <- id
	}
	close(queue)

	results := make(chan token, len(s.ids))
	var (
		completed atomic.Int32
		wg        sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.work(ctx, w, queue, results)
			completed.Add(1)
		}()
	}
	wg.Wait()
	close(results)

	failed := make(map[string]error)
	drained := 0
	for tok := range results {
		drained++
		if tok.err != nil {
			failed[tok.id] = tok.err
		}
	}
	if done := int(completed.Load()); drained != len(s.ids) || done != workers {
		return nil, fmt.Errorf("%w: %d tokens for %d identifiers, %d of %d workers finished",
			ErrAccounting, drained, len(s.ids), done, workers)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.Info("workers finished; reading caches back",
		zap.Int("identifiers", len(s.ids)), zap.Int("failed", len(failed)))
	return s.acquire(ctx, s.opts.MaxAgeDays+readBackOffsetDays, failed)
}

// work drains the queue. A failure or panic on one identifier becomes a
// failure token and never stops the loop.
func (s *Session) work(ctx context.Context, w int, queue <-chan string, results chan<- token) {
	log := s.logger.With(zap.Int("worker", w))
	adapter := fetch.NewAdapter(s.provider, fetch.WithMinGap(s.opts.MinGap), fetch.WithLogger(log))
	reconciler := NewReconciler(adapter, s.store, log)

	for id := range queue {
		if err := ctx.Err(); err != nil {
			results <- token{id: id, err: err}
			continue
		}
		err := s.populate(ctx, adapter, reconciler, id)
		if err != nil {
			logFailure(log, "worker", id, err)
		}
		results <- token{id: id, err: err}
	}
}

// populate fetches id with a randomized refresh age so the cache side effects
// are in place for the read-back pass.
func (s *Session) populate(ctx context.Context, adapter *fetch.Adapter, reconciler *Reconciler, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic on %s: %v", id, r)
		}
	}()

	age := s.refreshAge()
	if _, err := fetchPaper(ctx, adapter, id, fetch.MaxAge(age)); err != nil {
		return err
	}
	_, err = reconciler.Reconcile(ctx, id, age, fetch.MaxAge(age))
	return err
}

// refreshAge draws uniformly from [MinRefreshDays, MaxAgeDays].
func (s *Session) refreshAge() float64 {
	lo, hi := s.opts.MinRefreshDays, s.opts.MaxAgeDays
	return lo + rand.Float64()*(hi-lo)
}
