package acquire

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/matsen/citegraph/internal/fetch"
	"github.com/matsen/citegraph/internal/reference"
)

type fakePaper struct {
	paper reference.Paper
	refs  []reference.Reference
}

// fakeProvider is a deterministic provider with its own response cache.
// Requests that miss the cache or force a refresh count as network calls and
// report a remaining quota.
type fakeProvider struct {
	mu       sync.Mutex
	papers   map[string]fakePaper
	pageSize int               // 0 returns the whole list at once
	declared map[string]int    // overrides the declared total per id
	fail     map[string]error  // keyed by "id|VIEW"
	cached   map[string]bool
	network  int
	calls    []fetch.Request
	onFetch  func(fetch.Request) // runs before anything else, outside the lock
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		papers:   make(map[string]fakePaper),
		declared: make(map[string]int),
		fail:     make(map[string]error),
		cached:   make(map[string]bool),
	}
}

// add registers a paper citing the given ids in order.
func (f *fakeProvider) add(id string, cited ...string) {
	refs := make([]reference.Reference, len(cited))
	for i, c := range cited {
		refs[i] = reference.Reference{
			Position:     i + 1,
			ID:           c,
			Title:        "Work " + c,
			CitedByCount: len(c) * 10,
		}
	}
	f.papers[id] = fakePaper{
		paper: reference.Paper{ScopusID: "s-" + id, DOI: id, Title: "Paper " + id, CitedByCount: 5},
		refs:  refs,
	}
}

// addN registers a paper with n distinct references named prefix-1..prefix-n.
func (f *fakeProvider) addN(id, prefix string, n int) {
	cited := make([]string, n)
	for i := range cited {
		cited[i] = prefix + "-" + strconv.Itoa(i+1)
	}
	f.add(id, cited...)
}

func (f *fakeProvider) networkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.network
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeProvider) Fetch(ctx context.Context, req fetch.Request) (*fetch.Response, error) {
	if f.onFetch != nil {
		f.onFetch(req)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, req)
	if err, ok := f.fail[req.ID+"|"+string(req.View)]; ok {
		return nil, err
	}
	p, ok := f.papers[req.ID]
	if !ok {
		return nil, fmt.Errorf("fake: %w", fetch.ErrNotFound)
	}

	total := len(p.refs)
	if d, ok := f.declared[req.ID]; ok {
		total = d
	}
	resp := &fetch.Response{TotalReferences: total}

	key := fmt.Sprintf("%s|%s|%d", req.ID, req.View, req.Start)
	if req.Refresh.Force || !f.cached[key] {
		f.network++
		f.cached[key] = true
		resp.RemainingQuota = strconv.Itoa(10000 - f.network)
	}

	switch req.View {
	case fetch.ViewFull:
		paper := p.paper
		resp.Paper = &paper
	case fetch.ViewRef:
		start := max(req.Start, 1) - 1
		end := len(p.refs)
		if f.pageSize > 0 {
			end = min(start+f.pageSize, len(p.refs))
		}
		if start < end {
			resp.References = append([]reference.Reference(nil), p.refs[start:end]...)
		}
	}
	return resp, nil
}
