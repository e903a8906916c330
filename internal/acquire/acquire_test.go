package acquire

import (
	"context"
	"errors"
	"os"
	"reflect"
	"runtime"
	"testing"

	"github.com/matsen/citegraph/internal/fetch"
	"github.com/matsen/citegraph/internal/refcache"
)

func testOptions() Options {
	return Options{MaxAgeDays: 30, MinRefreshDays: 10, MinGap: -1}
}

func TestNormalize(t *testing.T) {
	ids, ignored := Normalize(
		[]string{" 10.1109/A ", "10.1109/B", "", "10.1109/A", "\t10.1109/C\n"},
		[]string{" 84871676827", "", "58249138093 "},
	)
	wantIDs := []string{"10.1109/A", "10.1109/B", "10.1109/C"}
	if !reflect.DeepEqual(ids, wantIDs) {
		t.Errorf("ids = %v, want %v", ids, wantIDs)
	}
	if len(ignored) != 2 || !ignored["84871676827"] || !ignored["58249138093"] {
		t.Errorf("ignored = %v", ignored)
	}
}

func TestNormalize_KeepsCase(t *testing.T) {
	ids, _ := Normalize([]string{"10.1109/LRA", "10.1109/lra"}, nil)
	if len(ids) != 2 {
		t.Errorf("Normalize() folded case: %v", ids)
	}
}

func newReconciler(p fetch.Provider, dir string) (*Reconciler, *refcache.Store) {
	store := refcache.New(dir)
	return NewReconciler(fetch.NewAdapter(p, fetch.WithMinGap(0)), store, nil), store
}

func TestReconcile_SinglePage(t *testing.T) {
	p := newFakeProvider()
	p.add("a", "x", "y", "z")
	r, store := newReconciler(p, t.TempDir())

	refs, err := r.Reconcile(context.Background(), "a", 30, fetch.MaxAge(30))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(refs) != 3 || refs[0].ID != "x" || refs[2].ID != "z" {
		t.Errorf("Reconcile() = %+v", refs)
	}
	if p.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1", p.callCount())
	}
	if got := store.Load("a"); !reflect.DeepEqual(got, refs) {
		t.Errorf("cache = %+v, want %+v", got, refs)
	}
}

func TestReconcile_Paginated(t *testing.T) {
	p := newFakeProvider()
	p.pageSize = 40
	p.addN("a", "r", 90)
	r, _ := newReconciler(p, t.TempDir())

	refs, err := r.Reconcile(context.Background(), "a", 30, fetch.MaxAge(30))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(refs) != 90 {
		t.Fatalf("len(refs) = %d, want 90", len(refs))
	}
	for i, ref := range refs {
		if ref.Position != i+1 {
			t.Fatalf("refs[%d].Position = %d, order not preserved", i, ref.Position)
		}
	}

	// One partial page, then three forced pages starting at 1, 41 and 81.
	if p.callCount() != 4 {
		t.Errorf("provider calls = %d, want 4", p.callCount())
	}
	wantStarts := []int{1, 1, 41, 81}
	for i, call := range p.calls {
		if call.Start != wantStarts[i] {
			t.Errorf("call %d start = %d, want %d", i, call.Start, wantStarts[i])
		}
		if force := call.Refresh.Force; force != (i > 0) {
			t.Errorf("call %d force = %v", i, force)
		}
	}
}

func TestReconcile_FreshCacheSkipsNetwork(t *testing.T) {
	p := newFakeProvider()
	p.add("a", "x", "y")
	r, _ := newReconciler(p, t.TempDir())

	if _, err := r.Reconcile(context.Background(), "a", 30, fetch.MaxAge(30)); err != nil {
		t.Fatal(err)
	}
	calls := p.callCount()
	refs, err := r.Reconcile(context.Background(), "a", 30, fetch.MaxAge(30))
	if err != nil {
		t.Fatal(err)
	}
	if p.callCount() != calls {
		t.Error("fresh cache still queried the provider")
	}
	if len(refs) != 2 {
		t.Errorf("cached refs = %d, want 2", len(refs))
	}
}

func TestReconcile_EmptyIsError(t *testing.T) {
	p := newFakeProvider()
	p.add("a")
	r, store := newReconciler(p, t.TempDir())

	_, err := r.Reconcile(context.Background(), "a", 30, fetch.MaxAge(30))
	if !errors.Is(err, ErrInconsistentReferences) {
		t.Fatalf("Reconcile() error = %v, want ErrInconsistentReferences", err)
	}
	if _, statErr := os.Stat(store.Path("a")); !os.IsNotExist(statErr) {
		t.Error("failed acquisition wrote a cache file")
	}
}

func TestReconcile_NeverReturnsPartial(t *testing.T) {
	p := newFakeProvider()
	p.pageSize = 40
	p.addN("a", "r", 50)
	p.declared["a"] = 60 // more than the provider can deliver
	r, store := newReconciler(p, t.TempDir())

	refs, err := r.Reconcile(context.Background(), "a", 30, fetch.MaxAge(30))
	if !errors.Is(err, ErrInconsistentReferences) {
		t.Fatalf("Reconcile() error = %v, want ErrInconsistentReferences", err)
	}
	if refs != nil {
		t.Errorf("Reconcile() returned %d refs alongside an error", len(refs))
	}
	if store.Load("a") != nil {
		t.Error("partial list was cached")
	}
}

func TestReconcile_Overshoot(t *testing.T) {
	p := newFakeProvider()
	p.pageSize = 40
	p.addN("a", "r", 50)
	p.declared["a"] = 45
	r, _ := newReconciler(p, t.TempDir())

	if _, err := r.Reconcile(context.Background(), "a", 30, fetch.MaxAge(30)); !errors.Is(err, ErrInconsistentReferences) {
		t.Errorf("Reconcile() error = %v, want ErrInconsistentReferences", err)
	}
}

func TestReconcile_NotFound(t *testing.T) {
	r, _ := newReconciler(newFakeProvider(), t.TempDir())
	_, err := r.Reconcile(context.Background(), "missing", 30, fetch.MaxAge(30))
	if !fetch.IsNotFound(err) {
		t.Errorf("Reconcile() error = %v, want not found", err)
	}
}

func TestAcquire_Sequential(t *testing.T) {
	p := newFakeProvider()
	p.add("p0", "a", "b", "c")
	p.add("p1", "c", "a", "d")
	p.add("p2", "e")
	p.fail["p2|REF"] = errors.New("HTTP 500")

	s := NewSession(p, refcache.New(t.TempDir()), []string{"p0", " p1", "missing", "p2"}, []string{"d"}, testOptions())
	res, err := s.Acquire(context.Background())
	if !errors.Is(err, ErrUnexpected) {
		t.Fatalf("Acquire() error = %v, want ErrUnexpected", err)
	}
	if res == nil {
		t.Fatal("Acquire() returned nil result alongside ErrUnexpected")
	}

	if got := res.FailedIDs(); !reflect.DeepEqual(got, []string{"missing", "p2"}) {
		t.Errorf("FailedIDs() = %v", got)
	}
	if !fetch.IsNotFound(res.Failed["missing"]) {
		t.Errorf("Failed[missing] = %v", res.Failed["missing"])
	}
	if res.Papers[0] == nil || res.Papers[0].Identifier != "p0" || res.Papers[2] != nil {
		t.Errorf("Papers = %+v", res.Papers)
	}
	if res.Papers[3] == nil {
		t.Error("FULL view of p2 should have succeeded")
	}
	if res.References[3] != nil {
		t.Error("p2 references should be nil")
	}

	if res.Index.Len() != 4 {
		t.Errorf("Index.Len() = %d, want 4", res.Index.Len())
	}
	c, _ := res.Index.Get("c")
	if c.Count() != 2 {
		t.Errorf("c.Count() = %d, want 2", c.Count())
	}

	ranked := res.Ranked()
	if last := ranked[len(ranked)-1]; last.Ref.ID != "d" || !last.Ignored {
		t.Errorf("ignored entry should rank last, got %s", last.Ref.ID)
	}

	if _, err := res.Bibliography(2); err == nil {
		t.Error("Bibliography() of a failed paper should fail")
	}
	if refs, err := res.Bibliography(1); err != nil || len(refs) != 3 {
		t.Errorf("Bibliography(1) = %v, %v", refs, err)
	}
	if _, err := res.Bibliography(9); err == nil {
		t.Error("Bibliography() out of range should fail")
	}
}

func TestAcquire_FullFailureShortCircuitsRef(t *testing.T) {
	p := newFakeProvider()
	p.add("p0", "a")
	p.fail["p0|FULL"] = errors.New("boom")

	s := NewSession(p, refcache.New(t.TempDir()), []string{"p0"}, nil, testOptions())
	res, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v; FULL failures are only recorded", err)
	}
	if _, ok := res.Failed["p0"]; !ok {
		t.Error("p0 should be in the failure set")
	}
	for _, call := range p.calls {
		if call.View == fetch.ViewRef {
			t.Error("REF view requested for an identifier that already failed")
		}
	}
}

func TestAcquire_ContextCanceled(t *testing.T) {
	p := newFakeProvider()
	p.add("p0", "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSession(p, refcache.New(t.TempDir()), []string{"p0"}, nil, testOptions())
	if _, err := s.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

// buildBatch registers overlapping bibliographies, one of them paginated.
func buildBatch(p *fakeProvider) []string {
	p.pageSize = 40
	p.add("p0", "a", "b", "c")
	p.add("p1", "c", "a", "d")
	p.addN("p2", "long", 85)
	p.add("p3", "a", "long-3", "e")
	p.add("p4", "b")
	return []string{"p0", "p1", "p2", "p3", "missing", "p4"}
}

func TestAcquireParallel_MatchesSequential(t *testing.T) {
	seqProvider := newFakeProvider()
	ids := buildBatch(seqProvider)
	seq, err := NewSession(seqProvider, refcache.New(t.TempDir()), ids, nil, testOptions()).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	parProvider := newFakeProvider()
	buildBatch(parProvider)
	par, err := NewSession(parProvider, refcache.New(t.TempDir()), ids, nil, testOptions()).AcquireParallel(context.Background(), 3)
	if err != nil {
		t.Fatalf("AcquireParallel() error = %v", err)
	}

	if !par.Index.Equal(seq.Index) {
		t.Errorf("parallel index (%d works) differs from sequential (%d works)", par.Index.Len(), seq.Index.Len())
	}
	if !reflect.DeepEqual(par.FailedIDs(), seq.FailedIDs()) {
		t.Errorf("FailedIDs() = %v, want %v", par.FailedIDs(), seq.FailedIDs())
	}
	for i := range ids {
		if (par.Papers[i] == nil) != (seq.Papers[i] == nil) {
			t.Errorf("paper %d: parallel nil=%v, sequential nil=%v", i, par.Papers[i] == nil, seq.Papers[i] == nil)
		}
		if len(par.References[i]) != len(seq.References[i]) {
			t.Errorf("paper %d: %d refs, want %d", i, len(par.References[i]), len(seq.References[i]))
		}
	}

	// The read-back pass is served from the caches: no extra network calls.
	if par, seq := parProvider.networkCalls(), seqProvider.networkCalls(); par != seq {
		t.Errorf("parallel made %d network calls, sequential %d", par, seq)
	}
}

func TestAcquireParallel_WorkerFailuresRecorded(t *testing.T) {
	p := newFakeProvider()
	p.add("p0", "a")
	p.add("p1", "b")
	p.fail["p1|REF"] = errors.New("HTTP 502")

	res, err := NewSession(p, refcache.New(t.TempDir()), []string{"p0", "p1", "nope"}, nil, testOptions()).
		AcquireParallel(context.Background(), 2)
	if err != nil {
		t.Fatalf("AcquireParallel() error = %v", err)
	}
	if got := res.FailedIDs(); !reflect.DeepEqual(got, []string{"p1", "nope"}) {
		t.Errorf("FailedIDs() = %v", got)
	}
	if res.Index.Len() != 1 {
		t.Errorf("Index.Len() = %d, want 1", res.Index.Len())
	}
}

func TestAcquireParallel_WorkerPanicIsFailure(t *testing.T) {
	p := newFakeProvider()
	p.add("p0", "a")
	p.add("p1", "b")
	p.onFetch = func(req fetch.Request) {
		if req.ID == "p1" {
			panic("decoder exploded")
		}
	}

	res, err := NewSession(p, refcache.New(t.TempDir()), []string{"p0", "p1"}, nil, testOptions()).
		AcquireParallel(context.Background(), 2)
	if err != nil {
		t.Fatalf("AcquireParallel() error = %v", err)
	}
	if _, ok := res.Failed["p1"]; !ok {
		t.Error("panicking identifier should be recorded as failed")
	}
	if res.Papers[0] == nil {
		t.Error("p0 should still succeed")
	}
}

func TestAcquireParallel_AccountingBarrier(t *testing.T) {
	p := newFakeProvider()
	for _, id := range []string{"p0", "p1", "p2", "p3"} {
		p.add(id, "a")
	}
	// The worker that picks up p2 dies without reporting a token.
	p.onFetch = func(req fetch.Request) {
		if req.ID == "p2" {
			runtime.Goexit()
		}
	}

	_, err := NewSession(p, refcache.New(t.TempDir()), []string{"p0", "p1", "p2", "p3"}, nil, testOptions()).
		AcquireParallel(context.Background(), 2)
	if !errors.Is(err, ErrAccounting) {
		t.Fatalf("AcquireParallel() error = %v, want ErrAccounting", err)
	}
}

func TestAcquireParallel_OneWorkerIsSequential(t *testing.T) {
	p := newFakeProvider()
	p.add("p0", "a")
	res, err := NewSession(p, refcache.New(t.TempDir()), []string{"p0"}, nil, testOptions()).
		AcquireParallel(context.Background(), 1)
	if err != nil || res.Index.Len() != 1 {
		t.Errorf("AcquireParallel(1) = %v, %v", res, err)
	}
}

func TestRefreshAge_InRange(t *testing.T) {
	s := NewSession(newFakeProvider(), refcache.New(t.TempDir()), nil, nil, Options{MaxAgeDays: 30, MinRefreshDays: 12})
	for i := 0; i < 1000; i++ {
		if age := s.refreshAge(); age < 12 || age > 30 {
			t.Fatalf("refreshAge() = %v, want within [12, 30]", age)
		}
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{MaxAgeDays: 8, MinRefreshDays: 20}
	o.setDefaults()
	if o.MinRefreshDays > o.MaxAgeDays {
		t.Errorf("MinRefreshDays = %v exceeds MaxAgeDays = %v", o.MinRefreshDays, o.MaxAgeDays)
	}
	if o.Logger == nil || o.MinGap == 0 {
		t.Error("setDefaults() left fields unset")
	}
}
