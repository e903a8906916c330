package fetch

import (
	"context"
	"sync"
	"time"
)

// DefaultMinGap is the default minimum gap between network requests.
const DefaultMinGap = 100 * time.Millisecond

// Pacer enforces a minimum gap between requests, measured from the last
// request that actually reached the network. Provider-side cache hits do not
// call Mark and so do not delay the next request.
type Pacer struct {
	mu   sync.Mutex
	gap  time.Duration
	last time.Time
	now  func() time.Time
}

// NewPacer returns a Pacer with the given gap. A non-positive gap disables
// pacing.
func NewPacer(gap time.Duration) *Pacer {
	return &Pacer{gap: gap, now: time.Now}
}

// Gap returns the configured minimum gap.
func (p *Pacer) Gap() time.Duration {
	return p.gap
}

// Wait blocks until the gap since the last network request has elapsed or
// ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	var d time.Duration
	if !p.last.IsZero() {
		d = p.gap - p.now().Sub(p.last)
	}
	p.mu.Unlock()

	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Mark records that a network request just completed.
func (p *Pacer) Mark() {
	p.mu.Lock()
	p.last = p.now()
	p.mu.Unlock()
}
