package web_search

import (
	"context"
	"sync"
	"time"

	"github.com/omidshahri/glassmind/tools/web_search/models"
)

// Throttled wraps a WebSearcher with a single global minimum interval between
// calls, shared across all runs.
type Throttled struct {
	inner WebSearcher
	delay time.Duration

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewThrottled(inner WebSearcher, delay time.Duration) *Throttled {
	return &Throttled{inner: inner, delay: delay, now: time.Now}
}

func (t *Throttled) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.Discover(ctx, q, k)
}

// wait reserves the next allowed slot and sleeps until it arrives. The
// reservation happens under the lock so concurrent callers serialize.
func (t *Throttled) wait(ctx context.Context) error {
	t.mu.Lock()
	now := t.now()
	next := t.last.Add(t.delay)
	if next.Before(now) {
		next = now
	}
	t.last = next
	t.mu.Unlock()

	if d := next.Sub(now); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
