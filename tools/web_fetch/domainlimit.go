package web_fetch

import (
	"context"
	"sync"
	"time"

	"github.com/omidshahri/glassmind/tools/web_fetch/models"
	"github.com/omidshahri/glassmind/utils"
)

// DomainLimited wraps a WebFetcher with a minimum interval between fetches of
// the same domain. The domain table is shared across all runs.
type DomainLimited struct {
	inner WebFetcher
	delay time.Duration

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewDomainLimited(inner WebFetcher, delay time.Duration) *DomainLimited {
	return &DomainLimited{inner: inner, delay: delay, last: map[string]time.Time{}, now: time.Now}
}

func (d *DomainLimited) Exec(ctx context.Context, url string) (models.Result, error) {
	if err := d.wait(ctx, utils.Domain(url)); err != nil {
		return models.Result{}, err
	}
	return d.inner.Exec(ctx, url)
}

// wait reserves the domain's next allowed slot under the lock, then sleeps
// outside it so other domains are not held up.
func (d *DomainLimited) wait(ctx context.Context, domain string) error {
	d.mu.Lock()
	now := d.now()
	next := d.last[domain].Add(d.delay)
	if next.Before(now) {
		next = now
	}
	d.last[domain] = next
	d.mu.Unlock()

	if wait := next.Sub(now); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
