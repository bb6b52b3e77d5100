package memory

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
)

// Janitor prunes expired cache entries on a cron schedule.
type Janitor struct {
	expr   *cronexpr.Expression
	cache  Cache
	logger *log.Logger
	now    func() time.Time
}

func NewJanitor(schedule string, cache Cache) (*Janitor, error) {
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return &Janitor{
		expr:   expr,
		cache:  cache,
		logger: log.New(log.Writer(), "[JANITOR] ", log.LstdFlags),
		now:    time.Now,
	}, nil
}

// Run blocks, pruning at every schedule tick until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	for {
		next := j.expr.Next(j.now())
		if next.IsZero() {
			return fmt.Errorf("prune schedule yields no next run")
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		n, err := j.cache.Prune(ctx)
		if err != nil {
			j.logger.Printf("prune failed: %v", err)
			continue
		}
		if n > 0 {
			j.logger.Printf("pruned %d expired cache entries", n)
		}
	}
}
