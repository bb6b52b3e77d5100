package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingCache struct {
	nopCache
	prunes atomic.Int32
}

func (c *countingCache) Prune(ctx context.Context) (int, error) {
	c.prunes.Add(1)
	return 1, nil
}

func TestJanitorRejectsBadSchedule(t *testing.T) {
	_, err := NewJanitor("not a cron", NewNopCache())
	require.Error(t, err)
}

func TestJanitorPrunesOnSchedule(t *testing.T) {
	cache := &countingCache{}
	// six fields = second granularity
	j, err := NewJanitor("* * * * * *", cache)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	err = j.Run(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.GreaterOrEqual(t, cache.prunes.Load(), int32(1))
}
