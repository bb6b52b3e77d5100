package web_search

import (
	"context"
	"testing"
	"time"

	"github.com/omidshahri/glassmind/tools/web_search/models"
)

type fakeSearcher struct {
	calls []time.Time
}

func (f *fakeSearcher) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	f.calls = append(f.calls, time.Now())
	return []models.Result{{Title: "t", URL: "https://example.com"}}, nil
}

func TestThrottledSpacesCalls(t *testing.T) {
	fake := &fakeSearcher{}
	th := NewThrottled(fake, 50*time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := th.Discover(context.Background(), "q", 5); err != nil {
			t.Fatalf("discover: %v", err)
		}
	}
	elapsed := time.Since(start)
	if elapsed < 100*time.Millisecond {
		t.Fatalf("three calls finished in %v, expected at least 100ms of spacing", elapsed)
	}
	if len(fake.calls) != 3 {
		t.Fatalf("got %d calls", len(fake.calls))
	}
}

func TestThrottledHonorsContext(t *testing.T) {
	fake := &fakeSearcher{}
	th := NewThrottled(fake, time.Hour)

	// first call passes immediately, second must wait and gets cancelled
	if _, err := th.Discover(context.Background(), "q", 5); err != nil {
		t.Fatalf("first discover: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := th.Discover(ctx, "q", 5); err == nil {
		t.Fatal("expected context error while throttled")
	}
	if len(fake.calls) != 1 {
		t.Fatalf("inner called %d times, want 1", len(fake.calls))
	}
}
