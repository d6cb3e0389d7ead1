package cache

import (
	"context"
	"testing"
	"time"

	"github.com/maildeck/maildeck/pkg/command"
)

func testResult(msg string) *command.Result {
	return &command.Result{
		Command: "search",
		Status:  command.StatusSuccess,
		Message: msg,
		Payload: command.TextPayload(msg),
	}
}

func newTestCache() (*MemoryCache, *time.Time) {
	c := NewMemoryCache()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestMemoryCachePutGet(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()

	if err := c.Put(ctx, "search-abc", time.Minute, []string{"index-changed"}, testResult("hit")); err != nil {
		t.Fatal(err)
	}
	res, err := c.Get(ctx, "search-abc")
	if err != nil {
		t.Fatal(err)
	}
	if res.Message != "hit" {
		t.Fatalf("got %q", res.Message)
	}

	if _, err := c.Get(ctx, "no-such-id"); err != ErrMiss {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c, now := newTestCache()

	c.Put(ctx, "id", time.Minute, nil, testResult("x"))
	*now = now.Add(59 * time.Second)
	if _, err := c.Get(ctx, "id"); err != nil {
		t.Fatalf("entry should still be live: %v", err)
	}
	*now = now.Add(2 * time.Second)
	if _, err := c.Get(ctx, "id"); err != ErrMiss {
		t.Fatalf("expired entry should miss, got %v", err)
	}
}

func TestMemoryCacheInvalidateByTag(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()

	c.Put(ctx, "a", time.Hour, []string{"index-changed"}, testResult("a"))
	c.Put(ctx, "b", time.Hour, []string{"config-changed"}, testResult("b"))

	if err := c.Invalidate(ctx, "index-changed"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "a"); err != ErrMiss {
		t.Fatalf("tagged entry should be dead, got %v", err)
	}
	if _, err := c.Get(ctx, "b"); err != nil {
		t.Fatalf("unrelated entry should survive: %v", err)
	}
}

func TestMemoryCachePutAfterInvalidateIsLive(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()

	c.Invalidate(ctx, "index-changed")
	c.Put(ctx, "a", time.Hour, []string{"index-changed"}, testResult("fresh"))
	if _, err := c.Get(ctx, "a"); err != nil {
		t.Fatalf("entry stored after invalidation must be live: %v", err)
	}

	c.Invalidate(ctx, "index-changed")
	if _, err := c.Get(ctx, "a"); err != ErrMiss {
		t.Fatalf("later invalidation must kill it, got %v", err)
	}
}

func TestMemoryCacheEvict(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()

	c.Put(ctx, "id", time.Hour, nil, testResult("x"))
	if err := c.Evict(ctx, "id"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "id"); err != ErrMiss {
		t.Fatalf("evicted entry should miss, got %v", err)
	}
}

func TestMemoryCacheClear(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()

	c.Put(ctx, "a", time.Hour, nil, testResult("a"))
	c.Put(ctx, "b", time.Hour, []string{"index-changed"}, testResult("b"))
	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "a"); err != ErrMiss {
		t.Fatalf("cleared entry should miss, got %v", err)
	}
	if _, err := c.Get(ctx, "b"); err != ErrMiss {
		t.Fatalf("cleared entry should miss, got %v", err)
	}

	// The cache stays usable after a clear.
	c.Put(ctx, "a", time.Hour, nil, testResult("again"))
	if _, err := c.Get(ctx, "a"); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryCacheReplaceResetsBirth(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()

	c.Put(ctx, "id", time.Hour, []string{"t"}, testResult("old"))
	c.Invalidate(ctx, "t")
	c.Put(ctx, "id", time.Hour, []string{"t"}, testResult("new"))

	res, err := c.Get(ctx, "id")
	if err != nil {
		t.Fatal(err)
	}
	if res.Message != "new" {
		t.Fatalf("replacement should win, got %q", res.Message)
	}
}
