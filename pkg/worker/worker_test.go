package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testPool() *Pool {
	return NewPool(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestQueueRunsFIFO(t *testing.T) {
	p := testPool()
	defer p.Shutdown()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 10; i++ {
		i := i
		p.Submit("q", "step", func(ctx context.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	if err := p.DrainAndWait(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("queue order broken: %v", order)
		}
	}
}

func TestSubmitUniqueCollapses(t *testing.T) {
	p := testPool()
	defer p.Shutdown()

	var mu sync.Mutex
	runs := 0
	last := -1

	// Block the queue so all unique submissions land while pending.
	gate := make(chan struct{})
	p.Submit("q", "gate", func(ctx context.Context) { <-gate })

	for i := 0; i < 5; i++ {
		i := i
		p.SubmitUnique("q", "save", func(ctx context.Context) {
			mu.Lock()
			runs++
			last = i
			mu.Unlock()
		})
	}
	close(gate)
	if err := p.DrainAndWait(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if runs != 1 {
		t.Fatalf("unique task ran %d times, want 1", runs)
	}
	if last != 4 {
		t.Fatalf("last submission should win, got body %d", last)
	}
}

func TestSubmitUniqueRequeuesAfterRun(t *testing.T) {
	p := testPool()
	defer p.Shutdown()

	var mu sync.Mutex
	runs := 0
	body := func(ctx context.Context) {
		mu.Lock()
		runs++
		mu.Unlock()
	}

	p.SubmitUnique("q", "save", body)
	if err := p.DrainAndWait(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}
	p.SubmitUnique("q", "save", body)
	if err := p.DrainAndWait(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if runs != 2 {
		t.Fatalf("distinct generations should both run, got %d", runs)
	}
}

func TestDoReturnsError(t *testing.T) {
	p := testPool()
	defer p.Shutdown()

	want := errors.New("boom")
	err := p.Do(context.Background(), "q", "failing", func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("got %v", err)
	}
}

func TestDoWaitAbortsOnContext(t *testing.T) {
	p := testPool()
	defer p.Shutdown()

	gate := make(chan struct{})
	defer close(gate)
	p.Submit("q", "gate", func(ctx context.Context) { <-gate })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Do(ctx, "q", "late", func(ctx context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v", err)
	}
}

func TestPanicDoesNotKillQueue(t *testing.T) {
	p := testPool()
	defer p.Shutdown()

	p.Submit("q", "bad", func(ctx context.Context) { panic("oops") })
	ran := false
	err := p.Do(context.Background(), "q", "after", func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("queue should survive a panicking task: ran=%v err=%v", ran, err)
	}
}

func TestSubmitUniqueAfterShutdownIsDropped(t *testing.T) {
	p := testPool()
	if err := p.DrainAndWait(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}
	p.Shutdown()

	p.SubmitUnique("q", "save", func(ctx context.Context) { t.Error("task ran on a closed queue") })

	q := p.getQueue("q")
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) != 0 || len(q.unique) != 0 {
		t.Fatalf("closed queue accepted work: pending=%d unique=%d", len(q.pending), len(q.unique))
	}
}

func TestRateLimitThrottlesQueue(t *testing.T) {
	p := testPool()
	defer p.Shutdown()

	p.Configure("slow", WithRateLimit(rate.Every(20*time.Millisecond), 1))

	start := time.Now()
	for i := 0; i < 3; i++ {
		p.Submit("slow", "tick", func(ctx context.Context) {})
	}
	if err := p.DrainAndWait(context.Background(), "slow"); err != nil {
		t.Fatal(err)
	}
	// Burst covers the first task; the drain marker and the rest each wait.
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("queue ran too fast for the limit: %v", elapsed)
	}
}

func TestQueuesRunIndependently(t *testing.T) {
	p := testPool()
	defer p.Shutdown()

	gate := make(chan struct{})
	defer close(gate)
	p.Submit("slow", "gate", func(ctx context.Context) { <-gate })

	err := p.Do(context.Background(), "fast", "quick", func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("independent queue blocked: %v", err)
	}
}
