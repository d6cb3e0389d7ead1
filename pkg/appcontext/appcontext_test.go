package appcontext

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/maildeck/maildeck/pkg/config"
)

func testContext() *Context {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(&config.Settings{Workdir: "/tmp/deck"}, log)
}

func TestEnsureReadyRunsPrepareOnce(t *testing.T) {
	app := testContext()
	var calls atomic.Int64
	app.SetPrepare(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.EnsureReady(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("prepare ran %d times, want 1", calls.Load())
	}
	if !app.Ready() {
		t.Fatal("context should be ready")
	}
}

func TestEnsureReadyRetriesAfterFailure(t *testing.T) {
	app := testContext()
	fail := true
	app.SetPrepare(func(ctx context.Context) error {
		if fail {
			return errors.New("config unreadable")
		}
		return nil
	})

	if err := app.EnsureReady(context.Background()); err == nil {
		t.Fatal("first attempt should fail")
	}
	if app.Ready() {
		t.Fatal("failed prepare must leave the context unready")
	}

	fail = false
	if err := app.EnsureReady(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !app.Ready() {
		t.Fatal("retry should succeed")
	}
}

func TestEnsureReadyWithoutPrepare(t *testing.T) {
	app := testContext()
	if err := app.EnsureReady(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !app.Ready() {
		t.Fatal("no-op prepare should mark ready")
	}
}
