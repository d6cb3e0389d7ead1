package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func TestDisabledProviderIsSafe(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := New(context.Background(), &Config{Enabled: false}, log)
	if err != nil {
		t.Fatal(err)
	}

	ctx, done := p.TrackCommand(context.Background(), "search")
	if ctx == nil {
		t.Fatal("TrackCommand must return a context")
	}
	done(errors.New("boom"))

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.Enabled {
		t.Fatal("telemetry should default off")
	}
	if c.ServiceName != "maildeck" || c.SampleRate != 1.0 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}
