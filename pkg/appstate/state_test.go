package appstate

import (
	"sync"
	"testing"
	"time"
)

func TestShutdownFlag(t *testing.T) {
	s := New()
	if s.Quitting() {
		t.Fatal("fresh state should not be quitting")
	}
	s.RequestShutdown()
	if !s.Quitting() {
		t.Fatal("quitting flag should be set")
	}
}

func TestActivityAccounting(t *testing.T) {
	s := New()
	s.BeginUserActivity()
	s.BeginUserActivity()
	if got := s.LiveUserActivities(); got != 2 {
		t.Fatalf("expected 2 live activities, got %d", got)
	}
	s.EndUserActivity()
	s.EndUserActivity()
	if got := s.LiveUserActivities(); got != 0 {
		t.Fatalf("expected 0 live activities, got %d", got)
	}
}

func TestIdle(t *testing.T) {
	s := New()
	if s.Idle(time.Hour) {
		t.Fatal("should not be idle right after creation")
	}
	if !s.Idle(0) {
		t.Fatal("zero-threshold idle check should pass with no live activity")
	}
	s.BeginUserActivity()
	if s.Idle(0) {
		t.Fatal("should not be idle while an activity is live")
	}
}

func TestConcurrentCounters(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.BeginUserActivity()
			s.EndUserActivity()
		}()
	}
	wg.Wait()
	if got := s.LiveUserActivities(); got != 0 {
		t.Fatalf("counter should balance to 0, got %d", got)
	}
}
