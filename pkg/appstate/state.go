// Package appstate holds process-wide coordination state shared between the
// command engine and the background scheduler: the cooperative shutdown flag,
// user-activity accounting and idleness tracking. It replaces ambient globals
// with an explicit object passed by reference.
package appstate

import (
	"sync/atomic"
	"time"
)

// State is safe for concurrent use by any goroutine.
type State struct {
	quitting       atomic.Bool
	lastActivityNS atomic.Int64
	liveActivities atomic.Int64
}

// New returns a fresh State with the activity clock set to now.
func New() *State {
	s := &State{}
	s.lastActivityNS.Store(time.Now().UnixNano())
	return s
}

// RequestShutdown sets the quitting flag. Long-running command bodies and
// scheduler loops are expected to poll Quitting and return early; nothing is
// forcibly killed.
func (s *State) RequestShutdown() {
	s.quitting.Store(true)
}

// Quitting reports whether a shutdown has been requested.
func (s *State) Quitting() bool {
	return s.quitting.Load()
}

// TouchUserActivity records that a user-initiated command started now.
func (s *State) TouchUserActivity() {
	s.lastActivityNS.Store(time.Now().UnixNano())
}

// LastUserActivity returns the time of the most recent user-initiated command.
func (s *State) LastUserActivity() time.Time {
	return time.Unix(0, s.lastActivityNS.Load())
}

// BeginUserActivity increments the live-activity counter. The matching
// EndUserActivity must run even when the command fails.
func (s *State) BeginUserActivity() {
	s.TouchUserActivity()
	s.liveActivities.Add(1)
}

// EndUserActivity decrements the live-activity counter.
func (s *State) EndUserActivity() {
	s.liveActivities.Add(-1)
}

// LiveUserActivities returns the number of user commands currently running.
func (s *State) LiveUserActivities() int64 {
	return s.liveActivities.Load()
}

// Idle reports whether no user command has run for at least d and none is
// in flight.
func (s *State) Idle(d time.Duration) bool {
	return s.LiveUserActivities() == 0 && time.Since(s.LastUserActivity()) >= d
}
