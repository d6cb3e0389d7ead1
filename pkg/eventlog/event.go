// Package eventlog provides the append-only execution event log. Every
// command invocation owns exactly one Event for its lifetime; once the event
// completes it is handed to a Log by reference and may be retained
// indefinitely for audit.
package eventlog

import (
	"time"

	"github.com/google/uuid"
)

// Flag is the lifecycle state of an Event.
type Flag string

const (
	FlagIncomplete Flag = "incomplete"
	FlagRunning    Flag = "running"
	FlagComplete   Flag = "complete"
)

// Event records the execution of one command invocation.
//
// Ownership: an Event is exclusively owned by its invocation until it reaches
// FlagComplete; no internal locking is provided. After completion it is
// immutable by convention.
type Event struct {
	EventID     string
	Flags       Flag
	Source      string
	Message     string
	PrivateData map[string]any
	PublicData  map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ElapsedMS   int64

	history []Flag
}

// New creates an incomplete Event for the given source command.
func New(source, message string, private map[string]any) *Event {
	now := time.Now().UTC()
	if private == nil {
		private = map[string]any{}
	}
	return &Event{
		EventID:     uuid.NewString(),
		Flags:       FlagIncomplete,
		Source:      source,
		Message:     message,
		PrivateData: private,
		PublicData:  map[string]any{},
		CreatedAt:   now,
		UpdatedAt:   now,
		history:     []Flag{FlagIncomplete},
	}
}

// SetFlag transitions the event and records the transition. Transitions out
// of FlagComplete are ignored; complete is terminal.
func (e *Event) SetFlag(f Flag) {
	if e.Flags == FlagComplete {
		return
	}
	e.Flags = f
	e.UpdatedAt = time.Now().UTC()
	e.history = append(e.history, f)
}

// History returns the ordered flag transitions, starting with FlagIncomplete.
func (e *Event) History() []Flag {
	out := make([]Flag, len(e.history))
	copy(out, e.history)
	return out
}

// Complete reports whether the event reached its terminal state.
func (e *Event) Complete() bool {
	return e.Flags == FlagComplete
}
