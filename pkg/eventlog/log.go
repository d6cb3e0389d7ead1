package eventlog

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	SourcePrefix string
	Flag         Flag
	Since        time.Time
	Limit        int
}

// Log is the consumed event-log interface. Query results are finite and
// restartable: each call re-evaluates the filter against the current log.
type Log interface {
	// Append records (or re-records) an event. Appending an event id that is
	// already present replaces the stored snapshot, so an event may be logged
	// at RUNNING and again at COMPLETE.
	Append(ctx context.Context, e *Event) error

	Query(ctx context.Context, f Filter) ([]*Event, error)

	// Incomplete returns events that never reached COMPLETE, oldest first.
	Incomplete(ctx context.Context) ([]*Event, error)
}

// MemoryLog is a bounded in-memory Log. When the bound is exceeded the oldest
// completed events are dropped first.
type MemoryLog struct {
	mu      sync.RWMutex
	max     int
	order   []string
	entries map[string]*Event
}

const defaultMemoryLogSize = 10000

// NewMemoryLog creates a MemoryLog holding at most max events (0 = default).
func NewMemoryLog(max int) *MemoryLog {
	if max <= 0 {
		max = defaultMemoryLogSize
	}
	return &MemoryLog{
		max:     max,
		entries: make(map[string]*Event),
	}
}

func (l *MemoryLog) Append(ctx context.Context, e *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, seen := l.entries[e.EventID]; !seen {
		l.order = append(l.order, e.EventID)
	}
	l.entries[e.EventID] = e
	l.evictLocked()
	return nil
}

// evictLocked drops oldest complete events past the bound, then oldest of any
// state if the log is still over budget.
func (l *MemoryLog) evictLocked() {
	for len(l.order) > l.max {
		dropped := false
		for i, id := range l.order {
			if l.entries[id].Complete() {
				delete(l.entries, id)
				l.order = append(l.order[:i], l.order[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			delete(l.entries, l.order[0])
			l.order = l.order[1:]
		}
	}
}

func (l *MemoryLog) Query(ctx context.Context, f Filter) ([]*Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Event
	for _, id := range l.order {
		e := l.entries[id]
		if !matches(e, f) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (l *MemoryLog) Incomplete(ctx context.Context) ([]*Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Event
	for _, id := range l.order {
		if e := l.entries[id]; !e.Complete() {
			out = append(out, e)
		}
	}
	return out, nil
}

func matches(e *Event, f Filter) bool {
	if f.SourcePrefix != "" && !strings.HasPrefix(e.Source, f.SourcePrefix) {
		return false
	}
	if f.Flag != "" && e.Flags != f.Flag {
		return false
	}
	if !f.Since.IsZero() && e.UpdatedAt.Before(f.Since) {
		return false
	}
	return true
}
