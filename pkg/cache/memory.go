package cache

import (
	"context"
	"sync"
	"time"

	"github.com/maildeck/maildeck/pkg/command"
)

type memoryEntry struct {
	res       *command.Result
	expiresAt time.Time
	requires  []string
	bornGen   uint64
}

// MemoryCache is the in-process Cache. Tag invalidation is tracked with a
// monotonic generation counter: an entry is dead when any of its tags was
// invalidated at a generation later than the entry's birth generation. Dead
// entries are dropped on lookup, not eagerly.
type MemoryCache struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	tagDirty map[string]uint64
	gen      uint64

	now func() time.Time
}

// NewMemoryCache returns an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:  map[string]memoryEntry{},
		tagDirty: map[string]uint64{},
		now:      time.Now,
	}
}

func (c *MemoryCache) Put(_ context.Context, id string, ttl time.Duration, requires []string, res *command.Result) error {
	if id == "" || ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries[id] = memoryEntry{
		res:       res,
		expiresAt: c.now().Add(ttl),
		requires:  append([]string{}, requires...),
		bornGen:   c.gen,
	}
	return nil
}

func (c *MemoryCache) Get(_ context.Context, id string) (*command.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return nil, ErrMiss
	}
	if c.dead(e) {
		delete(c.entries, id)
		return nil, ErrMiss
	}
	return e.res, nil
}

func (c *MemoryCache) dead(e memoryEntry) bool {
	if c.now().After(e.expiresAt) {
		return true
	}
	for _, tag := range e.requires {
		if c.tagDirty[tag] > e.bornGen {
			return true
		}
	}
	return false
}

func (c *MemoryCache) Invalidate(_ context.Context, tags ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for _, tag := range tags {
		c.tagDirty[tag] = c.gen
	}
	return nil
}

func (c *MemoryCache) Evict(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]memoryEntry{}
	return nil
}

var _ Cache = (*MemoryCache)(nil)
