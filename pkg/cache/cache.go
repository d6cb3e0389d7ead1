// Package cache stores finished command results keyed by invocation
// fingerprint, with per-entry TTLs and lazy invalidation by requirement tag.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/maildeck/maildeck/pkg/command"
)

// ErrMiss is returned by Get when no live entry exists for the id. Expired
// and invalidated entries report a miss; callers cannot distinguish the two.
var ErrMiss = errors.New("cache: miss")

// Cache holds results of side-effect-free commands. Entries become dead when
// their TTL lapses or when any requirement tag they were stored under is
// invalidated after they were stored. Dead entries are detected lazily on
// lookup.
//
// No single-flight guarantee: concurrent misses for the same id may all
// compute and store. Stored commands must be safe to re-run.
type Cache interface {
	// Put stores a result under id for ttl, bound to the given requirement
	// tags. An existing entry for id is replaced.
	Put(ctx context.Context, id string, ttl time.Duration, requires []string, res *command.Result) error

	// Get returns the live entry for id, or ErrMiss.
	Get(ctx context.Context, id string) (*command.Result, error)

	// Invalidate marks every entry stored under any of the tags as dead.
	// Entries stored after the call are unaffected.
	Invalidate(ctx context.Context, tags ...string) error

	// Evict removes the entry for id, if any.
	Evict(ctx context.Context, id string) error

	// Clear drops every entry.
	Clear(ctx context.Context) error
}
