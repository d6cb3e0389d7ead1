// Package appcontext wires the long-lived collaborators every command body
// reaches through: configuration, shared state, workers, the event log, the
// result cache, the renderer, and the search index.
package appcontext

import (
	"context"
	"log/slog"
	"sync"

	"github.com/maildeck/maildeck/pkg/appstate"
	"github.com/maildeck/maildeck/pkg/cache"
	"github.com/maildeck/maildeck/pkg/config"
	"github.com/maildeck/maildeck/pkg/eventlog"
	"github.com/maildeck/maildeck/pkg/render"
	"github.com/maildeck/maildeck/pkg/worker"
)

// Index is the search index the mail commands drive. Implementations live
// elsewhere; commands only need this surface.
type Index interface {
	// Search returns matching thread ids for the given terms.
	Search(ctx context.Context, terms []string) ([]string, error)
	// ScanMailbox indexes new messages in one mailbox and returns how many
	// it found.
	ScanMailbox(ctx context.Context, path string) (int, error)
	// Optimize compacts the index. full trades time for a tighter result.
	Optimize(ctx context.Context, full bool) error
	// Save flushes in-memory index state to disk.
	Save(ctx context.Context) error
}

// TagResolver maps a free-form name to a tag slug, used when command lookup
// falls through to a tag search.
type TagResolver func(name string) (slug string, ok bool)

// Context is the application context handed to command bodies. Collaborators
// are set once at startup; EnsureReady guards the parts that need the
// configuration loaded first.
type Context struct {
	Settings *config.Settings
	Config   *config.Tree
	State    *appstate.State
	Workers  *worker.Pool
	Events   eventlog.Log
	Cache    cache.Cache
	Renderer *render.Renderer
	Index    Index
	Tags     TagResolver
	Log      *slog.Logger

	mu      sync.Mutex
	ready   bool
	prepare func(ctx context.Context) error

	renderMu   sync.Mutex
	renderMode string
}

// New builds a context with in-process defaults. Callers replace
// collaborators before first use where the settings ask for it.
func New(settings *config.Settings, log *slog.Logger) *Context {
	return &Context{
		Settings:   settings,
		Config:     config.NewTree(),
		State:      appstate.New(),
		Workers:    worker.NewPool(log),
		Events:     eventlog.NewMemoryLog(0),
		Cache:      cache.NewMemoryCache(),
		Renderer:   render.New(),
		Log:        log,
		renderMode: render.ModeText,
	}
}

// DefaultRenderMode is the format stamped onto invocations that arrive
// without a caller preference. Command bodies on worker goroutines read it
// while the console writes it, hence the lock.
func (c *Context) DefaultRenderMode() string {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()
	return c.renderMode
}

// SetDefaultRenderMode changes the default format.
func (c *Context) SetDefaultRenderMode(mode string) {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()
	c.renderMode = mode
}

// SetPrepare installs the one-time readiness hook, typically loading the
// configuration file and opening the index.
func (c *Context) SetPrepare(fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prepare = fn
}

// Ready reports whether EnsureReady has completed.
func (c *Context) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// EnsureReady runs the prepare hook exactly once across all callers. A
// failed attempt leaves the context unready so a later call can retry.
func (c *Context) EnsureReady(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return nil
	}
	if c.prepare != nil {
		if err := c.prepare(ctx); err != nil {
			return err
		}
	}
	c.ready = true
	return nil
}
