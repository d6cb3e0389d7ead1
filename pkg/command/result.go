package command

import (
	"fmt"
	"sync"
	"time"
)

// Status is the terminal disposition of an invocation.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the lifecycle-terminal output container produced exactly once
// per invocation. It is immutable after construction except for the private
// per-format render cache and the caller rendering context re-stamped on
// cache hits.
type Result struct {
	Command   string
	Doc       string
	APIPath   string
	Status    Status
	Message   string
	Payload   Payload
	ErrorInfo map[string]any
	EventID   string
	Elapsed   time.Duration
	CacheID   string

	mu         sync.Mutex
	renderMode string
	rendered   map[string][]byte
}

// OK reports whether the invocation succeeded.
func (r *Result) OK() bool { return r.Status == StatusSuccess }

// AsDict returns the stable structured form used by data-exchange formats.
// The returned map is freshly built on each call; rendering never mutates
// the payload itself.
func (r *Result) AsDict() map[string]any {
	rv := map[string]any{
		"command": r.Command,
		"status":  string(r.Status),
		"message": r.Message,
		"result":  r.Payload.Value(),
		"elapsed": fmt.Sprintf("%.3f", r.Elapsed.Seconds()),
		"state": map[string]any{
			"cache_id": r.CacheID,
			"api_path": r.APIPath,
		},
	}
	if r.EventID != "" {
		rv["event_id"] = r.EventID
	}
	if len(r.ErrorInfo) > 0 {
		rv["error"] = r.ErrorInfo
	}
	return rv
}

// RenderMode returns the caller rendering context carried by this result.
func (r *Result) RenderMode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renderMode
}

// SetRenderMode re-stamps the result with a caller's rendering context.
// Called on cache hits so a result computed for one front-end renders
// correctly for another.
func (r *Result) SetRenderMode(mode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderMode = mode
}

// CachedRender looks up a memoized rendering for key.
func (r *Result) CachedRender(key string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rendered[key]
	return b, ok
}

// StoreRender memoizes a rendering under key.
func (r *Result) StoreRender(key string, b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rendered == nil {
		r.rendered = map[string][]byte{}
	}
	r.rendered[key] = b
}
