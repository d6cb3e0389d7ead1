package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/maildeck/maildeck/pkg/command"
	"github.com/maildeck/maildeck/pkg/eventlog"
)

// ExecuteBackground queues inv on the background commands queue and returns
// immediately with a placeholder result naming the invocation's event. The
// caller polls the event log with that id; when the event completes, its
// private data carries the real result.
func (e *Engine) ExecuteBackground(ctx context.Context, inv *command.Invocation) (*command.Result, error) {
	def := inv.Definition()
	name := def.CanonicalName()
	event := inv.Event()

	// Log the pending event up front so pollers can see it before the
	// worker picks the task up.
	if !def.LogNothing {
		if err := e.app.Events.Append(ctx, event); err != nil {
			return nil, fmt.Errorf("%s: queue for background: %w", name, err)
		}
	}

	e.app.Workers.Submit(BackgroundQueue, name, func(taskCtx context.Context) {
		// Execute completes and logs the event on every path that yields a
		// result, cache hits included; only a rejection leaves it open.
		if _, err := e.Execute(taskCtx, inv); err != nil && !command.IsControlFlow(err) {
			e.app.Log.Warn("background command rejected",
				"command", name, "event_id", event.EventID, "error", err)
			e.failEvent(taskCtx, inv, err)
		}
	})

	res := &command.Result{
		Command: name,
		Doc:     def.Doc,
		APIPath: def.APIPath,
		Status:  command.StatusSuccess,
		Message: fmt.Sprintf("%s: Running in background", name),
		Payload: command.DataPayload(map[string]any{"resultid": event.EventID}),
		EventID: event.EventID,
	}
	res.SetRenderMode(inv.RenderMode())
	return res, nil
}

// failEvent completes an event for a background invocation rejected before
// producing a result, so no event is left incomplete forever.
func (e *Engine) failEvent(ctx context.Context, inv *command.Invocation, cause error) {
	event := inv.Event()
	if event.Complete() {
		return
	}
	event.Message = fmt.Sprintf("%s: rejected: %s", inv.Definition().CanonicalName(), cause)
	event.SetFlag(eventlog.FlagComplete)
	if !inv.Definition().LogNothing {
		if err := e.app.Events.Append(ctx, event); err != nil {
			e.app.Log.Warn("event append failed", "event_id", event.EventID, "error", err)
		}
	}
}

// Refresh re-runs a previously executed invocation, bypassing and then
// repopulating the cache. The invocation gets a fresh event; the stale cache
// entry is evicted before the run so concurrent readers cannot be served the
// old result while the new one computes.
func (e *Engine) Refresh(ctx context.Context, inv *command.Invocation) (*command.Result, error) {
	if fingerprint := inv.Fingerprint(); fingerprint != "" {
		if err := e.app.Cache.Evict(ctx, fingerprint); err != nil {
			e.app.Log.Warn("cache evict failed", "cache_id", fingerprint, "error", err)
		}
	}
	inv.ResetEvent()
	return e.Execute(ctx, inv)
}

// WaitForEvent polls the event log until the event reaches COMPLETE or ctx
// expires. Used by front ends that queued a background command and want the
// real result.
func (e *Engine) WaitForEvent(ctx context.Context, eventID string, poll time.Duration) (*eventlog.Event, error) {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		events, err := e.app.Events.Query(ctx, eventlog.Filter{})
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if ev.EventID == eventID && ev.Complete() {
				return ev, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
