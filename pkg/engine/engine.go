// Package engine drives command invocations through their lifecycle: cache
// lookup, argument validation already done at construction, body execution
// with panic containment, error conversion, event completion and result
// caching. The engine is the only code that moves an invocation's event to
// its terminal state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/maildeck/maildeck/pkg/appcontext"
	"github.com/maildeck/maildeck/pkg/cache"
	"github.com/maildeck/maildeck/pkg/command"
	"github.com/maildeck/maildeck/pkg/eventlog"
	"github.com/maildeck/maildeck/pkg/observability"
)

// BackgroundQueue is the worker queue async invocations run on.
const BackgroundQueue = "commands"

// Engine executes invocations against an application context.
type Engine struct {
	app *appcontext.Context
	obs *observability.Provider
}

// New builds an engine. obs may be a disabled provider but not nil.
func New(app *appcontext.Context, obs *observability.Provider) *Engine {
	return &Engine{app: app, obs: obs}
}

// Execute runs inv to completion and returns its result.
//
// The error return carries only usage errors and control-flow signals; a
// control-flow signal is returned alongside a SUCCESS result. Every other
// failure, panics included, is folded into an ERROR-status result with a nil
// error. Whichever way the body exits, the invocation's event reaches
// COMPLETE exactly once and is appended to the log.
func (e *Engine) Execute(ctx context.Context, inv *command.Invocation) (*command.Result, error) {
	def := inv.Definition()
	name := def.CanonicalName()
	log := e.app.Log.With("component", "engine", "command", name)

	if def.IsUserActivity {
		e.app.State.BeginUserActivity()
		defer e.app.State.EndUserActivity()
	}
	if inv.RenderMode() == "" {
		inv.SetRenderMode(e.app.DefaultRenderMode())
	}

	if e.app.State.Quitting() {
		return e.refuse(ctx, inv, "shutting down"), nil
	}
	if def.ConfigRequired {
		if err := e.app.EnsureReady(ctx); err != nil {
			log.Warn("context not ready", "error", err)
			return e.refuse(ctx, inv, fmt.Sprintf("context not ready: %s", err)), nil
		}
	}

	fingerprint := inv.Fingerprint()
	if e.cachingDisabled() {
		fingerprint = ""
	}
	if fingerprint != "" {
		if res, err := e.app.Cache.Get(ctx, fingerprint); err == nil {
			res.SetRenderMode(inv.RenderMode())
			log.Debug("cache hit", "cache_id", fingerprint)
			e.completeEvent(ctx, inv, res, nil)
			return res, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			log.Warn("cache lookup failed", "cache_id", fingerprint, "error", err)
		}
	}

	ctx, done := e.obs.TrackCommand(ctx, name,
		attribute.String("maildeck.command", name))

	start := time.Now()
	event := inv.Event()
	event.SetFlag(eventlog.FlagRunning)

	outcome, runErr := e.runBody(ctx, log, inv)
	elapsed := time.Since(start)

	res, retErr := e.settle(inv, outcome, runErr, elapsed, fingerprint)
	e.completeEvent(ctx, inv, res, retErr)
	done(retErr)

	if res == nil {
		return nil, retErr
	}

	if fingerprint != "" && res.OK() && runErr == nil {
		requires := def.CacheRequirements(res)
		if err := e.app.Cache.Put(ctx, fingerprint, def.CacheTTL, requires, res); err != nil {
			log.Warn("cache store failed", "cache_id", fingerprint, "error", err)
		}
	}
	return res, retErr
}

// refuse produces a completed ERROR result without running the body, for
// invocations turned away before execution starts.
func (e *Engine) refuse(ctx context.Context, inv *command.Invocation, why string) *command.Result {
	res := e.newResult(inv, 0, "")
	res.Status = command.StatusError
	res.Message = fmt.Sprintf("%s: %s", inv.Definition().CanonicalName(), why)
	res.ErrorInfo = map[string]any{"error": why}
	e.completeEvent(ctx, inv, res, nil)
	return res
}

// cachingDisabled reports whether the nocache debug flag turns the result
// cache off for this process.
func (e *Engine) cachingDisabled() bool {
	debug, err := e.app.Config.GetString("sys.debug")
	if err != nil {
		return false
	}
	return strings.Contains(debug, "nocache")
}

// runBody invokes the command body with panic containment.
func (e *Engine) runBody(ctx context.Context, log *slog.Logger, inv *command.Invocation) (outcome *command.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("command panicked", "panic", r, "stack", string(debug.Stack()))
			outcome = nil
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return inv.Definition().Run(ctx, inv)
}

// settle converts the body's outcome into a result per the error taxonomy.
func (e *Engine) settle(inv *command.Invocation, outcome *command.Outcome, runErr error, elapsed time.Duration, fingerprint string) (*command.Result, error) {
	def := inv.Definition()

	if runErr != nil {
		if ue, ok := command.AsUsageError(runErr); ok {
			return nil, ue
		}
		if command.IsControlFlow(runErr) {
			res := e.newResult(inv, elapsed, fingerprint)
			res.Status = command.StatusSuccess
			if outcome != nil {
				res.Message = outcome.Message
				res.Payload = outcome.Payload
			}
			return res, runErr
		}
		res := e.newResult(inv, elapsed, fingerprint)
		res.Status = command.StatusError
		res.Message = runErr.Error()
		res.ErrorInfo = map[string]any{"error": runErr.Error()}
		return res, nil
	}

	if outcome != nil && outcome.Override != nil {
		return outcome.Override, nil
	}

	res := e.newResult(inv, elapsed, fingerprint)
	res.Status = command.StatusSuccess
	if outcome != nil {
		res.Message = outcome.Message
		res.Payload = outcome.Payload
	}
	if res.Message == "" {
		res.Message = fmt.Sprintf("%s: done", def.CanonicalName())
	}
	return res, nil
}

func (e *Engine) newResult(inv *command.Invocation, elapsed time.Duration, fingerprint string) *command.Result {
	def := inv.Definition()
	res := &command.Result{
		Command: def.CanonicalName(),
		Doc:     def.Doc,
		APIPath: def.APIPath,
		Elapsed: elapsed,
		CacheID: fingerprint,
	}
	if !def.LogNothing {
		res.EventID = inv.Event().EventID
	}
	res.SetRenderMode(inv.RenderMode())
	return res
}

// completeEvent finishes the invocation's event and hands it to the log.
func (e *Engine) completeEvent(ctx context.Context, inv *command.Invocation, res *command.Result, retErr error) {
	def := inv.Definition()
	event := inv.Event()

	switch {
	case res != nil && res.Status == command.StatusError:
		event.Message = fmt.Sprintf("%s: failed", def.CanonicalName())
	case retErr != nil && res == nil:
		event.Message = fmt.Sprintf("%s: rejected", def.CanonicalName())
	default:
		event.Message = fmt.Sprintf("%s: completed", def.CanonicalName())
	}
	if res != nil {
		event.ElapsedMS = res.Elapsed.Milliseconds()
		event.PrivateData["result"] = res.AsDict()
	}
	event.SetFlag(eventlog.FlagComplete)

	if def.LogNothing {
		return
	}
	if err := e.app.Events.Append(ctx, event); err != nil {
		e.app.Log.Warn("event append failed", "event_id", event.EventID, "error", err)
	}
}
