package command

import (
	"fmt"

	"github.com/maildeck/maildeck/pkg/eventlog"
)

// Invocation is one concrete execution of a catalog command. Its arguments
// are immutable after construction; only the lifecycle fields (owned by the
// engine) change. Each invocation owns exactly one Event.
type Invocation struct {
	def  *Definition
	args []string
	data map[string][]string

	event      *eventlog.Event
	renderMode string
}

// New constructs an invocation from a raw console argument string. The
// string is shell-split unless the definition declares RawArgs; any extra
// "arg" keyword values are appended, mirroring the HTTP front-end calling
// convention.
func New(def *Definition, rawArg string, data map[string][]string) (*Invocation, error) {
	var args []string
	if rawArg != "" {
		if def.RawArgs {
			args = []string{rawArg}
		} else {
			split, err := splitArgs(rawArg)
			if err != nil {
				return nil, err
			}
			args = split
		}
	}
	return NewWithArgs(def, args, data)
}

// NewWithArgs constructs an invocation from a pre-split argument list.
func NewWithArgs(def *Definition, args []string, data map[string][]string) (*Invocation, error) {
	if data == nil {
		data = map[string][]string{}
	}
	if extra, ok := data["arg"]; ok {
		args = append(append([]string{}, args...), extra...)
	}
	if err := def.ValidateData(data); err != nil {
		return nil, err
	}

	inv := &Invocation{
		def:  def,
		args: args,
		data: data,
	}
	inv.event = inv.newEvent()
	return inv, nil
}

func (inv *Invocation) newEvent() *eventlog.Event {
	private := map[string]any{}
	if !inv.def.SkipArgLogging {
		if len(inv.args) > 0 {
			private["args"] = sanitizeArgs(inv.args)
		}
		if len(inv.data) > 0 {
			private["data"] = sanitizeData(inv.data)
		}
	}
	name := inv.def.CanonicalName()
	return eventlog.New(name, fmt.Sprintf("%s: Starting", name), private)
}

// ResetEvent discards the owned event and creates a fresh one. Used by
// Refresh to restart the lifecycle with the original arguments.
func (inv *Invocation) ResetEvent() {
	inv.event = inv.newEvent()
}

func (inv *Invocation) Definition() *Definition { return inv.def }
func (inv *Invocation) Event() *eventlog.Event  { return inv.event }

// Args returns the positional arguments. Callers must not mutate the slice.
func (inv *Invocation) Args() []string { return inv.args }

// Data returns the keyword data. Callers must not mutate the map.
func (inv *Invocation) Data() map[string][]string { return inv.data }

// DataValue returns the first value for key, or "".
func (inv *Invocation) DataValue(key string) string {
	if vs := inv.data[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// RenderMode is the caller's preferred output format, carried so a cached
// result can be re-stamped with the current caller's rendering context.
func (inv *Invocation) RenderMode() string { return inv.renderMode }

// SetRenderMode records the caller's preferred output format.
func (inv *Invocation) SetRenderMode(mode string) { inv.renderMode = mode }

// StateAsQueryArgs returns the invocation's canonical query-argument
// representation: sanitized positional arguments under "arg" plus the
// sanitized keyword data. This is the sole input (with the API path) to the
// fingerprint, so it must depend only on the invocation itself.
func (inv *Invocation) StateAsQueryArgs() map[string]any {
	out := make(map[string]any, len(inv.data)+1)
	if len(inv.args) > 0 {
		out["arg"] = sanitizeArgs(inv.args)
	}
	for k, vs := range sanitizeData(inv.data) {
		if k == "arg" {
			continue // already folded into the positional arguments
		}
		out[k] = vs
	}
	return out
}
