// Package command defines the static command catalog entries, the invocation
// object every execution passes through, and the render-format-agnostic
// result container.
package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Order positions a command within the help catalog.
type Order struct {
	Group string
	Rank  int
}

// Outcome is what a command body hands back on success. Override short
// circuits result construction and returns an existing Result as-is (used by
// the cache-inspection command).
type Outcome struct {
	Message  string
	Payload  Payload
	Override *Result
}

// RunFunc is a command body. Returning a *UsageError or a ControlFlowSignal
// propagates to the caller after lifecycle bookkeeping; any other error is
// converted into an error-status Result by the engine. Bodies must be safe to
// re-run: the cache layer does not guarantee single-flight execution.
type RunFunc func(ctx context.Context, inv *Invocation) (*Outcome, error)

// Definition is one entry in the closed command catalog. Definitions are
// built once at startup and treated as immutable afterwards.
type Definition struct {
	ShortCode  string // single-letter console code, e.g. "S"
	Name       string // canonical console name, e.g. "set"
	APIPath    string // API endpoint path, e.g. "settings/set"
	Synopsis   string // positional argument help
	APIVersion string // semver; gated by the registry
	Doc        string
	Order      Order

	CacheTTL       time.Duration // <= 0 means not cacheable
	ConfigRequired bool
	IsUserActivity bool
	LogNothing     bool
	SkipArgLogging bool
	RawArgs        bool // keep the raw argument string as a single argument
	ChangesContext bool

	HTTPMethods []string
	QueryVars   map[string]string
	PostVars    map[string]string

	// DataSchema optionally constrains keyword data (JSON Schema draft
	// 2020-12). Compiled by Compile.
	DataSchema string

	Run               RunFunc
	CacheRequirements func(*Result) []string

	schema *jsonschema.Schema
}

// Cacheable reports whether results of this command may be cached.
func (d *Definition) Cacheable() bool { return d.CacheTTL > 0 }

// CanonicalName returns the name used for events and logging.
func (d *Definition) CanonicalName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.APIPath
}

// Compile validates the definition and compiles its data schema. The
// registry calls this once per definition at startup.
func (d *Definition) Compile() error {
	if d.CanonicalName() == "" {
		return fmt.Errorf("definition has neither name nor API path")
	}
	if d.Run == nil {
		return fmt.Errorf("%s: definition has no body", d.CanonicalName())
	}
	if d.Cacheable() && d.CacheRequirements == nil {
		return fmt.Errorf("%s: cacheable commands must declare cache requirements", d.CanonicalName())
	}
	if d.APIVersion != "" {
		if _, err := semver.NewVersion(d.APIVersion); err != nil {
			return fmt.Errorf("%s: bad API version %q: %w", d.CanonicalName(), d.APIVersion, err)
		}
	}
	if d.DataSchema == "" {
		return nil
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://maildeck.schemas.local/commands/%s.schema.json",
		strings.ReplaceAll(d.CanonicalName(), "/", "-"))
	if err := c.AddResource(url, strings.NewReader(d.DataSchema)); err != nil {
		return fmt.Errorf("%s: schema load failed: %w", d.CanonicalName(), err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("%s: schema compile failed: %w", d.CanonicalName(), err)
	}
	d.schema = compiled
	return nil
}

// ValidateData checks keyword data against the compiled schema. A violation
// is a UsageError.
func (d *Definition) ValidateData(data map[string][]string) error {
	if d.schema == nil || len(data) == 0 {
		return nil
	}
	doc := make(map[string]any, len(data))
	for k, vs := range data {
		if len(vs) == 1 {
			doc[k] = vs[0]
		} else {
			multi := make([]any, len(vs))
			for i, v := range vs {
				multi[i] = v
			}
			doc[k] = multi
		}
	}
	if err := d.schema.Validate(doc); err != nil {
		return &UsageError{
			Message: fmt.Sprintf("invalid arguments for %s", d.CanonicalName()),
			Info:    map[string]any{"validation": err.Error()},
		}
	}
	return nil
}
