// Package registry acts as the source of truth for the installed command
// catalog: registration, name resolution for the console and API front ends,
// and the API version gate.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/maildeck/maildeck/pkg/command"
)

var (
	ErrNotFound  = errors.New("command not found")
	ErrDuplicate = errors.New("command already registered")

	// ErrUnsupportedVersion rejects definitions outside the supported API
	// version range at registration time.
	ErrUnsupportedVersion = errors.New("unsupported API version")
)

// AmbiguousError reports console input matching more than one command.
// Resolution fails closed; the caller must spell out which one it meant.
type AmbiguousError struct {
	Input   string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%q is ambiguous: %s", e.Input, strings.Join(e.Matches, ", "))
}

// TagResolver maps a free-form name to a tag slug for the search fallback.
type TagResolver func(name string) (slug string, ok bool)

// Resolution is the outcome of resolving console input: the definition to
// run plus any arguments the resolution itself prepends (the tag fallback
// rewrites unknown names into a search).
type Resolution struct {
	Def         *command.Definition
	PrependArgs []string
}

// Registry is a thread-safe command catalog. Definitions are compiled on
// registration and immutable afterwards.
type Registry struct {
	mu        sync.RWMutex
	byShort   map[string]*command.Definition
	byName    map[string]*command.Definition
	byPath    map[string]*command.Definition
	ordered   []*command.Definition
	supported *semver.Constraints

	tags       TagResolver
	searchName string
}

// New creates a registry gated to API versions satisfying supported
// (e.g. "^1.0.0"). An empty constraint admits everything.
func New(supported string) (*Registry, error) {
	r := &Registry{
		byShort:    map[string]*command.Definition{},
		byName:     map[string]*command.Definition{},
		byPath:     map[string]*command.Definition{},
		searchName: "search",
	}
	if supported != "" {
		c, err := semver.NewConstraint(supported)
		if err != nil {
			return nil, fmt.Errorf("registry: bad version constraint %q: %w", supported, err)
		}
		r.supported = c
	}
	return r, nil
}

// SetTagResolver installs the fallback used when console input names no
// command but does name a tag.
func (r *Registry) SetTagResolver(tags TagResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = tags
}

// Register compiles def and adds it to the catalog. Short code, name and
// API path must each be unique.
func (r *Registry) Register(def *command.Definition) error {
	if err := def.Compile(); err != nil {
		return err
	}
	if r.supported != nil && def.APIVersion != "" {
		v, err := semver.NewVersion(def.APIVersion)
		if err != nil {
			return fmt.Errorf("%s: %w", def.CanonicalName(), err)
		}
		if !r.supported.Check(v) {
			return fmt.Errorf("%s: %w: %s", def.CanonicalName(), ErrUnsupportedVersion, def.APIVersion)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if def.ShortCode != "" {
		if _, taken := r.byShort[def.ShortCode]; taken {
			return fmt.Errorf("%s: %w: %q", def.CanonicalName(), ErrDuplicate, def.ShortCode)
		}
	}
	if def.Name != "" {
		if _, taken := r.byName[def.Name]; taken {
			return fmt.Errorf("%s: %w: %q", def.CanonicalName(), ErrDuplicate, def.Name)
		}
	}
	if def.APIPath != "" {
		if _, taken := r.byPath[def.APIPath]; taken {
			return fmt.Errorf("%s: %w: %q", def.CanonicalName(), ErrDuplicate, def.APIPath)
		}
	}
	if def.ShortCode != "" {
		r.byShort[def.ShortCode] = def
	}
	if def.Name != "" {
		r.byName[def.Name] = def
	}
	if def.APIPath != "" {
		r.byPath[def.APIPath] = def
	}
	r.ordered = append(r.ordered, def)
	return nil
}

// Get returns the definition with the exact name, short code or API path.
func (r *Registry) Get(input string) (*command.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if def := r.exactLocked(input); def != nil {
		return def, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, input)
}

func (r *Registry) exactLocked(input string) *command.Definition {
	if def, ok := r.byName[input]; ok {
		return def
	}
	if def, ok := r.byShort[input]; ok {
		return def
	}
	if def, ok := r.byPath[input]; ok {
		return def
	}
	return nil
}

// Resolve maps console input to a runnable definition. Exact matches win;
// otherwise a unique name prefix matches, several prefix matches fail
// closed, and a definitively unknown name falls back to a tag search when
// the resolver knows the tag.
func (r *Registry) Resolve(input string) (*Resolution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if def := r.exactLocked(input); def != nil {
		return &Resolution{Def: def}, nil
	}

	var matches []string
	for name := range r.byName {
		if strings.HasPrefix(name, input) {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)
	switch len(matches) {
	case 1:
		return &Resolution{Def: r.byName[matches[0]]}, nil
	case 0:
		// Definitive miss. Try the tag fallback.
	default:
		return nil, &AmbiguousError{Input: input, Matches: matches}
	}

	if r.tags != nil {
		if slug, ok := r.tags(input); ok {
			if search, ok := r.byName[r.searchName]; ok {
				return &Resolution{Def: search, PrependArgs: []string{"in:" + slug}}, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, input)
}

// List returns every registered definition sorted by catalog order.
func (r *Registry) List() []*command.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := append([]*command.Definition{}, r.ordered...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order.Group != out[j].Order.Group {
			return out[i].Order.Group < out[j].Order.Group
		}
		if out[i].Order.Rank != out[j].Order.Rank {
			return out[i].Order.Rank < out[j].Order.Rank
		}
		return out[i].CanonicalName() < out[j].CanonicalName()
	})
	return out
}
