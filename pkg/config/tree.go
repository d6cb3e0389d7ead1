package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Kind is the value type a configuration rule accepts.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindString
	KindPath
	KindList
)

// Class is a rule's visibility in listings. Secret values are suppressed
// wherever the tree is printed.
type Class int

const (
	ClassPublic Class = iota
	ClassCritical
	ClassSecret
)

// Rule describes one variable in the configuration tree: its documentation,
// type, default and visibility.
type Rule struct {
	Doc     string
	Kind    Kind
	Default any
	Class   Class
}

// ErrUnknownVariable is returned for paths no rule covers.
var ErrUnknownVariable = errors.New("config: unknown variable")

// ErrLockdown is returned for mutations while sys.lockdown is on.
var ErrLockdown = errors.New("config: in lockdown, doing nothing")

// Rules is the full variable table. Sections are implied by dotted paths.
func Rules() map[string]Rule {
	return map[string]Rule{
		"sys.lockdown":          {Doc: "Demo mode, disallow config changes", Kind: KindBool, Default: false, Class: ClassCritical},
		"sys.debug":             {Doc: "Debugging flags, e.g. nocache", Kind: KindString, Default: "", Class: ClassCritical},
		"sys.obfuscate_index":   {Doc: "Key used to scramble search index terms", Kind: KindString, Default: "", Class: ClassSecret},
		"sys.mailbox":           {Doc: "Mailboxes we index", Kind: KindList, Default: []string{}},
		"sys.path.events":       {Doc: "Location of the event log", Kind: KindPath, Default: "events"},
		"sys.history":           {Doc: "Command history length", Kind: KindInt, Default: 100},
		"prefs.num_results":     {Doc: "Search results per page", Kind: KindInt, Default: 20},
		"prefs.default_order":   {Doc: "Default sort order", Kind: KindString, Default: "rev-date"},
		"prefs.output_format":   {Doc: "Default render format", Kind: KindString, Default: "text"},
		"prefs.rescan_interval": {Doc: "Seconds between mailbox rescans, 0 disables", Kind: KindInt, Default: 0},
		"prefs.cache_ttl":       {Doc: "Seconds search results stay cached", Kind: KindInt, Default: 900},
	}
}

// Tree is the mutable, rule-validated configuration tree. Values not
// explicitly set read as their rule's default.
type Tree struct {
	mu     sync.RWMutex
	rules  map[string]Rule
	values map[string]any
}

// NewTree builds a tree over the standard rule table.
func NewTree() *Tree {
	return &Tree{rules: Rules(), values: map[string]any{}}
}

// Rule returns the rule for path.
func (t *Tree) Rule(path string) (Rule, bool) {
	r, ok := t.rules[path]
	return r, ok
}

// Paths returns every rule path, sorted.
func (t *Tree) Paths() []string {
	out := make([]string, 0, len(t.rules))
	for p := range t.rules {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Walk returns the effective value at path.
func (t *Tree) Walk(path string) (any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.walkLocked(path)
}

func (t *Tree) walkLocked(path string) (any, error) {
	rule, ok := t.rules[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, path)
	}
	if v, ok := t.values[path]; ok {
		return v, nil
	}
	return rule.Default, nil
}

// GetInt returns the value at path as an int.
func (t *Tree) GetInt(path string) (int, error) {
	v, err := t.Walk(path)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int)
	if !ok {
		return 0, fmt.Errorf("config: %s is not an integer", path)
	}
	return n, nil
}

// GetBool returns the value at path as a bool.
func (t *Tree) GetBool(path string) (bool, error) {
	v, err := t.Walk(path)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("config: %s is not a boolean", path)
	}
	return b, nil
}

// GetList returns the value at path as a string list.
func (t *Tree) GetList(path string) ([]string, error) {
	v, err := t.Walk(path)
	if err != nil {
		return nil, err
	}
	vs, ok := v.([]string)
	if !ok {
		return nil, fmt.Errorf("config: %s is not a list", path)
	}
	return vs, nil
}

// GetString returns the canonical string form of the value at path: booleans
// as "true"/"false", integers in decimal, lists comma-joined.
func (t *Tree) GetString(path string) (string, error) {
	v, err := t.Walk(path)
	if err != nil {
		return "", err
	}
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case string:
		return x, nil
	case []string:
		return strings.Join(x, ", "), nil
	default:
		return fmt.Sprint(x), nil
	}
}

// Set parses raw according to the rule at path and stores it. Mutations are
// refused while sys.lockdown is on, including unsetting lockdown itself.
func (t *Tree) Set(path, raw string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkLockdownLocked(); err != nil {
		return err
	}
	v, err := t.coerce(path, raw)
	if err != nil {
		return err
	}
	t.values[path] = v
	return nil
}

// Unset resets path to its default.
func (t *Tree) Unset(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkLockdownLocked(); err != nil {
		return err
	}
	if _, ok := t.rules[path]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVariable, path)
	}
	delete(t.values, path)
	return nil
}

// Append adds raw to the list at path.
func (t *Tree) Append(path, raw string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkLockdownLocked(); err != nil {
		return err
	}
	rule, ok := t.rules[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVariable, path)
	}
	if rule.Kind != KindList {
		return fmt.Errorf("config: %s is not a list", path)
	}
	cur, _ := t.walkLocked(path)
	vs, _ := cur.([]string)
	t.values[path] = append(append([]string{}, vs...), raw)
	return nil
}

func (t *Tree) checkLockdownLocked() error {
	v, err := t.walkLocked("sys.lockdown")
	if err == nil {
		if locked, ok := v.(bool); ok && locked {
			return ErrLockdown
		}
	}
	return nil
}

func (t *Tree) coerce(path, raw string) (any, error) {
	rule, ok := t.rules[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, path)
	}
	switch rule.Kind {
	case KindBool:
		b, err := strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			return nil, fmt.Errorf("config: %s wants a boolean, got %q", path, raw)
		}
		return b, nil
	case KindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("config: %s wants an integer, got %q", path, raw)
		}
		return n, nil
	case KindString, KindPath:
		return raw, nil
	case KindList:
		if raw == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	default:
		return nil, fmt.Errorf("config: %s has unknown kind", path)
	}
}

// SaveFile writes the explicitly-set values to path as nested YAML.
func (t *Tree) SaveFile(path string) error {
	t.mu.RLock()
	nested := map[string]any{}
	for p, v := range t.values {
		insertNested(nested, strings.Split(p, "."), v)
	}
	t.mu.RUnlock()

	raw, err := yaml.Marshal(nested)
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// LoadFile reads nested YAML written by SaveFile and applies it. A missing
// file leaves the tree at defaults. Values for unknown paths are rejected.
func (t *Tree) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	var nested map[string]any
	if err := yaml.Unmarshal(raw, &nested); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flat := map[string]any{}
	flattenNested("", nested, flat)

	t.mu.Lock()
	defer t.mu.Unlock()
	for p, v := range flat {
		rule, ok := t.rules[p]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownVariable, p)
		}
		coerced, err := coerceYAML(rule, p, v)
		if err != nil {
			return err
		}
		t.values[p] = coerced
	}
	return nil
}

func coerceYAML(rule Rule, path string, v any) (any, error) {
	switch rule.Kind {
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindInt:
		if n, ok := v.(int); ok {
			return n, nil
		}
	case KindString, KindPath:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindList:
		if items, ok := v.([]any); ok {
			out := make([]string, 0, len(items))
			for _, item := range items {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("load config: %s has a non-string item", path)
				}
				out = append(out, s)
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("load config: %s has the wrong type", path)
}

func insertNested(dst map[string]any, parts []string, v any) {
	if len(parts) == 1 {
		dst[parts[0]] = v
		return
	}
	child, ok := dst[parts[0]].(map[string]any)
	if !ok {
		child = map[string]any{}
		dst[parts[0]] = child
	}
	insertNested(child, parts[1:], v)
}

func flattenNested(prefix string, src map[string]any, dst map[string]any) {
	for k, v := range src {
		p := k
		if prefix != "" {
			p = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flattenNested(p, child, dst)
			continue
		}
		dst[p] = v
	}
}
