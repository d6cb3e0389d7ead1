package command

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/maildeck/maildeck/pkg/eventlog"
)

func testDefinition() *Definition {
	d := &Definition{
		ShortCode:  "s",
		Name:       "search",
		APIPath:    "search",
		APIVersion: "1.0.0",
		CacheTTL:   time.Minute,
		Run: func(ctx context.Context, inv *Invocation) (*Outcome, error) {
			return &Outcome{Message: "ok", Payload: BoolPayload(true)}, nil
		},
		CacheRequirements: func(*Result) []string { return []string{"index-changed"} },
	}
	if err := d.Compile(); err != nil {
		panic(err)
	}
	return d
}

func TestSplitArgs(t *testing.T) {
	cases := []struct {
		raw  string
		want []string
	}{
		{`from:bre subject:"hello world"`, []string{"from:bre", "subject:hello world"}},
		{`a  b	c`, []string{"a", "b", "c"}},
		{`'single quoted'`, []string{"single quoted"}},
		{`esc\ aped`, []string{"esc aped"}},
		{``, nil},
	}
	for _, tc := range cases {
		got, err := splitArgs(tc.raw)
		if err != nil {
			t.Fatalf("splitArgs(%q): %v", tc.raw, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("splitArgs(%q) = %v, want %v", tc.raw, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("splitArgs(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		}
	}
}

func TestSplitArgsUnterminatedQuote(t *testing.T) {
	_, err := splitArgs(`subject:"dangling`)
	if err == nil {
		t.Fatal("expected usage error for unterminated quote")
	}
	if _, ok := AsUsageError(err); !ok {
		t.Fatalf("expected UsageError, got %T", err)
	}
}

func TestInvocationOwnsOneIncompleteEvent(t *testing.T) {
	inv, err := New(testDefinition(), "from:bre", nil)
	if err != nil {
		t.Fatal(err)
	}
	e := inv.Event()
	if e == nil || e.Flags != eventlog.FlagIncomplete {
		t.Fatalf("invocation should own a fresh incomplete event, got %+v", e)
	}
	if e.Source != "search" {
		t.Fatalf("event source should be the command name, got %q", e.Source)
	}
}

func TestInvocationAppendsDataArg(t *testing.T) {
	inv, err := NewWithArgs(testDefinition(), []string{"a"}, map[string][]string{"arg": {"b", "c"}})
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(inv.Args(), " "); got != "a b c" {
		t.Fatalf("data[arg] should extend positional args, got %q", got)
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	def := testDefinition()
	a, _ := NewWithArgs(def, []string{"from:bre"}, map[string][]string{"q": {"x"}, "n": {"20"}})
	b, _ := NewWithArgs(def, []string{"from:bre"}, map[string][]string{"n": {"20"}, "q": {"x"}})
	if a.Fingerprint() == "" {
		t.Fatal("cacheable command should fingerprint")
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("fingerprint must not depend on keyword ordering")
	}
}

func TestFingerprintDistinguishesArgs(t *testing.T) {
	def := testDefinition()
	a, _ := NewWithArgs(def, []string{"from:bre"}, nil)
	b, _ := NewWithArgs(def, []string{"from:smari"}, nil)
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatal("different arguments must fingerprint differently")
	}
}

func TestFingerprintCSSSafe(t *testing.T) {
	def := testDefinition()
	def.APIPath = "settings/set"
	inv, _ := NewWithArgs(def, []string{"prefs.num_results"}, nil)
	fp := inv.Fingerprint()
	if strings.ContainsAny(fp, "/.") {
		t.Fatalf("fingerprint must be CSS-class safe, got %q", fp)
	}
}

func TestFingerprintEmptyForUncacheable(t *testing.T) {
	def := testDefinition()
	def.CacheTTL = 0
	inv, _ := NewWithArgs(def, []string{"x"}, nil)
	if inv.Fingerprint() != "" {
		t.Fatal("uncacheable command should not fingerprint")
	}
}

func TestSanitizeSuppressesPasswords(t *testing.T) {
	inv, _ := NewWithArgs(testDefinition(), nil,
		map[string][]string{"password": {"hunter2"}, "user": {"bre"}})
	sqa := inv.StateAsQueryArgs()
	got := sqa["password"].([]string)
	if got[0] != "(SUPPRESSED)" {
		t.Fatalf("password values must be suppressed, got %q", got[0])
	}
	if sqa["user"].([]string)[0] != "bre" {
		t.Fatal("non-secret values must pass through")
	}
}

func TestSanitizeTruncatesOnRuneBoundary(t *testing.T) {
	// A multibyte rune straddling the length cap must not be cut mid-rune.
	long := strings.Repeat("a", maxLoggedValueLen-1) + "世界"
	got := sanitizeValue("subject", long)
	if len(got) > maxLoggedValueLen {
		t.Fatalf("len = %d, cap is %d", len(got), maxLoggedValueLen)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated value is not valid UTF-8: %q", got[len(got)-4:])
	}
	if !strings.HasSuffix(got, "a") {
		t.Fatalf("straddling rune should be dropped whole, got suffix %q", got[len(got)-4:])
	}
}

func TestValidateDataSchema(t *testing.T) {
	def := testDefinition()
	def.DataSchema = `{
		"type": "object",
		"properties": {"n": {"type": "string", "pattern": "^[0-9]+$"}}
	}`
	if err := def.Compile(); err != nil {
		t.Fatal(err)
	}

	if _, err := NewWithArgs(def, nil, map[string][]string{"n": {"20"}}); err != nil {
		t.Fatalf("valid data rejected: %v", err)
	}
	_, err := NewWithArgs(def, nil, map[string][]string{"n": {"twenty"}})
	if err == nil {
		t.Fatal("schema violation should be rejected")
	}
	if _, ok := AsUsageError(err); !ok {
		t.Fatalf("schema violation should be a UsageError, got %T", err)
	}
}

func TestCompileRejectsBadVersion(t *testing.T) {
	def := testDefinition()
	def.APIVersion = "not-a-version"
	if err := def.Compile(); err == nil {
		t.Fatal("bad semver should fail compilation")
	}
}

func TestCompileRequiresCacheRequirements(t *testing.T) {
	def := testDefinition()
	def.CacheRequirements = nil
	if err := def.Compile(); err == nil {
		t.Fatal("cacheable command without requirements hook should fail compilation")
	}
}

func TestPayloadCodecRoundTrip(t *testing.T) {
	for _, p := range []Payload{
		BoolPayload(true),
		TextPayload("free text"),
		DataPayload(map[string]any{"ids": []any{"a", "b"}, "total": float64(2)}),
		{},
	} {
		raw, err := EncodePayload(p)
		if err != nil {
			t.Fatal(err)
		}
		back, err := DecodePayload(raw)
		if err != nil {
			t.Fatal(err)
		}
		if back.Kind() != p.Kind() {
			t.Fatalf("kind mismatch: %s vs %s", back.Kind(), p.Kind())
		}
	}
}

func TestControlFlowSignals(t *testing.T) {
	if !IsControlFlow(&RedirectSignal{URL: "/in/inbox/"}) {
		t.Fatal("redirect must be control flow")
	}
	if !IsControlFlow(&ShutdownSignal{}) {
		t.Fatal("shutdown must be control flow")
	}
	if IsControlFlow(Usagef("nope")) {
		t.Fatal("usage errors are not control flow")
	}
}
