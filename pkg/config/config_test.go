package config

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MAILDECK_WORKDIR", "/tmp/deck")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("MAILDECK_CACHE", "")
	t.Setenv("MAILDECK_EVENT_STORE", "")

	s := Load()
	if s.Workdir != "/tmp/deck" {
		t.Fatalf("workdir = %q", s.Workdir)
	}
	if s.LogLevel != "INFO" || s.CacheBackend != "memory" || s.EventStore != "sqlite" {
		t.Fatalf("unexpected defaults: %+v", s)
	}
}

func TestTreeSetGetRoundTrip(t *testing.T) {
	tree := NewTree()

	if err := tree.Set("prefs.num_results", "50"); err != nil {
		t.Fatal(err)
	}
	got, err := tree.GetString("prefs.num_results")
	if err != nil {
		t.Fatal(err)
	}
	if got != "50" {
		t.Fatalf("GetString = %q, want \"50\"", got)
	}
	n, err := tree.GetInt("prefs.num_results")
	if err != nil || n != 50 {
		t.Fatalf("GetInt = %d, %v", n, err)
	}
}

func TestTreeDefaults(t *testing.T) {
	tree := NewTree()
	n, err := tree.GetInt("prefs.num_results")
	if err != nil || n != 20 {
		t.Fatalf("default num_results = %d, %v", n, err)
	}
}

func TestTreeRejectsBadValues(t *testing.T) {
	tree := NewTree()
	if err := tree.Set("prefs.num_results", "fifty"); err == nil {
		t.Fatal("non-integer should be rejected")
	}
	if err := tree.Set("no.such.path", "x"); !errors.Is(err, ErrUnknownVariable) {
		t.Fatalf("got %v", err)
	}
}

func TestTreeUnsetRestoresDefault(t *testing.T) {
	tree := NewTree()
	tree.Set("prefs.default_order", "date")
	if err := tree.Unset("prefs.default_order"); err != nil {
		t.Fatal(err)
	}
	got, _ := tree.GetString("prefs.default_order")
	if got != "rev-date" {
		t.Fatalf("unset should restore default, got %q", got)
	}
}

func TestTreeAppendList(t *testing.T) {
	tree := NewTree()
	tree.Append("sys.mailbox", "/var/mail/bre")
	tree.Append("sys.mailbox", "~/mail/archive")
	vs, err := tree.GetList("sys.mailbox")
	if err != nil {
		t.Fatal(err)
	}
	if len(vs) != 2 || vs[0] != "/var/mail/bre" {
		t.Fatalf("got %v", vs)
	}

	if err := tree.Append("prefs.num_results", "x"); err == nil {
		t.Fatal("append to non-list should fail")
	}
}

func TestTreeLockdown(t *testing.T) {
	tree := NewTree()
	if err := tree.Set("sys.lockdown", "true"); err != nil {
		t.Fatal(err)
	}
	if err := tree.Set("prefs.num_results", "50"); !errors.Is(err, ErrLockdown) {
		t.Fatalf("got %v", err)
	}
	if err := tree.Unset("prefs.num_results"); !errors.Is(err, ErrLockdown) {
		t.Fatalf("got %v", err)
	}
	if err := tree.Append("sys.mailbox", "/x"); !errors.Is(err, ErrLockdown) {
		t.Fatalf("got %v", err)
	}
	// Reads still work.
	if _, err := tree.GetInt("prefs.num_results"); err != nil {
		t.Fatal(err)
	}
}

func TestRuleClasses(t *testing.T) {
	tree := NewTree()
	if r, _ := tree.Rule("sys.obfuscate_index"); r.Class != ClassSecret {
		t.Fatalf("obfuscate_index class = %v", r.Class)
	}
	if r, _ := tree.Rule("sys.lockdown"); r.Class != ClassCritical {
		t.Fatalf("lockdown class = %v", r.Class)
	}
	if r, _ := tree.Rule("prefs.num_results"); r.Class != ClassPublic {
		t.Fatalf("num_results class = %v", r.Class)
	}
}

func TestTreeSaveLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maildeck.yaml")

	tree := NewTree()
	tree.Set("prefs.num_results", "50")
	tree.Set("sys.debug", "cache")
	tree.Append("sys.mailbox", "/var/mail/bre")
	if err := tree.SaveFile(path); err != nil {
		t.Fatal(err)
	}

	fresh := NewTree()
	if err := fresh.LoadFile(path); err != nil {
		t.Fatal(err)
	}
	if got, _ := fresh.GetString("prefs.num_results"); got != "50" {
		t.Fatalf("num_results = %q", got)
	}
	if got, _ := fresh.GetString("sys.debug"); got != "cache" {
		t.Fatalf("debug = %q", got)
	}
	vs, _ := fresh.GetList("sys.mailbox")
	if len(vs) != 1 || vs[0] != "/var/mail/bre" {
		t.Fatalf("mailboxes = %v", vs)
	}
}

func TestTreeLoadMissingFileIsFine(t *testing.T) {
	tree := NewTree()
	if err := tree.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatal(err)
	}
}
