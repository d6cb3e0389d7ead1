package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunScriptedSession(t *testing.T) {
	t.Setenv("MAILDECK_EVENT_STORE", "memory")
	t.Setenv("MAILDECK_CACHE", "memory")
	t.Setenv("LOG_LEVEL", "ERROR")

	stdin := strings.NewReader("help\nset prefs.num_results = 50\nprint prefs.num_results\nquit\n")
	var stdout, stderr bytes.Buffer

	code := Run([]string{"-workdir", t.TempDir()}, stdin, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "prefs.num_results = 50") {
		t.Fatalf("session output missing config echo:\n%s", out)
	}
	if !strings.Contains(out, "Shutting down") {
		t.Fatalf("quit should print the shutdown message:\n%s", out)
	}
}

func TestRunAbortExitsNonZero(t *testing.T) {
	t.Setenv("MAILDECK_EVENT_STORE", "memory")
	t.Setenv("MAILDECK_CACHE", "memory")
	t.Setenv("LOG_LEVEL", "ERROR")

	stdin := strings.NewReader("quit/abort\n")
	var stdout, stderr bytes.Buffer
	code := Run([]string{"-workdir", t.TempDir()}, stdin, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("abort should exit 1, got %d", code)
	}
}

func TestRunUnknownCommandKeepsSessionAlive(t *testing.T) {
	t.Setenv("MAILDECK_EVENT_STORE", "memory")
	t.Setenv("MAILDECK_CACHE", "memory")
	t.Setenv("LOG_LEVEL", "ERROR")

	stdin := strings.NewReader("frobnicate\nquit\n")
	var stdout, stderr bytes.Buffer
	code := Run([]string{"-workdir", t.TempDir()}, stdin, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "command not found") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}
