package command

import (
	"strings"
	"unicode/utf8"
)

const maxLoggedValueLen = 1024

// sanitizeValue prepares a single argument value for logging and
// fingerprinting: password-like keys are suppressed, binary data is replaced
// with a marker, and long values are truncated.
func sanitizeValue(key, value string) string {
	if strings.HasPrefix(strings.ToLower(key), "pass") {
		return "(SUPPRESSED)"
	}
	if !utf8.ValidString(value) {
		return "(BINARY DATA)"
	}
	if len(value) > maxLoggedValueLen {
		cut := maxLoggedValueLen
		for cut > 0 && !utf8.RuneStart(value[cut]) {
			cut--
		}
		return value[:cut]
	}
	return value
}

// sanitizeArgs applies sanitizeValue to a positional argument list.
func sanitizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = sanitizeValue("", a)
	}
	return out
}

// sanitizeData applies sanitizeValue to keyword data.
func sanitizeData(data map[string][]string) map[string][]string {
	out := make(map[string][]string, len(data))
	for k, vs := range data {
		clean := make([]string, len(vs))
		for i, v := range vs {
			clean[i] = sanitizeValue(k, v)
		}
		out[k] = clean
	}
	return out
}
