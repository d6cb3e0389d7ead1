package command

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/gowebpki/jcs"
)

// Fingerprint derives the deterministic cache identity of the invocation:
// the RFC 8785 canonical form of its query arguments hashed together with
// the resolved endpoint path. Invocations with equal fingerprints are
// cache-equivalent. Returns "" for uncacheable commands.
//
// The result is sanitized so it can double as a CSS class id in templated
// output (no slashes or dots).
func (inv *Invocation) Fingerprint() string {
	if !inv.def.Cacheable() {
		return ""
	}

	raw, err := json.Marshal(inv.StateAsQueryArgs())
	if err != nil {
		return ""
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(canonical)

	endpoint := inv.def.APIPath
	if endpoint == "" {
		endpoint = inv.def.CanonicalName()
	}
	id := endpoint + "-" + hex.EncodeToString(sum[:])[:16]
	return strings.NewReplacer("/", "-", ".", "-").Replace(id)
}
