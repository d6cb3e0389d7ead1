package command

import (
	"encoding/json"
	"fmt"
)

// PayloadKind discriminates the three payload shapes a command may return.
type PayloadKind string

const (
	PayloadNone PayloadKind = "none"
	PayloadBool PayloadKind = "bool"
	PayloadData PayloadKind = "data"
	PayloadText PayloadKind = "text"
)

// Payload is the render-format-agnostic body of a Result: a boolean, a
// structured mapping/list, or free text. It is immutable once constructed.
type Payload struct {
	kind PayloadKind
	b    bool
	data any
	text string
}

// BoolPayload wraps a boolean outcome.
func BoolPayload(v bool) Payload { return Payload{kind: PayloadBool, b: v} }

// DataPayload wraps structured data (a map or a slice). The caller must not
// mutate v after handing it over.
func DataPayload(v any) Payload { return Payload{kind: PayloadData, data: v} }

// TextPayload wraps free text.
func TextPayload(s string) Payload { return Payload{kind: PayloadText, text: s} }

// Kind reports the payload shape. The zero Payload is PayloadNone.
func (p Payload) Kind() PayloadKind {
	if p.kind == "" {
		return PayloadNone
	}
	return p.kind
}
func (p Payload) Bool() bool        { return p.b }
func (p Payload) Data() any         { return p.data }
func (p Payload) Text() string      { return p.text }

// Value returns the underlying value in its natural Go shape, or nil for an
// empty payload.
func (p Payload) Value() any {
	switch p.kind {
	case PayloadBool:
		return p.b
	case PayloadData:
		return p.data
	case PayloadText:
		return p.text
	default:
		return nil
	}
}

// payloadEnvelope is the wire form used when a Result crosses a process
// boundary (e.g. the Redis cache backend).
type payloadEnvelope struct {
	Kind  PayloadKind     `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

// EncodePayload serializes p for out-of-process storage.
func EncodePayload(p Payload) ([]byte, error) {
	env := payloadEnvelope{Kind: p.Kind()}
	if p.Kind() != PayloadNone {
		raw, err := json.Marshal(p.Value())
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		env.Value = raw
	}
	return json.Marshal(env)
}

// DecodePayload reverses EncodePayload.
func DecodePayload(b []byte) (Payload, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	switch env.Kind {
	case PayloadNone, "":
		return Payload{kind: PayloadNone}, nil
	case PayloadBool:
		var v bool
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return Payload{}, fmt.Errorf("decode bool payload: %w", err)
		}
		return BoolPayload(v), nil
	case PayloadText:
		var v string
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return Payload{}, fmt.Errorf("decode text payload: %w", err)
		}
		return TextPayload(v), nil
	case PayloadData:
		var v any
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return Payload{}, fmt.Errorf("decode data payload: %w", err)
		}
		return DataPayload(v), nil
	default:
		return Payload{}, fmt.Errorf("unknown payload kind %q", env.Kind)
	}
}
