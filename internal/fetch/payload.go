package fetch

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

var errInvalidJSON = errors.New("invalid JSON")

// Payload is a validated JSON response body.
type Payload struct {
	raw []byte
}

// NewPayload validates b as a JSON document. b is retained, not copied.
func NewPayload(b []byte) (Payload, error) {
	if !gjson.ValidBytes(b) {
		return Payload{}, errInvalidJSON
	}
	return Payload{raw: b}, nil
}

// Get returns the value at a gjson path such as "data.#.Code".
func (p Payload) Get(path string) gjson.Result {
	return gjson.GetBytes(p.raw, path)
}

// Value returns the document as plain Go values (map[string]any, []any, ...).
func (p Payload) Value() any {
	return gjson.ParseBytes(p.raw).Value()
}

// IsObject reports whether the top-level value is a JSON object.
func (p Payload) IsObject() bool {
	return gjson.ParseBytes(p.raw).IsObject()
}

// Decode unmarshals the document into v.
func (p Payload) Decode(v any) error {
	return json.Unmarshal(p.raw, v)
}

// Raw returns the body bytes. Callers must not modify them.
func (p Payload) Raw() []byte { return p.raw }

// Len returns the body size in bytes.
func (p Payload) Len() int { return len(p.raw) }

func (p Payload) MarshalJSON() ([]byte, error) {
	if p.raw == nil {
		return []byte("null"), nil
	}
	return p.raw, nil
}
