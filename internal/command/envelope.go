package command

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// DiscriminantField is the envelope field holding the wire command name
const DiscriminantField = "type"

// Envelope is the wire form of one command: {"type": Type, ...Fields}.
type Envelope struct {
	Type   string
	Fields map[string]json.RawMessage
}

// NewEnvelope builds the envelope for a logical command name. The payload
// may be nil, a map or a struct; it must encode to a JSON object, whose
// fields are merged next to the discriminant. A payload field named "type"
// is overwritten.
func NewEnvelope(name string, payload any) (Envelope, error) {
	env := Envelope{Type: Transform(name), Fields: map[string]json.RawMessage{}}
	if payload == nil {
		return env, nil
	}

	raw, err := sonic.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode payload for %s: %w", env.Type, err)
	}
	if string(raw) == "null" {
		return env, nil
	}
	if err := sonic.Unmarshal(raw, &env.Fields); err != nil {
		return Envelope{}, fmt.Errorf("payload for %s is not a JSON object: %w", env.Type, err)
	}
	if env.Fields == nil {
		env.Fields = map[string]json.RawMessage{}
	}
	delete(env.Fields, DiscriminantField)

	return env, nil
}

// Field returns the raw value of a payload field
func (e Envelope) Field(name string) (json.RawMessage, bool) {
	raw, ok := e.Fields[name]
	return raw, ok
}

// MarshalJSON encodes the flat wire form
func (e Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.Fields)+1)
	for k, v := range e.Fields {
		out[k] = v
	}
	typ, err := sonic.Marshal(e.Type)
	if err != nil {
		return nil, err
	}
	out[DiscriminantField] = typ
	return sonic.Marshal(out)
}

// UnmarshalJSON decodes the flat wire form
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := sonic.Unmarshal(data, &fields); err != nil {
		return err
	}

	var typ string
	if raw, ok := fields[DiscriminantField]; ok {
		if err := sonic.Unmarshal(raw, &typ); err != nil {
			return fmt.Errorf("envelope discriminant: %w", err)
		}
		delete(fields, DiscriminantField)
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}

	e.Type = typ
	e.Fields = fields
	return nil
}
