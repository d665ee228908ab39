package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/tart/internal/types"
)

// Tag is the wire discriminant of an event payload
type Tag string

const (
	TagCreated Tag = "TerminalCreated"
	TagResized Tag = "TerminalResized"
	TagRemoved Tag = "TerminalRemoved"
	TagOutput  Tag = "TerminalRead"
)

// ErrNoDiscriminant marks a payload without a string "type" field
var ErrNoDiscriminant = errors.New("event payload has no string type")

// Event is one decoded host event. The set of implementations is closed:
// SessionCreated, SessionResized, SessionRemoved, SessionOutput, Unknown.
type Event interface {
	Tag() Tag
	isEvent()
}

// SessionCreated announces a new session
type SessionCreated struct {
	ID string `json:"id"`
}

// SessionResized announces a size change; Size is nil when the host omits it
type SessionResized struct {
	ID   string         `json:"id"`
	Size *types.PtySize `json:"size,omitempty"`
}

// SessionRemoved announces that a session is gone
type SessionRemoved struct {
	ID string `json:"id"`
}

// SessionOutput carries a chunk of output for one session
type SessionOutput struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

// Unknown is any payload whose tag is not one of the known ones. Fields
// holds the payload without its discriminant.
type Unknown struct {
	Type   string
	Fields map[string]json.RawMessage
}

func (SessionCreated) Tag() Tag { return TagCreated }
func (SessionResized) Tag() Tag { return TagResized }
func (SessionRemoved) Tag() Tag { return TagRemoved }
func (SessionOutput) Tag() Tag  { return TagOutput }
func (u Unknown) Tag() Tag      { return Tag(u.Type) }

func (SessionCreated) isEvent() {}
func (SessionResized) isEvent() {}
func (SessionRemoved) isEvent() {}
func (SessionOutput) isEvent()  {}
func (Unknown) isEvent()        {}

// Decode decodes a raw payload into its tagged variant. The discriminant is
// peeked first; known tags decode into their struct, everything else into
// Unknown.
func Decode(payload json.RawMessage) (Event, error) {
	var fields map[string]json.RawMessage
	if err := sonic.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}

	var typ string
	raw, ok := fields["type"]
	if !ok {
		return nil, ErrNoDiscriminant
	}
	if err := sonic.Unmarshal(raw, &typ); err != nil {
		return nil, ErrNoDiscriminant
	}

	var event Event
	var err error
	switch Tag(typ) {
	case TagCreated:
		var e SessionCreated
		err = sonic.Unmarshal(payload, &e)
		event = e
	case TagResized:
		var e SessionResized
		err = sonic.Unmarshal(payload, &e)
		event = e
	case TagRemoved:
		var e SessionRemoved
		err = sonic.Unmarshal(payload, &e)
		event = e
	case TagOutput:
		var e SessionOutput
		err = sonic.Unmarshal(payload, &e)
		event = e
	default:
		delete(fields, "type")
		return Unknown{Type: typ, Fields: fields}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", typ, err)
	}
	return event, nil
}
