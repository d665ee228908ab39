package command

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Result is the decoded outcome of one command: exactly one of a success
// value or a failure. A failure may carry no value when the host reply had
// neither an Ok nor an Err slot.
type Result[T, E any] struct {
	// ID is the correlation id assigned by the host
	ID string
	// Command echoes the envelope that produced the result
	Command Envelope

	ok      bool
	value   T
	failure *E
}

// Succeeded builds a success result
func Succeeded[T, E any](id string, cmd Envelope, value T) Result[T, E] {
	return Result[T, E]{ID: id, Command: cmd, ok: true, value: value}
}

// Failed builds a failure result. A nil failure marks a malformed reply.
func Failed[T, E any](id string, cmd Envelope, failure *E) Result[T, E] {
	return Result[T, E]{ID: id, Command: cmd, failure: failure}
}

// Success reports whether the host returned Ok
func (r Result[T, E]) Success() bool {
	return r.ok
}

// Value returns the success value, or the zero value on failure
func (r Result[T, E]) Value() T {
	return r.value
}

// Failure returns the failure value and true when the command failed.
// The value is nil when the reply was malformed.
func (r Result[T, E]) Failure() (*E, bool) {
	if r.ok {
		return nil, false
	}
	return r.failure, true
}

// Malformed reports a failure that carried no error value
func (r Result[T, E]) Malformed() bool {
	return !r.ok && r.failure == nil
}

// Outcome returns a short label for logs and metrics
func (r Result[T, E]) Outcome() string {
	switch {
	case r.ok:
		return "success"
	case r.failure == nil:
		return "malformed"
	default:
		return "failure"
	}
}

// Raw is the undecoded result produced by the executor
type Raw = Result[json.RawMessage, json.RawMessage]

// bareResult is the host reply: {id, command, result: {Ok?, Err?}}
type bareResult struct {
	ID      string          `json:"id"`
	Command json.RawMessage `json:"command"`
	Result  json.RawMessage `json:"result"`
}

// decodeBare maps a host reply onto a raw result. Presence of a slot, even
// holding null, defines it. Ok wins over Err.
func decodeBare(payload json.RawMessage, sent Envelope) (Raw, error) {
	var bare bareResult
	if err := sonic.Unmarshal(payload, &bare); err != nil {
		return Raw{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	cmd := sent
	if len(bare.Command) > 0 {
		var echoed Envelope
		if err := sonic.Unmarshal(bare.Command, &echoed); err == nil {
			cmd = echoed
		}
	}

	var slots map[string]json.RawMessage
	if len(bare.Result) > 0 {
		// A non-object result is treated as carrying neither slot
		_ = sonic.Unmarshal(bare.Result, &slots)
	}

	if ok, present := slots["Ok"]; present {
		return Succeeded[json.RawMessage, json.RawMessage](bare.ID, cmd, orNull(ok)), nil
	}
	if failure, present := slots["Err"]; present {
		failure = orNull(failure)
		return Failed[json.RawMessage](bare.ID, cmd, &failure), nil
	}
	return Failed[json.RawMessage, json.RawMessage](bare.ID, cmd, nil), nil
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

// Decode converts a raw result into typed values
func Decode[T, E any](raw Raw) (Result[T, E], error) {
	if raw.Success() {
		var value T
		if err := decodeValue(raw.Value(), &value); err != nil {
			return Result[T, E]{}, fmt.Errorf("%w: Ok of %s: %v", ErrDecode, raw.Command.Type, err)
		}
		return Succeeded[T, E](raw.ID, raw.Command, value), nil
	}

	failure, _ := raw.Failure()
	if failure == nil {
		return Failed[T, E](raw.ID, raw.Command, nil), nil
	}

	var value E
	if err := decodeValue(*failure, &value); err != nil {
		return Result[T, E]{}, fmt.Errorf("%w: Err of %s: %v", ErrDecode, raw.Command.Type, err)
	}
	return Failed[T](raw.ID, raw.Command, &value), nil
}

func decodeValue(raw json.RawMessage, v any) error {
	if target, ok := v.(*json.RawMessage); ok {
		*target = raw
		return nil
	}
	if len(raw) == 0 {
		return nil
	}
	return sonic.Unmarshal(raw, v)
}
