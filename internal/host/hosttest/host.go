// Package hosttest provides an in-memory host for tests and local demos.
//
// Host implements host.Invoker and host.Listener in process and can also
// serve the websocket bridge protocol over HTTP, so the same fake backs
// unit tests of the codec and end-to-end tests of host.Bridge.
package hosttest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/GriffinCanCode/tart/internal/host"
	"github.com/GriffinCanCode/tart/internal/shared/id"
	"github.com/GriffinCanCode/tart/internal/types"
)

const (
	DefaultEntry   = "execute_command"
	DefaultChannel = "tart://event"
)

// Envelope is a decoded command envelope: {"type": wireName, ...fields}
type Envelope map[string]json.RawMessage

// Type returns the envelope discriminant
func (e Envelope) Type() string {
	var t string
	if raw, ok := e["type"]; ok {
		_ = sonic.Unmarshal(raw, &t)
	}
	return t
}

// Decode decodes the envelope fields into v
func (e Envelope) Decode(v any) error {
	raw, err := sonic.Marshal(e)
	if err != nil {
		return err
	}
	return sonic.Unmarshal(raw, v)
}

// CommandFunc handles one command type. It returns the wire result object
// (see Ok, Err, Neither) or an error, which the caller sees as a transport
// failure.
type CommandFunc func(env Envelope) (json.RawMessage, error)

// Call records one invocation received by the host
type Call struct {
	Cmd      string
	Envelope Envelope
}

// Host is an in-memory process host with a session table
type Host struct {
	Entry   string
	Channel string
	// Echo makes WriteData emit the written data back as a TerminalRead event.
	Echo bool

	mu        sync.Mutex
	commands  map[string]CommandFunc
	sessions  []types.Session
	writes    map[string][]string
	listeners map[string]map[string]host.Handler
	calls     []Call
	invokeErr error
}

// New creates a host with the built-in terminal commands installed
func New() *Host {
	h := &Host{
		Entry:     DefaultEntry,
		Channel:   DefaultChannel,
		commands:  make(map[string]CommandFunc),
		writes:    make(map[string][]string),
		listeners: make(map[string]map[string]host.Handler),
	}
	h.commands["GetTerminals"] = h.getTerminals
	h.commands["CreateTerminal"] = h.createTerminal
	h.commands["WriteData"] = h.writeData
	h.commands["ResizeTerminal"] = h.resizeTerminal
	h.commands["RemoveTerminal"] = h.removeTerminal
	return h
}

// Ok builds a result object with the Ok slot set to v
func Ok(v any) json.RawMessage {
	return mustResult("Ok", v)
}

// Err builds a result object with the Err slot set to v
func Err(v any) json.RawMessage {
	return mustResult("Err", v)
}

// Neither builds a result object with neither slot set
func Neither() json.RawMessage {
	return json.RawMessage(`{}`)
}

func mustResult(slot string, v any) json.RawMessage {
	raw, err := sonic.Marshal(map[string]any{slot: v})
	if err != nil {
		panic(fmt.Sprintf("hosttest: encode %s result: %v", slot, err))
	}
	return raw
}

// Handle installs or replaces the handler for a wire command type
func (h *Host) Handle(wireName string, fn CommandFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands[wireName] = fn
}

// FailInvoke makes every subsequent Invoke return err; nil restores service
func (h *Host) FailInvoke(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invokeErr = err
}

// AddSession appends s to the session table without emitting an event
func (h *Host) AddSession(s types.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = append(h.sessions, s)
}

// Sessions returns a copy of the session table
func (h *Host) Sessions() []types.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.Session{}, h.sessions...)
}

// Writes returns the data written to session id, in order
func (h *Host) Writes(sessionID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string{}, h.writes[sessionID]...)
}

// Calls returns every recorded invocation
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Call{}, h.calls...)
}

// CallsOf returns the recorded invocations of one wire command type
func (h *Host) CallsOf(wireName string) []Call {
	var out []Call
	for _, c := range h.Calls() {
		if c.Envelope.Type() == wireName {
			out = append(out, c)
		}
	}
	return out
}

// Listeners returns the number of handlers registered on channel
func (h *Host) Listeners(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[channel])
}

// Invoke implements host.Invoker
func (h *Host) Invoke(ctx context.Context, cmd string, args any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	failure := h.invokeErr
	h.mu.Unlock()
	if failure != nil {
		return nil, failure
	}

	if cmd != h.Entry {
		return nil, fmt.Errorf("command %s not found", cmd)
	}

	raw, err := sonic.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	var body struct {
		Command Envelope `json:"command"`
	}
	if err := sonic.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}

	h.mu.Lock()
	h.calls = append(h.calls, Call{Cmd: cmd, Envelope: body.Command})
	fn := h.commands[body.Command.Type()]
	h.mu.Unlock()

	if fn == nil {
		return nil, fmt.Errorf("unknown variant %q", body.Command.Type())
	}

	result, err := fn(body.Command)
	if err != nil {
		return nil, err
	}

	return sonic.Marshal(map[string]any{
		"id":      uuid.NewString(),
		"command": body.Command,
		"result":  result,
	})
}

// Listen implements host.Listener
func (h *Host) Listen(ctx context.Context, channel string, fn host.Handler) (host.Unlisten, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	handlerID := h.addListener(channel, fn)

	var once sync.Once
	return func() error {
		once.Do(func() { h.removeListener(channel, handlerID) })
		return nil
	}, nil
}

func (h *Host) addListener(channel string, fn host.Handler) string {
	handlerID := id.NewListenerID().String()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listeners[channel] == nil {
		h.listeners[channel] = make(map[string]host.Handler)
	}
	h.listeners[channel][handlerID] = fn
	return handlerID
}

func (h *Host) removeListener(channel, handlerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners[channel], handlerID)
}

// Emit delivers payload to every listener on the event channel, on the
// caller's goroutine.
func (h *Host) Emit(payload any) {
	raw, err := sonic.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("hosttest: encode event: %v", err))
	}
	h.EmitRaw(raw)
}

// EmitRaw delivers an already encoded payload to every listener
func (h *Host) EmitRaw(raw json.RawMessage) {
	h.mu.Lock()
	fns := make([]host.Handler, 0, len(h.listeners[h.Channel]))
	for _, fn := range h.listeners[h.Channel] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(raw)
	}
}

// EmitOutput emits a TerminalRead event for session id
func (h *Host) EmitOutput(sessionID, data string) {
	h.Emit(map[string]any{"type": "TerminalRead", "id": sessionID, "data": data})
}
