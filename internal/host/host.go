package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned for calls pending on, or issued to, a closed connection.
	ErrClosed = errors.New("host connection closed")
	// ErrProtocol marks a frame that does not follow the bridge protocol.
	ErrProtocol = errors.New("host protocol violation")
)

// Invoker performs one RPC against a named host entry point and returns the
// raw reply. It never retries.
type Invoker interface {
	Invoke(ctx context.Context, cmd string, args any) (json.RawMessage, error)
}

// Handler receives one raw event payload. Handlers run on the transport's
// delivery goroutine and must not block.
type Handler func(payload json.RawMessage)

// Unlisten releases a channel listener. It is safe to call more than once.
type Unlisten func() error

// Listener registers a handler on a named host event channel.
type Listener interface {
	Listen(ctx context.Context, channel string, fn Handler) (Unlisten, error)
}

// Host is the full host capability: one RPC surface plus event channels.
type Host interface {
	Invoker
	Listener
}

// CallError is an error reported by the host for a single request
type CallError struct {
	Kind    string
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("host rejected %s: %s", e.Kind, e.Message)
}
