package host

import "encoding/json"

// Frame kinds exchanged over the websocket bridge
const (
	KindInvoke   = "invoke"
	KindListen   = "listen"
	KindUnlisten = "unlisten"
	KindReply    = "reply"
	KindEvent    = "event"
)

// Frame is one JSON text message on the bridge connection.
//
// Client to host: invoke {id, cmd, args}, listen {id, event},
// unlisten {id, handler}. Host to client: reply {id, payload | error},
// event {event, handler, payload}. A successful listen reply carries the
// host-assigned handler id as a JSON string payload.
type Frame struct {
	Kind    string          `json:"kind"`
	ID      string          `json:"id,omitempty"`
	Cmd     string          `json:"cmd,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Event   string          `json:"event,omitempty"`
	Handler string          `json:"handler,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}
