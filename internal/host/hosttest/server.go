package hosttest

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/GriffinCanCode/tart/internal/host"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Local test server only
	},
}

// ServeHTTP upgrades the request and serves the bridge protocol on it,
// backed by this host.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s := &serverConn{host: h, conn: conn, handlers: make(map[string]string)}
	defer s.release()

	for {
		var frame host.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}

		switch frame.Kind {
		case host.KindInvoke:
			s.invoke(r.Context(), frame)
		case host.KindListen:
			s.listen(frame)
		case host.KindUnlisten:
			s.unlisten(frame)
		default:
			s.send(host.Frame{Kind: host.KindReply, ID: frame.ID, Error: "unknown frame kind " + frame.Kind})
		}
	}
}

type serverConn struct {
	host *Host
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]string // handler id -> channel
}

func (s *serverConn) send(frame host.Frame) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.WriteJSON(frame)
}

func (s *serverConn) invoke(ctx context.Context, frame host.Frame) {
	var args any
	if len(frame.Args) > 0 {
		args = frame.Args
	}

	payload, err := s.host.Invoke(ctx, frame.Cmd, args)
	if err != nil {
		s.send(host.Frame{Kind: host.KindReply, ID: frame.ID, Error: err.Error()})
		return
	}
	s.send(host.Frame{Kind: host.KindReply, ID: frame.ID, Payload: payload})
}

func (s *serverConn) listen(frame host.Frame) {
	var handlerID string
	channel := frame.Event

	s.mu.Lock()
	handlerID = s.host.addListener(channel, func(payload json.RawMessage) {
		s.mu.Lock()
		_, live := s.handlers[handlerID]
		s.mu.Unlock()
		if !live {
			return
		}
		s.send(host.Frame{Kind: host.KindEvent, Event: channel, Handler: handlerID, Payload: payload})
	})
	s.handlers[handlerID] = channel

	// Reply before any event for this handler can be written
	encoded, _ := sonic.Marshal(handlerID)
	s.send(host.Frame{Kind: host.KindReply, ID: frame.ID, Payload: encoded})
	s.mu.Unlock()
}

func (s *serverConn) unlisten(frame host.Frame) {
	s.mu.Lock()
	channel, ok := s.handlers[frame.Handler]
	delete(s.handlers, frame.Handler)
	s.mu.Unlock()

	if ok {
		s.host.removeListener(channel, frame.Handler)
	}
	s.send(host.Frame{Kind: host.KindReply, ID: frame.ID, Payload: json.RawMessage("null")})
}

func (s *serverConn) release() {
	s.mu.Lock()
	handlers := s.handlers
	s.handlers = make(map[string]string)
	s.mu.Unlock()

	for handlerID, channel := range handlers {
		s.host.removeListener(channel, handlerID)
	}
}
