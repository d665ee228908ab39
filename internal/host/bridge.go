package host

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tart/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tart/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tart/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/tart/internal/shared/id"
)

// Options configures a Bridge. All fields are optional.
type Options struct {
	Breaker *resilience.Breaker
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	Header  http.Header
	// ReadLimit caps one incoming frame in bytes; 0 means DefaultReadLimit
	ReadLimit int64
}

// DefaultReadLimit bounds a single frame from the host
const DefaultReadLimit = 16 << 20

type reply struct {
	payload json.RawMessage
	err     error
}

type pending struct {
	kind   string
	ch     chan reply
	listen Handler
}

// Bridge is a Host backed by a websocket connection to the host process.
// Requests are correlated with replies by request id. Event handlers run on
// the connection's read goroutine.
type Bridge struct {
	conn    *websocket.Conn
	breaker *resilience.Breaker
	logger  *zap.Logger
	metrics *monitoring.Metrics

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[id.RequestID]*pending
	handlers map[string]Handler
	closed   bool
	closeErr error

	done chan struct{}
}

// Dial connects to the host bridge at url
func Dial(ctx context.Context, url string, opts Options) (*Bridge, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial host %s: %w", url, err)
	}
	return NewBridge(conn, opts), nil
}

// NewBridge wraps an established connection and starts its read loop
func NewBridge(conn *websocket.Conn, opts Options) *Bridge {
	limit := opts.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	conn.SetReadLimit(limit)

	b := &Bridge{
		conn:     conn,
		breaker:  opts.Breaker,
		logger:   logging.OrNop(opts.Logger).Named("bridge"),
		metrics:  opts.Metrics,
		pending:  make(map[id.RequestID]*pending),
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}
	go b.readLoop()
	return b
}

// Invoke sends cmd with args and waits for the host's reply. The call goes
// through the circuit breaker; an open breaker fails immediately.
func (b *Bridge) Invoke(ctx context.Context, cmd string, args any) (json.RawMessage, error) {
	encoded, err := sonic.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode args for %s: %w", cmd, err)
	}

	var payload json.RawMessage
	err = b.breaker.Do(func() error {
		var callErr error
		payload, callErr = b.call(ctx, Frame{Kind: KindInvoke, Cmd: cmd, Args: encoded}, nil)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Listen registers fn on the host channel. The handler is installed before
// any event for it can be read, so no event after the reply is missed.
func (b *Bridge) Listen(ctx context.Context, channel string, fn Handler) (Unlisten, error) {
	var handlerID string
	err := b.breaker.Do(func() error {
		payload, callErr := b.call(ctx, Frame{Kind: KindListen, Event: channel}, fn)
		if callErr != nil {
			return callErr
		}
		return sonic.Unmarshal(payload, &handlerID)
	})
	if err != nil {
		return nil, err
	}

	b.logger.Debug("Listening on host channel",
		zap.String("channel", channel),
		zap.String("handler", handlerID))

	var once sync.Once
	var unlistenErr error
	return func() error {
		once.Do(func() {
			unlistenErr = b.unlisten(handlerID)
		})
		return unlistenErr
	}, nil
}

func (b *Bridge) unlisten(handlerID string) error {
	b.mu.Lock()
	delete(b.handlers, handlerID)
	closed := b.closed
	b.mu.Unlock()

	if closed {
		return nil
	}

	_, err := b.call(context.Background(), Frame{Kind: KindUnlisten, Handler: handlerID}, nil)
	if err != nil {
		return fmt.Errorf("failed to unlisten %s: %w", handlerID, err)
	}
	return nil
}

// Done is closed once the connection has shut down
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Err returns the reason the connection shut down, or nil while it is open
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeErr
}

// Close closes the connection and fails all pending calls with ErrClosed
func (b *Bridge) Close() error {
	b.writeMu.Lock()
	_ = b.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	b.writeMu.Unlock()

	err := b.conn.Close()
	<-b.done
	return err
}

func (b *Bridge) call(ctx context.Context, frame Frame, listen Handler) (json.RawMessage, error) {
	reqID := id.NewRequestID()
	frame.ID = reqID.String()

	p := &pending{kind: frame.Kind, ch: make(chan reply, 1), listen: listen}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.pending[reqID] = p
	b.mu.Unlock()

	if err := b.write(frame); err != nil {
		b.forget(reqID)
		return nil, fmt.Errorf("failed to send %s frame: %w", frame.Kind, err)
	}

	select {
	case r := <-p.ch:
		return r.payload, r.err
	case <-ctx.Done():
		b.forget(reqID)
		return nil, ctx.Err()
	}
}

func (b *Bridge) write(frame Frame) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if err := b.conn.WriteJSON(frame); err != nil {
		return err
	}
	b.metrics.RecordFrame("out", frame.Kind)
	return nil
}

func (b *Bridge) forget(reqID id.RequestID) {
	b.mu.Lock()
	delete(b.pending, reqID)
	b.mu.Unlock()
}

func (b *Bridge) readLoop() {
	for {
		var frame Frame
		if err := b.conn.ReadJSON(&frame); err != nil {
			b.shutdown(err)
			return
		}
		b.metrics.RecordFrame("in", frame.Kind)

		switch frame.Kind {
		case KindReply:
			b.resolve(frame)
		case KindEvent:
			b.dispatch(frame)
		default:
			b.logger.Warn("Dropping unexpected frame", zap.String("kind", frame.Kind))
		}
	}
}

func (b *Bridge) resolve(frame Frame) {
	reqID := id.RequestID(frame.ID)

	b.mu.Lock()
	p, ok := b.pending[reqID]
	if !ok {
		b.mu.Unlock()
		issued, err := id.Timestamp(frame.ID)
		if err != nil {
			b.logger.Warn("Dropping reply with malformed request id", zap.String("id", frame.ID))
			return
		}
		// Late replies for abandoned requests land here
		b.logger.Debug("Reply for unknown request",
			zap.String("id", frame.ID),
			zap.Time("issued", issued))
		return
	}
	delete(b.pending, reqID)

	r := reply{payload: frame.Payload}
	switch {
	case frame.Error != "":
		r = reply{err: &CallError{Kind: p.kind, Message: frame.Error}}
	case p.listen != nil:
		var handlerID string
		if err := sonic.Unmarshal(frame.Payload, &handlerID); err != nil || handlerID == "" {
			r = reply{err: fmt.Errorf("%w: listen reply without handler id", ErrProtocol)}
		} else {
			b.handlers[handlerID] = p.listen
		}
	}
	b.mu.Unlock()

	p.ch <- r
}

func (b *Bridge) dispatch(frame Frame) {
	b.mu.Lock()
	fn := b.handlers[frame.Handler]
	b.mu.Unlock()

	if fn == nil {
		b.logger.Debug("Event for unknown handler",
			zap.String("event", frame.Event),
			zap.String("handler", frame.Handler))
		return
	}
	fn(frame.Payload)
}

func (b *Bridge) shutdown(cause error) {
	b.mu.Lock()
	b.closed = true
	b.closeErr = fmt.Errorf("%w: %v", ErrClosed, cause)
	waiting := b.pending
	b.pending = make(map[id.RequestID]*pending)
	b.handlers = make(map[string]Handler)
	b.mu.Unlock()

	for _, p := range waiting {
		p.ch <- reply{err: ErrClosed}
	}

	if websocket.IsUnexpectedCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		b.logger.Warn("Host connection lost", zap.Error(cause))
	} else {
		b.logger.Debug("Host connection closed", zap.Error(cause))
	}
	close(b.done)
}
