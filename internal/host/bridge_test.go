package host_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/tart/internal/host"
	"github.com/GriffinCanCode/tart/internal/host/hosttest"
	"github.com/GriffinCanCode/tart/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/tart/internal/shared/id"
	"github.com/GriffinCanCode/tart/internal/types"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, handler http.Handler, opts host.Options) *host.Bridge {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	bridge, err := host.Dial(context.Background(), wsURL(srv), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bridge.Close() })
	return bridge
}

func command(wireName string, fields map[string]any) map[string]any {
	envelope := map[string]any{"type": wireName}
	for k, v := range fields {
		envelope[k] = v
	}
	return map[string]any{"command": envelope}
}

func TestBridgeInvoke(t *testing.T) {
	fake := hosttest.New()
	fake.AddSession(types.Session{ID: "s1", Command: "zsh", Size: types.PtySize{Rows: 24, Cols: 80}})
	bridge := dial(t, fake, host.Options{})

	payload, err := bridge.Invoke(context.Background(), "execute_command", command("GetTerminals", nil))
	require.NoError(t, err)

	var bare struct {
		ID     string `json:"id"`
		Result struct {
			Ok []types.Session `json:"Ok"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(payload, &bare))
	assert.NotEmpty(t, bare.ID)
	require.Len(t, bare.Result.Ok, 1)
	assert.Equal(t, "s1", bare.Result.Ok[0].ID)
}

func TestBridgeInvokeHostError(t *testing.T) {
	fake := hosttest.New()
	bridge := dial(t, fake, host.Options{})

	_, err := bridge.Invoke(context.Background(), "no_such_entry", command("GetTerminals", nil))

	var callErr *host.CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, host.KindInvoke, callErr.Kind)
	assert.Contains(t, callErr.Message, "no_such_entry")
}

func TestBridgeListenAndUnlisten(t *testing.T) {
	fake := hosttest.New()
	bridge := dial(t, fake, host.Options{})

	received := make(chan json.RawMessage, 4)
	unlisten, err := bridge.Listen(context.Background(), hosttest.DefaultChannel, func(payload json.RawMessage) {
		received <- payload
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.Listeners(hosttest.DefaultChannel))

	fake.EmitOutput("s1", "hello")

	select {
	case payload := <-received:
		assert.JSONEq(t, `{"type":"TerminalRead","id":"s1","data":"hello"}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}

	require.NoError(t, unlisten())
	assert.Equal(t, 0, fake.Listeners(hosttest.DefaultChannel))
	require.NoError(t, unlisten())
}

func TestBridgeEventsPreserveOrder(t *testing.T) {
	fake := hosttest.New()
	bridge := dial(t, fake, host.Options{})

	received := make(chan string, 16)
	_, err := bridge.Listen(context.Background(), hosttest.DefaultChannel, func(payload json.RawMessage) {
		var event struct {
			Data string `json:"data"`
		}
		_ = json.Unmarshal(payload, &event)
		received <- event.Data
	})
	require.NoError(t, err)

	for _, chunk := range []string{"a", "b", "c", "d"} {
		fake.EmitOutput("s1", chunk)
	}

	var got []string
	for i := 0; i < 4; i++ {
		select {
		case data := <-received:
			got = append(got, data)
		case <-time.After(2 * time.Second):
			t.Fatal("event was not delivered")
		}
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func TestBridgeDroppedConnectionFailsPending(t *testing.T) {
	upgrader := websocket.Upgrader{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var frame host.Frame
		_ = conn.ReadJSON(&frame)
		_ = conn.Close()
	})
	bridge := dial(t, handler, host.Options{})

	_, err := bridge.Invoke(context.Background(), "execute_command", command("GetTerminals", nil))
	require.ErrorIs(t, err, host.ErrClosed)

	select {
	case <-bridge.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not shut down")
	}
	assert.ErrorIs(t, bridge.Err(), host.ErrClosed)

	_, err = bridge.Invoke(context.Background(), "execute_command", command("GetTerminals", nil))
	assert.ErrorIs(t, err, host.ErrClosed)
}

func TestBridgeBreakerFailsFast(t *testing.T) {
	fake := hosttest.New()
	fake.FailInvoke(errors.New("host unavailable"))
	breaker := resilience.New("host", resilience.Settings{
		Timeout:     time.Minute,
		ReadyToTrip: resilience.ConsecutiveFailures(1),
	})
	bridge := dial(t, fake, host.Options{Breaker: breaker})

	_, err := bridge.Invoke(context.Background(), "execute_command", command("GetTerminals", nil))
	var callErr *host.CallError
	require.ErrorAs(t, err, &callErr)

	_, err = bridge.Invoke(context.Background(), "execute_command", command("GetTerminals", nil))
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Len(t, fake.Calls(), 0)
}

func TestBridgeContextAbandonsWait(t *testing.T) {
	fake := hosttest.New()
	bridge := dial(t, fake, host.Options{})

	// Registered after dial so the handler is released before the server closes
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	fake.Handle("Hang", func(hosttest.Envelope) (json.RawMessage, error) {
		<-release
		return hosttest.Ok(nil), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := bridge.Invoke(ctx, "execute_command", command("Hang", nil))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBridgeReadLimitClosesConnection(t *testing.T) {
	fake := hosttest.New()
	fake.AddSession(types.Session{ID: "s1", Command: strings.Repeat("x", 256)})
	bridge := dial(t, fake, host.Options{ReadLimit: 64})

	_, err := bridge.Invoke(context.Background(), "execute_command", command("GetTerminals", nil))
	require.ErrorIs(t, err, host.ErrClosed)

	select {
	case <-bridge.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not shut down")
	}
}

func TestBridgeIgnoresUncorrelatedReplies(t *testing.T) {
	upgrader := websocket.Upgrader{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var frame host.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		_ = conn.WriteJSON(host.Frame{Kind: host.KindReply, ID: "not-a-request", Payload: json.RawMessage(`1`)})
		_ = conn.WriteJSON(host.Frame{Kind: host.KindReply, ID: id.NewRequestID().String(), Payload: json.RawMessage(`2`)})
		_ = conn.WriteJSON(host.Frame{Kind: host.KindReply, ID: frame.ID, Payload: json.RawMessage(`3`)})

		// Hold the connection until the client hangs up
		_, _, _ = conn.ReadMessage()
	})

	core, logs := observer.New(zapcore.DebugLevel)
	bridge := dial(t, handler, host.Options{Logger: zap.New(core)})

	payload, err := bridge.Invoke(context.Background(), "execute_command", command("GetTerminals", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `3`, string(payload))

	malformed := logs.FilterMessage("Dropping reply with malformed request id").All()
	require.Len(t, malformed, 1)
	assert.Equal(t, "not-a-request", malformed[0].ContextMap()["id"])

	late := logs.FilterMessage("Reply for unknown request").All()
	require.Len(t, late, 1)
	assert.Contains(t, late[0].ContextMap(), "issued")
}
