package terminal_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/tart/internal/command"
	"github.com/GriffinCanCode/tart/internal/events"
	"github.com/GriffinCanCode/tart/internal/host/hosttest"
	"github.com/GriffinCanCode/tart/internal/sessions"
	"github.com/GriffinCanCode/tart/internal/terminal"
	"github.com/GriffinCanCode/tart/internal/terminal/vt"
	"github.com/GriffinCanCode/tart/internal/types"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

// viewport is a resizable container
type viewport struct {
	mu   sync.Mutex
	rows int
	cols int
}

func (v *viewport) set(rows, cols int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rows, v.cols = rows, cols
}

func (v *viewport) ProposeDimensions() (int, int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rows, v.cols, v.rows > 0 && v.cols > 0
}

type rig struct {
	host  *hosttest.Host
	api   *sessions.API
	demux *events.Demux
	view  *viewport

	mu      sync.Mutex
	created []*vt.Emulator
}

func newRig(t *testing.T) *rig {
	t.Helper()
	fake := hosttest.New()
	r := &rig{
		host:  fake,
		api:   sessions.New(command.NewExecutor(fake)),
		demux: events.New(fake, events.Options{}),
		view:  &viewport{rows: 24, cols: 80},
	}
	t.Cleanup(func() { _ = r.demux.Close() })
	return r
}

func (r *rig) factory(opts terminal.Options) terminal.Emulator {
	em := vt.New(opts.Rows, opts.Cols, 100, opts.Content)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, em)
	return em
}

func (r *rig) emulators() []*vt.Emulator {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*vt.Emulator{}, r.created...)
}

func (r *rig) deps() terminal.Deps {
	return terminal.Deps{
		Source:  r.demux,
		Writer:  r.api,
		Factory: r.factory,
	}
}

func (r *rig) mount(t *testing.T, deps terminal.Deps, s types.Session) *terminal.Synchronizer {
	t.Helper()
	ts := terminal.New(deps, s)
	require.NoError(t, ts.Mount(context.Background(), r.view))
	t.Cleanup(ts.Close)
	return ts
}

// settle waits until every emitted event has been delivered
func (r *rig) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, r.demux.Sync(ctx))
}

func session(id string) types.Session {
	return types.Session{ID: id, Command: "zsh", Size: types.PtySize{Rows: 24, Cols: 80}}
}

func TestOutputForBoundSessionOnly(t *testing.T) {
	r := newRig(t)
	ts := r.mount(t, r.deps(), session("s1"))

	r.host.EmitOutput("s1", "hello")
	r.host.EmitOutput("s2", "other")
	r.settle(t)

	assert.Equal(t, "hello", ts.Serialize())
	assert.Equal(t, terminal.PhaseMounted, ts.Phase())
	assert.Equal(t, terminal.Size{Rows: 24, Cols: 80}, ts.Size())
}

func TestOutputWrittenVerbatimInOrder(t *testing.T) {
	r := newRig(t)
	ts := r.mount(t, r.deps(), session("s1"))

	for _, chunk := range []string{"$ ec", "ho hi\r\n", "hi\r\n", "$ "} {
		r.host.EmitOutput("s1", chunk)
	}
	r.settle(t)

	assert.Equal(t, "$ echo hi\r\nhi\r\n$\x1b[3;3H", ts.Serialize())
}

func TestIdentitySwapSeedsReplacement(t *testing.T) {
	r := newRig(t)
	ts := r.mount(t, r.deps(), session("s1"))

	r.host.EmitOutput("s1", "line one\r\n")
	r.settle(t)

	ts.Bind(session("s2"))

	created := r.emulators()
	require.Len(t, created, 2)
	assert.True(t, created[0].Disposed())
	assert.False(t, created[1].Disposed())
	assert.Equal(t, "s2", ts.SessionID())
	assert.Equal(t, "line one\r\n", ts.Serialize())

	r.host.EmitOutput("s1", "stale")
	r.host.EmitOutput("s2", "two")
	r.settle(t)

	assert.Equal(t, "line one\r\ntwo", ts.Serialize())
}

func TestSwapCarriesSize(t *testing.T) {
	r := newRig(t)
	r.view.set(10, 40)
	ts := r.mount(t, r.deps(), session("s1"))
	require.Equal(t, terminal.Size{Rows: 10, Cols: 40}, ts.Size())

	ts.Bind(session("s2"))

	assert.Equal(t, terminal.Size{Rows: 10, Cols: 40}, ts.Size())
}

func TestBindSameIDKeepsEmulator(t *testing.T) {
	r := newRig(t)
	ts := r.mount(t, r.deps(), session("s1"))
	r.host.EmitOutput("s1", "kept")
	r.settle(t)

	title := "renamed"
	updated := session("s1")
	updated.Title = &title
	ts.Bind(updated)

	assert.Len(t, r.emulators(), 1)
	assert.Equal(t, "kept", ts.Serialize())
}

func TestBindBeforeMount(t *testing.T) {
	r := newRig(t)
	ts := terminal.New(r.deps(), session("s1"))
	t.Cleanup(ts.Close)

	ts.Bind(session("s2"))
	require.NoError(t, ts.Mount(context.Background(), r.view))

	r.host.EmitOutput("s1", "old")
	r.host.EmitOutput("s2", "new")
	r.settle(t)

	assert.Len(t, r.emulators(), 1)
	assert.Equal(t, "new", ts.Serialize())
}

func TestExpectFlushesOnBind(t *testing.T) {
	r := newRig(t)
	ts := r.mount(t, r.deps(), session("s1"))
	ts.Expect("s2")

	r.host.EmitOutput("s2", "early ")
	r.host.EmitOutput("s3", "ignored")
	r.host.EmitOutput("s2", "bytes")
	r.settle(t)
	assert.Equal(t, "", ts.Serialize())

	ts.Bind(session("s2"))

	assert.Equal(t, "early bytes", ts.Serialize())
}

func TestExpectQueueIsBounded(t *testing.T) {
	r := newRig(t)
	deps := r.deps()
	deps.QueueLimit = 4
	ts := r.mount(t, deps, session("s1"))
	ts.Expect("s2")

	r.host.EmitOutput("s2", "abc")
	r.host.EmitOutput("s2", "defg")
	r.host.EmitOutput("s2", "d")
	r.settle(t)

	ts.Bind(session("s2"))

	assert.Equal(t, "abcd", ts.Serialize())
}

func TestWriteFitsBeforeSending(t *testing.T) {
	tests := []struct {
		name      string
		propagate bool
		resizes   int
	}{
		{name: "propagate", propagate: true, resizes: 1},
		{name: "local only", propagate: false, resizes: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			r.host.AddSession(session("s1"))
			deps := r.deps()
			deps.PropagateResize = tt.propagate
			ts := r.mount(t, deps, session("s1"))

			r.view.set(30, 100)
			result, err := ts.Write(context.Background(), "ls\r")
			require.NoError(t, err)
			assert.True(t, result.Success())

			assert.Equal(t, terminal.Size{Rows: 30, Cols: 100}, ts.Size())
			assert.Equal(t, []string{"ls\r"}, r.host.Writes("s1"))
			assert.Len(t, r.host.CallsOf("ResizeTerminal"), tt.resizes)

			if tt.propagate {
				calls := r.host.Calls()
				require.Len(t, calls, 2)
				assert.Equal(t, "ResizeTerminal", calls[0].Envelope.Type())
				assert.Equal(t, "WriteData", calls[1].Envelope.Type())
				assert.Equal(t, uint16(30), r.host.Sessions()[0].Size.Rows)
			}
		})
	}
}

func TestInputForwardedToSession(t *testing.T) {
	r := newRig(t)
	r.host.Echo = true
	r.host.AddSession(session("s1"))
	ts := r.mount(t, r.deps(), session("s1"))

	created := r.emulators()
	require.Len(t, created, 1)
	created[0].Input("x")
	r.settle(t)

	assert.Equal(t, []string{"x"}, r.host.Writes("s1"))
	assert.Equal(t, "x", ts.Serialize())
}

func TestInputFailureReportedOnce(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(h *hosttest.Host)
		check   func(t *testing.T, err error)
	}{
		{
			name:    "host rejects",
			prepare: func(*hosttest.Host) {},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, terminal.ErrWriteFailed)
				assert.Contains(t, err.Error(), hosttest.ErrClosedPty)
			},
		},
		{
			name:    "transport down",
			prepare: func(h *hosttest.Host) { h.FailInvoke(errors.New("bridge gone")) },
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, command.ErrTransport)
				assert.NotErrorIs(t, err, terminal.ErrWriteFailed)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)

			var mu sync.Mutex
			var reported []error
			deps := r.deps()
			deps.OnWriteError = func(sessionID string, err error) {
				mu.Lock()
				defer mu.Unlock()
				assert.Equal(t, "gone", sessionID)
				reported = append(reported, err)
			}
			r.mount(t, deps, session("gone"))
			tt.prepare(r.host)

			r.emulators()[0].Input("x")

			mu.Lock()
			defer mu.Unlock()
			require.Len(t, reported, 1)
			tt.check(t, reported[0])
		})
	}
}

func TestSyncSizeIsIdempotent(t *testing.T) {
	r := newRig(t)
	ts := r.mount(t, r.deps(), session("s1"))

	assert.False(t, ts.SyncSize())

	r.view.set(12, 60)
	assert.True(t, ts.SyncSize())
	assert.False(t, ts.SyncSize())
	assert.Equal(t, terminal.Size{Rows: 12, Cols: 60}, ts.Size())

	r.view.set(0, 0)
	assert.False(t, ts.SyncSize())
	assert.Equal(t, terminal.Size{Rows: 12, Cols: 60}, ts.Size())
}

func TestOversizedGridStaysLocal(t *testing.T) {
	r := newRig(t)
	r.host.AddSession(session("s1"))
	deps := r.deps()
	deps.PropagateResize = true
	ts := r.mount(t, deps, session("s1"))

	r.view.set(30, 70000)
	assert.True(t, ts.SyncSize())

	assert.Equal(t, terminal.Size{Rows: 30, Cols: 70000}, ts.Size())
	assert.Empty(t, r.host.CallsOf("ResizeTerminal"))
	assert.Equal(t, uint16(80), r.host.Sessions()[0].Size.Cols)
}

func TestWatchResize(t *testing.T) {
	r := newRig(t)
	ts := r.mount(t, r.deps(), session("s1"))

	signals := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ts.WatchResize(context.Background(), signals)
	}()

	r.view.set(20, 70)
	signals <- struct{}{}
	assert.Eventually(t, func() bool {
		return ts.Size() == terminal.Size{Rows: 20, Cols: 70}
	}, waitFor, tick)

	close(signals)
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("WatchResize did not return after the channel closed")
	}
}

func TestPhaseErrors(t *testing.T) {
	r := newRig(t)
	ts := terminal.New(r.deps(), session("s1"))

	assert.Equal(t, "uninitialized", ts.Phase().String())
	_, err := ts.Write(context.Background(), "x")
	assert.ErrorIs(t, err, terminal.ErrNotMounted)
	assert.Equal(t, "", ts.Serialize())
	assert.Equal(t, terminal.Size{}, ts.Size())

	require.NoError(t, ts.Mount(context.Background(), r.view))
	assert.ErrorIs(t, ts.Mount(context.Background(), r.view), terminal.ErrMounted)

	ts.Close()
	ts.Close()
	assert.Equal(t, "disposed", ts.Phase().String())
	assert.ErrorIs(t, ts.Mount(context.Background(), r.view), terminal.ErrDisposed)
	_, err = ts.Write(context.Background(), "x")
	assert.ErrorIs(t, err, terminal.ErrDisposed)
}

func TestCloseStopsIngestion(t *testing.T) {
	r := newRig(t)
	ts := r.mount(t, r.deps(), session("s1"))
	r.host.EmitOutput("s1", "a")
	r.settle(t)
	require.Equal(t, 1, r.demux.Len())

	ts.Close()

	assert.True(t, r.emulators()[0].Disposed())
	assert.Equal(t, 0, r.demux.Len())
	assert.Equal(t, 0, r.host.Listeners(hosttest.DefaultChannel))

	r.host.EmitOutput("s1", "b")
	assert.Equal(t, "", ts.Serialize())

	ts.Bind(session("s2"))
	assert.Len(t, r.emulators(), 1)
}
