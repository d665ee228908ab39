package terminal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/tart/internal/events"
	"github.com/GriffinCanCode/tart/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tart/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tart/internal/sessions"
	"github.com/GriffinCanCode/tart/internal/types"
)

// DefaultQueueLimit bounds the bytes queued for one not yet bound session
const DefaultQueueLimit = 1 << 20

var (
	ErrMounted     = errors.New("synchronizer already mounted")
	ErrNotMounted  = errors.New("synchronizer not mounted")
	ErrDisposed    = errors.New("synchronizer disposed")
	ErrWriteFailed = errors.New("write rejected by host")
)

// Phase is the synchronizer lifecycle state
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseMounted
	PhaseDisposed
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseMounted:
		return "mounted"
	case PhaseDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Deps are the collaborators of a Synchronizer
type Deps struct {
	Source  events.Subscriber
	Writer  sessions.Writer
	Factory Factory
	Logger  *zap.Logger
	Metrics *monitoring.Metrics

	// PropagateResize sends resize_terminal whenever a fit changes the grid
	PropagateResize bool
	// OnWriteError receives failed input writes; they are never resent
	OnWriteError func(sessionID string, err error)
	// QueueLimit bounds queued output per expected id; 0 means DefaultQueueLimit
	QueueLimit int
}

// outputQueue holds output for a session that is not bound yet
type outputQueue struct {
	chunks []string
	size   int
}

// Synchronizer owns one emulator and keeps it in step with the output of
// the session it is bound to. All emulator access happens under mu, and
// output events are applied under the same lock, so an identity swap is
// atomic with respect to ingestion.
type Synchronizer struct {
	deps   Deps
	logger *zap.Logger

	mu       sync.Mutex
	phase    Phase
	session  types.Session
	em       Emulator
	viewport Viewport
	input    Disposer
	sub      *events.Subscription
	queues   map[string]*outputQueue

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a synchronizer bound to session. Nothing happens until Mount.
func New(deps Deps, session types.Session) *Synchronizer {
	if deps.QueueLimit <= 0 {
		deps.QueueLimit = DefaultQueueLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Synchronizer{
		deps:    deps,
		logger:  logging.OrNop(deps.Logger).Named("terminal"),
		session: session,
		queues:  make(map[string]*outputQueue),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Mount subscribes to output, creates the emulator sized to the bound
// session, opens it on viewport and fits it once. Output that arrives for
// the bound id while the subscription is being set up is kept and written
// after creation.
func (s *Synchronizer) Mount(ctx context.Context, viewport Viewport) error {
	s.mu.Lock()
	switch s.phase {
	case PhaseMounted:
		s.mu.Unlock()
		return ErrMounted
	case PhaseDisposed:
		s.mu.Unlock()
		return ErrDisposed
	}
	s.expectLocked(s.session.ID)
	s.mu.Unlock()

	sub, err := events.OnOutput(ctx, s.deps.Source, s.ingest)
	if err != nil {
		return fmt.Errorf("failed to subscribe to output: %w", err)
	}

	s.mu.Lock()
	if s.phase != PhaseUninitialized {
		s.mu.Unlock()
		sub.Close()
		return ErrDisposed
	}
	s.sub = sub
	s.viewport = viewport
	s.createLocked(State{
		Size: Size{Rows: int(s.session.Size.Rows), Cols: int(s.session.Size.Cols)},
	})
	s.phase = PhaseMounted
	changed := Fit(s.em, s.viewport)
	rows, cols, id := s.em.Rows(), s.em.Cols(), s.session.ID
	s.mu.Unlock()

	s.logger.Debug("Mounted terminal",
		zap.String("session", id),
		zap.Int("rows", rows),
		zap.Int("cols", cols))

	if changed {
		s.propagate(id, rows, cols)
	}
	return nil
}

// Bind points the synchronizer at session. The same id only updates the
// stored metadata. A different id swaps identity: the current emulator is
// snapshotted and disposed, a replacement seeded with the snapshot is
// created, and output queued for the new id is flushed into it.
func (s *Synchronizer) Bind(session types.Session) {
	s.mu.Lock()

	if s.phase == PhaseDisposed {
		s.mu.Unlock()
		return
	}

	prev := s.session.ID
	s.session = session
	if prev == session.ID {
		s.mu.Unlock()
		return
	}

	if s.phase == PhaseUninitialized {
		delete(s.queues, prev)
		s.expectLocked(session.ID)
		s.mu.Unlock()
		return
	}

	snapshot := Capture(s.em)
	s.disposeLocked()
	delete(s.queues, prev)
	s.createLocked(snapshot)
	changed := Fit(s.em, s.viewport)
	rows, cols := s.em.Rows(), s.em.Cols()
	s.mu.Unlock()

	s.deps.Metrics.IncSwaps()
	s.logger.Debug("Swapped terminal identity",
		zap.String("from", prev),
		zap.String("to", session.ID),
		zap.Int("content_bytes", len(snapshot.Content)))

	if changed {
		s.propagate(session.ID, rows, cols)
	}
}

// Expect queues output for id until it is bound, so no output for the
// next session is lost across a swap. The queue is bounded by QueueLimit.
func (s *Synchronizer) Expect(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseDisposed || id == s.session.ID {
		return
	}
	s.expectLocked(id)
}

func (s *Synchronizer) expectLocked(id string) {
	if _, ok := s.queues[id]; !ok {
		s.queues[id] = &outputQueue{}
	}
}

// ingest handles one output event. Events for the bound id are written
// verbatim; events for expected ids are queued; the rest are ignored.
func (s *Synchronizer) ingest(e events.SessionOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.phase == PhaseDisposed:
		return
	case s.phase == PhaseMounted && e.ID == s.session.ID:
		s.em.Write(e.Data)
		s.deps.Metrics.AddOutputBytes(len(e.Data))
	default:
		q, ok := s.queues[e.ID]
		if !ok {
			return
		}
		if q.size+len(e.Data) > s.deps.QueueLimit {
			s.logger.Warn("Dropping output for unbound session",
				zap.String("session", e.ID),
				zap.Int("bytes", len(e.Data)))
			return
		}
		q.chunks = append(q.chunks, e.Data)
		q.size += len(e.Data)
	}
}

// createLocked creates and opens an emulator from state, hooks input and
// flushes output queued for the bound id.
func (s *Synchronizer) createLocked(state State) {
	em := s.deps.Factory(Options{
		Rows:    state.Size.Rows,
		Cols:    state.Size.Cols,
		Content: state.Content,
	})
	em.Open(s.viewport)
	s.input = em.OnData(s.onInput)
	s.em = em

	if q, ok := s.queues[s.session.ID]; ok {
		for _, chunk := range q.chunks {
			em.Write(chunk)
			s.deps.Metrics.AddOutputBytes(len(chunk))
		}
		delete(s.queues, s.session.ID)
	}
}

func (s *Synchronizer) disposeLocked() {
	if s.input != nil {
		s.input.Dispose()
		s.input = nil
	}
	if s.em != nil {
		s.em.Dispose()
		s.em = nil
	}
}

// onInput forwards emulator input to the host. Failures are reported to
// OnWriteError and never retried.
func (s *Synchronizer) onInput(data string) {
	result, err := s.Write(s.ctx, data)
	if err == nil {
		if failure, failed := result.Failure(); failed {
			detail := "no error value"
			if failure != nil {
				detail = string(*failure)
			}
			err = fmt.Errorf("%w: %s", ErrWriteFailed, detail)
		}
	}
	if err != nil && s.deps.OnWriteError != nil && !errors.Is(err, ErrDisposed) {
		s.deps.OnWriteError(s.SessionID(), err)
	}
}

// Write fits the emulator to its container, then sends data to the bound
// session. The result is returned as-is; nothing is resent.
func (s *Synchronizer) Write(ctx context.Context, data string) (sessions.Ack, error) {
	s.mu.Lock()
	switch s.phase {
	case PhaseUninitialized:
		s.mu.Unlock()
		return sessions.Ack{}, ErrNotMounted
	case PhaseDisposed:
		s.mu.Unlock()
		return sessions.Ack{}, ErrDisposed
	}
	changed := Fit(s.em, s.viewport)
	rows, cols, id := s.em.Rows(), s.em.Cols(), s.session.ID
	s.mu.Unlock()

	if changed {
		s.propagate(id, rows, cols)
	}

	result, err := s.deps.Writer.Write(ctx, id, data)
	switch {
	case err != nil:
		s.deps.Metrics.RecordWrite(monitoring.OutcomeError)
		s.logger.Warn("Write failed", zap.String("session", id), zap.Error(err))
	case !result.Success():
		s.deps.Metrics.RecordWrite(result.Outcome())
		s.logger.Warn("Write rejected", zap.String("session", id), zap.String("outcome", result.Outcome()))
	default:
		s.deps.Metrics.RecordWrite(monitoring.OutcomeSuccess)
	}
	return result, err
}

// SyncSize fits the emulator to its container. It is idempotent and meant
// to run on every resize signal.
func (s *Synchronizer) SyncSize() bool {
	s.mu.Lock()
	if s.phase != PhaseMounted {
		s.mu.Unlock()
		return false
	}
	changed := Fit(s.em, s.viewport)
	rows, cols, id := s.em.Rows(), s.em.Cols(), s.session.ID
	s.mu.Unlock()

	if changed {
		s.propagate(id, rows, cols)
	}
	return changed
}

// WatchResize calls SyncSize for every signal until ctx is done, the
// channel closes or the synchronizer is disposed.
func (s *Synchronizer) WatchResize(ctx context.Context, signals <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case _, ok := <-signals:
			if !ok {
				return
			}
			s.SyncSize()
		}
	}
}

func (s *Synchronizer) propagate(id string, rows, cols int) {
	if !s.deps.PropagateResize {
		return
	}
	if rows > math.MaxUint16 || cols > math.MaxUint16 {
		s.logger.Warn("Grid too large for the host, not propagated",
			zap.String("session", id),
			zap.Int("rows", rows),
			zap.Int("cols", cols))
		return
	}
	result, err := s.deps.Writer.Resize(s.ctx, id, uint16(rows), uint16(cols))
	if err != nil || !result.Success() {
		s.logger.Debug("Resize not applied by host",
			zap.String("session", id),
			zap.Error(err))
	}
}

// Serialize returns the current buffer, or "" when not mounted
func (s *Synchronizer) Serialize() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseMounted {
		return ""
	}
	return s.em.Serialize()
}

// Size returns the emulator grid, or zero when not mounted
func (s *Synchronizer) Size() Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseMounted {
		return Size{}
	}
	return Size{Rows: s.em.Rows(), Cols: s.em.Cols()}
}

// Phase returns the lifecycle state
func (s *Synchronizer) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SessionID returns the bound session id
func (s *Synchronizer) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.ID
}

// Close disposes the emulator and unsubscribes. Output racing Close is
// dropped. Disposed is terminal; Close is idempotent.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.phase == PhaseDisposed {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseDisposed
	s.disposeLocked()
	s.queues = make(map[string]*outputQueue)
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	s.cancel()
	sub.Close()
}
