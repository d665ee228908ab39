package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/tart/internal/events"
	"github.com/GriffinCanCode/tart/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tart/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tart/internal/sessions"
	"github.com/GriffinCanCode/tart/internal/types"
)

var (
	ErrClosed     = errors.New("directory is closed")
	ErrStarted    = errors.New("directory already started")
	ErrNotStarted = errors.New("directory not started")
)

// Options configures a Directory
type Options struct {
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// request is one queued re-fetch; done is closed once it has been applied
type request struct {
	reason string
	done   chan struct{}
}

// Directory is the client's list of live sessions. The list is replaced
// wholesale by re-fetching whenever a lifecycle event arrives; it is never
// patched incrementally and never re-sorted.
type Directory struct {
	lister  sessions.Lister
	source  events.Subscriber
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu          sync.RWMutex
	sessions    []types.Session
	watchers    map[int]func([]types.Session)
	nextWatcher int

	qmu     sync.Mutex
	queue   []request
	signal  chan struct{}
	started bool
	closed  bool

	subs   []*events.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a directory. Nothing is fetched until Start.
func New(lister sessions.Lister, source events.Subscriber, opts Options) *Directory {
	ctx, cancel := context.WithCancel(context.Background())
	return &Directory{
		lister:   lister,
		source:   source,
		logger:   logging.OrNop(opts.Logger).Named("directory"),
		metrics:  opts.Metrics,
		sessions: []types.Session{},
		watchers: make(map[int]func([]types.Session)),
		signal:   make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to lifecycle events and queues the initial listing.
// It does not wait for the listing; Sessions stays empty until it lands.
func (d *Directory) Start(ctx context.Context) error {
	d.qmu.Lock()
	if d.closed {
		d.qmu.Unlock()
		return ErrClosed
	}
	if d.started {
		d.qmu.Unlock()
		return ErrStarted
	}
	d.started = true
	d.qmu.Unlock()

	trigger := func(e events.Event) { d.enqueue(string(e.Tag()), nil) }
	for _, tag := range []events.Tag{events.TagCreated, events.TagResized, events.TagRemoved} {
		sub, err := d.source.Subscribe(ctx, tag, trigger)
		if err != nil {
			d.closeSubscriptions()
			return fmt.Errorf("failed to subscribe to %s: %w", tag, err)
		}
		d.subs = append(d.subs, sub)
	}

	d.wg.Add(1)
	go d.worker()

	d.enqueue("start", nil)
	return nil
}

// Sessions returns a copy of the current list in host order. It is never nil.
func (d *Directory) Sessions() []types.Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]types.Session{}, d.sessions...)
}

// Lookup returns the session with the given id
func (d *Directory) Lookup(id string) (types.Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return types.Session{}, false
}

// Refresh queues a re-fetch and waits until it has been applied. Listing
// failures are absorbed into an empty list; only cancellation and a closed
// directory are reported.
func (d *Directory) Refresh(ctx context.Context) error {
	d.qmu.Lock()
	started := d.started
	d.qmu.Unlock()
	if !started {
		return ErrNotStarted
	}

	done := make(chan struct{})
	if !d.enqueue("manual", done) {
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-d.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Watch registers fn to receive a copy of the list after every applied
// refresh. fn runs on the refresh worker. The returned func unregisters it.
func (d *Directory) Watch(fn func([]types.Session)) (cancel func()) {
	d.mu.Lock()
	key := d.nextWatcher
	d.nextWatcher++
	d.watchers[key] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.watchers, key)
		d.mu.Unlock()
	}
}

// Close unsubscribes, stops the worker and abandons any queued refreshes
func (d *Directory) Close() error {
	d.qmu.Lock()
	if d.closed {
		d.qmu.Unlock()
		return nil
	}
	d.closed = true
	d.qmu.Unlock()

	d.closeSubscriptions()
	d.cancel()
	d.wg.Wait()
	return nil
}

func (d *Directory) closeSubscriptions() {
	for _, sub := range d.subs {
		sub.Close()
	}
	d.subs = nil
}

// enqueue appends a request; it never blocks, so event delivery is never
// held up by a listing round-trip.
func (d *Directory) enqueue(reason string, done chan struct{}) bool {
	d.qmu.Lock()
	if d.closed {
		d.qmu.Unlock()
		return false
	}
	d.queue = append(d.queue, request{reason: reason, done: done})
	d.qmu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
	return true
}

func (d *Directory) next() (request, bool) {
	d.qmu.Lock()
	defer d.qmu.Unlock()
	if len(d.queue) == 0 {
		return request{}, false
	}
	req := d.queue[0]
	d.queue = d.queue[1:]
	return req, true
}

func (d *Directory) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.signal:
		}

		for {
			req, ok := d.next()
			if !ok {
				break
			}
			d.refresh(req)
			if d.ctx.Err() != nil {
				return
			}
		}
	}
}

// refresh performs one full listing and applies it
func (d *Directory) refresh(req request) {
	if req.done != nil {
		defer close(req.done)
	}

	result, err := d.lister.List(d.ctx)
	if d.ctx.Err() != nil {
		return
	}

	listed := []types.Session{}
	outcome := monitoring.OutcomeSuccess
	switch {
	case err != nil:
		outcome = monitoring.OutcomeError
		d.logger.Warn("Session listing failed",
			zap.String("trigger", req.reason),
			zap.Error(err))
	case !result.Success():
		outcome = result.Outcome()
		d.logger.Warn("Session listing returned a failure",
			zap.String("trigger", req.reason),
			zap.String("outcome", outcome))
	default:
		listed = append(listed, result.Value()...)
	}

	d.mu.Lock()
	d.sessions = listed
	watchers := make([]func([]types.Session), 0, len(d.watchers))
	for _, fn := range d.watchers {
		watchers = append(watchers, fn)
	}
	d.mu.Unlock()

	d.metrics.SetSessions(len(listed))
	d.metrics.RecordRefresh(outcome)
	d.logger.Debug("Directory refreshed",
		zap.String("trigger", req.reason),
		zap.Int("sessions", len(listed)))

	for _, fn := range watchers {
		fn(append([]types.Session{}, listed...))
	}
}
