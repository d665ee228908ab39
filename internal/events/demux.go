package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/tart/internal/host"
	"github.com/GriffinCanCode/tart/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tart/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tart/internal/shared/id"
)

// DefaultChannel is the host event channel shared by all subscriptions
const DefaultChannel = "tart://event"

var (
	ErrClosed     = errors.New("demux is closed")
	ErrNilHandler = errors.New("nil event handler")
)

// Handler receives one decoded event
type Handler func(Event)

// Subscriber registers handlers by tag. Demux is the production Subscriber.
type Subscriber interface {
	Subscribe(ctx context.Context, tag Tag, fn Handler) (*Subscription, error)
}

// Options configures a Demux
type Options struct {
	Channel string
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Demux shares one host channel listener between any number of tagged
// subscriptions. The listener is opened on the first Subscribe and released
// when the last subscription closes. Events are delivered in host order
// from a single goroutine, so handlers of one Demux never run concurrently.
type Demux struct {
	listener host.Listener
	channel  string
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	// lifeMu serializes opening and releasing the host listener
	lifeMu   sync.Mutex
	unlisten host.Unlisten

	mu     sync.Mutex
	table  map[Tag]map[id.SubscriptionID]*Subscription
	count  int
	closed bool

	box       *mailbox
	startOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// New creates a demux over listener. Nothing is opened until Subscribe.
func New(listener host.Listener, opts Options) *Demux {
	channel := opts.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	return &Demux{
		listener: listener,
		channel:  channel,
		logger:   logging.OrNop(opts.Logger).Named("events"),
		metrics:  opts.Metrics,
		table:    make(map[Tag]map[id.SubscriptionID]*Subscription),
		box:      newMailbox(),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Subscribe registers fn for events tagged tag. The first subscription
// waits for the host listener to be set up.
func (d *Demux) Subscribe(ctx context.Context, tag Tag, fn Handler) (*Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}

	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	if d.isClosed() {
		return nil, ErrClosed
	}

	if d.unlisten == nil {
		d.startOnce.Do(func() { go d.deliverLoop() })

		unlisten, err := d.listener.Listen(ctx, d.channel, d.enqueue)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", d.channel, err)
		}
		d.unlisten = unlisten
		d.logger.Debug("Opened host listener", zap.String("channel", d.channel))
	}

	sub := &Subscription{
		id:    id.NewSubscriptionID(),
		tag:   tag,
		fn:    fn,
		demux: d,
	}
	sub.active.Store(true)

	d.mu.Lock()
	if d.table[tag] == nil {
		d.table[tag] = make(map[id.SubscriptionID]*Subscription)
	}
	d.table[tag][sub.id] = sub
	d.count++
	count := d.count
	d.mu.Unlock()

	d.metrics.SetSubscriptions(count)
	return sub, nil
}

// OnCreated subscribes fn to session-created events
func OnCreated(ctx context.Context, s Subscriber, fn func(SessionCreated)) (*Subscription, error) {
	return s.Subscribe(ctx, TagCreated, func(e Event) {
		if ev, ok := e.(SessionCreated); ok {
			fn(ev)
		}
	})
}

// OnResized subscribes fn to session-resized events
func OnResized(ctx context.Context, s Subscriber, fn func(SessionResized)) (*Subscription, error) {
	return s.Subscribe(ctx, TagResized, func(e Event) {
		if ev, ok := e.(SessionResized); ok {
			fn(ev)
		}
	})
}

// OnRemoved subscribes fn to session-removed events
func OnRemoved(ctx context.Context, s Subscriber, fn func(SessionRemoved)) (*Subscription, error) {
	return s.Subscribe(ctx, TagRemoved, func(e Event) {
		if ev, ok := e.(SessionRemoved); ok {
			fn(ev)
		}
	})
}

// OnOutput subscribes fn to session-output events
func OnOutput(ctx context.Context, s Subscriber, fn func(SessionOutput)) (*Subscription, error) {
	return s.Subscribe(ctx, TagOutput, func(e Event) {
		if ev, ok := e.(SessionOutput); ok {
			fn(ev)
		}
	})
}

// Sync waits until every payload received before the call has been
// delivered. It is a synchronization point for callers that need to know
// no earlier delivery is still pending.
func (d *Demux) Sync(ctx context.Context) error {
	if d.isClosed() {
		return ErrClosed
	}
	d.startOnce.Do(func() { go d.deliverLoop() })

	done := make(chan struct{})
	d.box.push(item{done: done})

	select {
	case <-done:
		return nil
	case <-d.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of active subscriptions
func (d *Demux) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Close removes every subscription, releases the host listener and stops
// delivery. Close is idempotent.
func (d *Demux) Close() error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, subs := range d.table {
		for _, sub := range subs {
			sub.active.Store(false)
		}
	}
	d.table = make(map[Tag]map[id.SubscriptionID]*Subscription)
	d.count = 0
	d.mu.Unlock()

	d.metrics.SetSubscriptions(0)
	close(d.done)

	return d.releaseLocked()
}

func (d *Demux) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// remove drops sub from the table and releases the listener once the
// table is empty.
func (d *Demux) remove(sub *Subscription) {
	d.mu.Lock()
	subs, ok := d.table[sub.tag]
	if !ok {
		d.mu.Unlock()
		return
	}
	if _, present := subs[sub.id]; !present {
		d.mu.Unlock()
		return
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(d.table, sub.tag)
	}
	d.count--
	count := d.count
	d.mu.Unlock()

	d.metrics.SetSubscriptions(count)
	if count > 0 {
		return
	}

	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	// A Subscribe may have raced in while the lock was free
	if d.Len() == 0 {
		if err := d.releaseLocked(); err != nil {
			d.logger.Warn("Failed to release host listener", zap.Error(err))
		}
	}
}

// releaseLocked releases the host listener. Callers hold lifeMu.
func (d *Demux) releaseLocked() error {
	if d.unlisten == nil {
		return nil
	}
	unlisten := d.unlisten
	d.unlisten = nil
	d.logger.Debug("Released host listener", zap.String("channel", d.channel))
	return unlisten()
}

// enqueue is the host handler; it runs on the transport goroutine
func (d *Demux) enqueue(payload json.RawMessage) {
	d.box.push(item{payload: payload})
}

func (d *Demux) deliverLoop() {
	defer close(d.stopped)
	for {
		select {
		case <-d.done:
			return
		case <-d.box.signal:
		}

		for _, it := range d.box.drain() {
			select {
			case <-d.done:
				return
			default:
			}
			if it.done != nil {
				close(it.done)
				continue
			}
			d.deliver(it.payload)
		}
	}
}

func (d *Demux) deliver(payload json.RawMessage) {
	event, err := Decode(payload)
	if err != nil {
		d.metrics.IncEventsDropped()
		d.logger.Warn("Dropping undecodable event", zap.Error(err))
		return
	}
	tag := event.Tag()
	d.metrics.RecordEventReceived(string(tag))

	for _, sub := range d.subscribers(tag) {
		// Closed subscriptions never start a delivery
		if !sub.active.Load() {
			continue
		}
		sub.fn(event)
		d.metrics.RecordEventDelivered(string(tag))
	}
}

// subscribers snapshots the subscriptions for tag in subscription order
func (d *Demux) subscribers(tag Tag) []*Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	subs := make([]*Subscription, 0, len(d.table[tag]))
	for _, sub := range d.table[tag] {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
	return subs
}

// Subscription is a handle on one registered handler
type Subscription struct {
	id     id.SubscriptionID
	tag    Tag
	fn     Handler
	demux  *Demux
	active atomic.Bool
	once   sync.Once
}

// ID returns the subscription id
func (s *Subscription) ID() id.SubscriptionID {
	return s.id
}

// Tag returns the tag the subscription listens for
func (s *Subscription) Tag() Tag {
	return s.tag
}

// Close stops further deliveries to the handler. A delivery already in
// progress when Close is called may still complete; none starts after
// Close returns. Close may be called from inside the handler.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.active.Store(false)
		s.demux.remove(s)
	})
}
