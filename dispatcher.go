package auth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Listener consumes auth events fanned out by a Dispatcher.
type Listener interface {
	OnAuthEvent(ctx context.Context, event AuthEvent) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, event AuthEvent) error

// OnAuthEvent implements Listener.
func (f ListenerFunc) OnAuthEvent(ctx context.Context, event AuthEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// Subscription is the dispatcher's single upstream subscription.
type Subscription struct {
	mu          sync.Mutex
	released    bool
	unsubscribe func()
	onRelease   func()
}

// Release detaches from the provider stream. Only the first call has an effect.
func (s *Subscription) Release() {
	if s == nil {
		return
	}

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	unsubscribe := s.unsubscribe
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if s.onRelease != nil {
		s.onRelease()
	}
}

// attach stores the upstream handle. A subscription released while the
// source was still subscribing detaches right away.
func (s *Subscription) attach(unsubscribe func()) {
	s.mu.Lock()
	if !s.released {
		s.unsubscribe = unsubscribe
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger overrides the logger used for listener failures.
func WithDispatcherLogger(logger Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDispatcherClock injects a custom clock (useful for tests).
func WithDispatcherClock(clock func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if clock != nil {
			d.now = clock
		}
	}
}

// WithDispatcherContext sets the context events from the provider stream
// are delivered with.
func WithDispatcherContext(ctx context.Context) DispatcherOption {
	return func(d *Dispatcher) {
		if ctx != nil {
			d.baseCtx = ctx
		}
	}
}

type registration struct {
	id       uint64
	listener Listener
}

// Dispatcher holds the one subscription to the provider's auth stream and
// fans events out to registered listeners. Build one per process and pass
// it to every consumer.
type Dispatcher struct {
	source  EventSource
	logger  Logger
	now     func() time.Time
	baseCtx context.Context

	startMu sync.Mutex
	sub     *Subscription

	mu        sync.Mutex
	listeners []registration
	nextID    uint64

	seq atomic.Uint64
}

func NewDispatcher(source EventSource, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		source:  source,
		logger:  defLogger{},
		now:     time.Now,
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// EnsureStarted subscribes to the provider stream on the first call and
// returns that same Subscription on every later call. Once the subscription
// is released a later call subscribes again.
//
// The source is subscribed without holding the dispatcher's locks, so
// listeners may call back into the dispatcher while the initial session is
// delivered.
func (d *Dispatcher) EnsureStarted() (*Subscription, error) {
	d.startMu.Lock()
	if d.sub != nil {
		sub := d.sub
		d.startMu.Unlock()
		return sub, nil
	}

	if d.source == nil {
		d.startMu.Unlock()
		return nil, ErrProviderRequired
	}

	sub := &Subscription{}
	sub.onRelease = func() {
		d.startMu.Lock()
		defer d.startMu.Unlock()
		if d.sub == sub {
			d.sub = nil
		}
	}
	d.sub = sub
	d.startMu.Unlock()

	sub.attach(d.source.Subscribe(func(event AuthEvent) {
		d.Dispatch(d.baseCtx, event)
	}))

	d.logger.Debug("dispatcher: subscribed to provider auth stream")
	return sub, nil
}

// Started reports whether an upstream subscription is held.
func (d *Dispatcher) Started() bool {
	d.startMu.Lock()
	defer d.startMu.Unlock()
	return d.sub != nil
}

// AddListener registers l for every later event. The returned function
// removes it; calling it more than once is a no-op.
func (d *Dispatcher) AddListener(l Listener) (unsubscribe func()) {
	if l == nil {
		return func() {}
	}

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.listeners = append(d.listeners, registration{id: id, listener: l})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.removeListener(id)
		})
	}
}

// ListenerCount returns the number of registered listeners.
func (d *Dispatcher) ListenerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

func (d *Dispatcher) removeListener(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, reg := range d.listeners {
		if reg.id == id {
			// copy so snapshots already handed out keep their contents
			next := make([]registration, 0, len(d.listeners)-1)
			next = append(next, d.listeners[:i]...)
			next = append(next, d.listeners[i+1:]...)
			d.listeners = next
			return
		}
	}
}

// Dispatch delivers event to the listeners registered when the call
// starts, in registration order. A failing listener is logged and skipped.
// Events are delivered in the order Dispatch is called; the provider stream
// is expected to emit serially. Returns the event as delivered, with Seq and
// OccurredAt set.
func (d *Dispatcher) Dispatch(ctx context.Context, event AuthEvent) AuthEvent {
	event.Seq = d.seq.Add(1)
	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.now()
	}

	d.mu.Lock()
	snapshot := d.listeners
	d.mu.Unlock()

	for _, reg := range snapshot {
		if err := d.deliver(ctx, reg.listener, event); err != nil {
			d.logger.Error("dispatcher: listener %d failed on %s (seq=%d): %v", reg.id, event.Kind, event.Seq, err)
		}
	}

	return event
}

func (d *Dispatcher) deliver(ctx context.Context, l Listener, event AuthEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.OnAuthEvent(ctx, event)
}
