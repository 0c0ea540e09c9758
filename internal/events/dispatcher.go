package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/smallbiznis/crmbilling/internal/observability/metrics"
	"go.uber.org/zap"
)

// Handler reacts to a committed event. Failures are logged and never
// propagate to the operation that emitted the event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error { return f(ctx, event) }

// Publisher is what services depend on to emit events after commit.
type Publisher interface {
	Publish(ctx context.Context, events ...Event)
}

type subscription struct {
	name    string
	handler Handler
}

// Dispatcher fans events out to in-process subscribers on background goroutines.
type Dispatcher struct {
	log     *zap.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	byType   map[Type][]subscription
	wildcard []subscription

	wg sync.WaitGroup
}

func NewDispatcher(log *zap.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		log:     log.Named("events.dispatcher"),
		metrics: m,
		byType:  map[Type][]subscription{},
	}
}

// Subscribe registers a handler for the given event types, or every event when none are given.
func (d *Dispatcher) Subscribe(name string, h Handler, types ...Type) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sub := subscription{name: name, handler: h}
	if len(types) == 0 {
		d.wildcard = append(d.wildcard, sub)
		return
	}
	for _, t := range types {
		d.byType[t] = append(d.byType[t], sub)
	}
}

func (d *Dispatcher) Publish(ctx context.Context, events ...Event) {
	detached := context.WithoutCancel(ctx)
	for _, event := range events {
		for _, sub := range d.subscribers(event.Type) {
			d.wg.Add(1)
			go d.deliver(detached, sub, event)
		}
	}
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) subscribers(t Type) []subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()

	subs := make([]subscription, 0, len(d.byType[t])+len(d.wildcard))
	subs = append(subs, d.byType[t]...)
	subs = append(subs, d.wildcard...)
	return subs
}

func (d *Dispatcher) deliver(ctx context.Context, sub subscription, event Event) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.fail(ctx, sub, event, fmt.Errorf("handler panic: %v", r))
		}
	}()

	if err := sub.handler.Handle(ctx, event); err != nil {
		d.fail(ctx, sub, event, err)
	}
}

func (d *Dispatcher) fail(ctx context.Context, sub subscription, event Event, err error) {
	d.metrics.RecordNotificationFailed(ctx, string(event.Type))
	d.log.Warn("event handler failed",
		zap.String("handler", sub.name),
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("company_id", event.CompanyID.String()),
		zap.Error(err),
	)
}

// Recorder collects published events; used where a Publisher is needed without side effects.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, events ...Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types lists recorded event types in publish order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
