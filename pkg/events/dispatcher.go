package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/botflow/internal/logging"
	"github.com/aretw0/botflow/pkg/domain"
)

// Subscriber consumes domain events.
type Subscriber interface {
	Handle(ctx context.Context, evt domain.DomainEvent) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, evt domain.DomainEvent) error

// Handle implements Subscriber.
func (f SubscriberFunc) Handle(ctx context.Context, evt domain.DomainEvent) error {
	return f(ctx, evt)
}

type subscription struct {
	name  string
	sub   Subscriber
	types map[domain.EventType]bool // empty means every type
}

func (s subscription) wants(t domain.EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

const (
	defaultBuffer  = 1024
	defaultWorkers = 4
	defaultTimeout = 5 * time.Second
)

// Dispatcher implements ports.EventPublisher.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   []subscription
	closed bool

	queue   chan domain.DomainEvent
	wg      sync.WaitGroup
	workers int
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithWorkers sets the number of delivery goroutines.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithBuffer sets the queue capacity. Events published to a full queue are dropped.
func WithBuffer(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan domain.DomainEvent, n)
		}
	}
}

// WithHandlerTimeout bounds a single subscriber call.
func WithHandlerTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// NewDispatcher creates a dispatcher and starts its workers.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:   make(chan domain.DomainEvent, defaultBuffer),
		workers: defaultWorkers,
		timeout: defaultTimeout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.loop()
	}
	return d
}

// Subscribe registers sub for the given types, or for every type when none is given.
func (d *Dispatcher) Subscribe(name string, sub Subscriber, types ...domain.EventType) {
	filter := make(map[domain.EventType]bool, len(types))
	for _, t := range types {
		filter[t] = true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, subscription{name: name, sub: sub, types: filter})
}

// Publish enqueues evt without blocking. It is a no-op after Close.
func (d *Dispatcher) Publish(evt domain.DomainEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- evt:
	default:
		d.logger.Warn("event queue full, dropping event",
			"type", evt.Type,
			"tenant", evt.TenantID,
			"event_id", evt.ID,
		)
	}
}

// Close stops accepting events and waits for queued ones to be delivered
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

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

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for evt := range d.queue {
		d.deliver(evt)
	}
}

func (d *Dispatcher) deliver(evt domain.DomainEvent) {
	d.mu.RLock()
	subs := make([]subscription, len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	for _, s := range subs {
		if !s.wants(evt.Type) {
			continue
		}
		if err := d.invoke(s, evt); err != nil {
			d.logger.Warn("event subscriber failed",
				"subscriber", s.name,
				"type", evt.Type,
				"tenant", evt.TenantID,
				"err", err,
			)
		}
	}
}

func (d *Dispatcher) invoke(s subscription, evt domain.DomainEvent) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("subscriber panicked: %v", p)
		}
	}()
	return s.sub.Handle(ctx, evt)
}
