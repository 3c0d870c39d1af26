package event

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	maxInFlight    = 10000
	handlerTimeout = 30 * time.Second
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

// Bus fans published events out to their subscribers on background
// goroutines. At most maxInFlight handlers run at once; each handler gets
// a context detached from the publisher's with a hard deadline, so a
// finished request cannot cancel a notification already in flight.
type Bus struct {
	slots    chan struct{}
	inflight sync.WaitGroup

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus returns a running bus. Call Stop before exiting so in-flight
// handlers can finish.
func NewBus() *Bus {
	return &Bus{
		slots:    make(chan struct{}, maxInFlight),
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers h for every event published under name.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[name] = append(b.handlers[name], h)
}

// Publish hands e to every handler subscribed to its name. It blocks only
// while waiting for a free dispatch slot.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, h := range b.handlers[e.Name()] {
		b.inflight.Add(1)
		b.slots <- struct{}{}
		go b.run(ctx, h, e)
	}
}

func (b *Bus) run(ctx context.Context, h Handler, e Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handlerTimeout)
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "event: handler panicked",
				"event", e.Name(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}

		cancel()
		<-b.slots
		b.inflight.Done()
	}()

	if err := h(ctx, e); err != nil {
		slog.ErrorContext(ctx, "event: handler failed",
			"event", e.Name(),
			"error", err,
		)
	}
}

// Stop blocks until every in-flight handler has returned.
func (b *Bus) Stop() {
	b.inflight.Wait()
}
