package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"modqueue/internal/errs"
	"modqueue/internal/ports"
)

const defaultMemoryBacklog = 512

type Handler = func(ctx context.Context, event ports.Event)

// MemoryBus delivers events to in-process subscribers and keeps a bounded
// backlog of what was published.
type MemoryBus struct {
	mu       sync.RWMutex
	backlog  int
	events   []ports.Event
	handlers map[uint64]Handler
	nextID   uint64
	now      func() time.Time
}

var _ ports.EventBus = (*MemoryBus)(nil)

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		backlog:  defaultMemoryBacklog,
		handlers: map[uint64]Handler{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (b *MemoryBus) Publish(ctx context.Context, event ports.Event) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	event = stamp(event, b.now)

	b.mu.Lock()
	b.events = append(b.events, event)
	if overflow := len(b.events) - b.backlog; overflow > 0 {
		b.events = append([]ports.Event(nil), b.events[overflow:]...)
	}
	handlers := make([]Handler, 0, len(b.handlers))
	for _, handler := range b.handlers {
		handlers = append(handlers, handler)
	}
	b.mu.Unlock()

	for _, handler := range handlers {
		handler(ctx, event)
	}
	return nil
}

// Subscribe registers handler; the returned func removes it.
func (b *MemoryBus) Subscribe(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

func (b *MemoryBus) Events() []ports.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]ports.Event(nil), b.events...)
}

// Named returns published events with the given name, oldest first.
func (b *MemoryBus) Named(name string) []ports.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []ports.Event
	for _, event := range b.events {
		if event.Name == name {
			out = append(out, event)
		}
	}
	return out
}

func (b *MemoryBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

func stamp(event ports.Event, now func() time.Time) ports.Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now()
	}
	return event
}
