package realtime

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker delivers events synchronously to in-process subscribers.
type MemoryBroker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
	closed bool
}

// NewMemoryBroker constructs an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[int]Handler)}
}

// Publish delivers the event to every subscriber of its table.
func (b *MemoryBroker) Publish(_ context.Context, evt Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]Handler, 0, len(b.subs[evt.Table]))
	for _, h := range b.subs[evt.Table] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	if evt.CommitTime.IsZero() {
		evt.CommitTime = time.Now().UTC()
	}
	for _, h := range handlers {
		h(evt)
	}
	return nil
}

// Subscribe registers a handler for a table.
func (b *MemoryBroker) Subscribe(table string, h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	b.nextID++
	id := b.nextID
	if b.subs[table] == nil {
		b.subs[table] = make(map[int]Handler)
	}
	b.subs[table][id] = h
	return subscriptionFunc(func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[table], id)
		return nil
	}), nil
}

// Close drops all subscribers.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string]map[int]Handler)
	return nil
}
