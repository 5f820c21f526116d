package realtime

import (
	"context"
	"sort"
	"sync"
)

// PresenceEventType enumerates presence channel notifications.
type PresenceEventType string

const (
	PresenceJoin  PresenceEventType = "join"
	PresenceLeave PresenceEventType = "leave"
	PresenceSync  PresenceEventType = "sync"
)

// PresenceEvent is emitted on every membership change. Sync events carry the full member list.
type PresenceEvent struct {
	Type PresenceEventType `json:"type"`
	Key  string            `json:"key,omitempty"`
	Keys []string          `json:"keys,omitempty"`
}

// PresenceHandler consumes presence events.
type PresenceHandler func(PresenceEvent)

// Presence is a join/leave/sync channel keyed by opaque client-supplied keys.
// A key may be tracked by several connections; it leaves only when the last one untracks.
type Presence interface {
	Track(ctx context.Context, key string) error
	Untrack(ctx context.Context, key string) error
	Members(ctx context.Context) ([]string, error)
	Subscribe(h PresenceHandler) (Subscription, error)
	Close() error
}

// MemoryPresence keeps presence state in-process.
type MemoryPresence struct {
	mu       sync.Mutex
	refs     map[string]int
	handlers map[int]PresenceHandler
	nextID   int
}

// NewMemoryPresence constructs an empty presence channel.
func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{refs: make(map[string]int), handlers: make(map[int]PresenceHandler)}
}

// Track registers a connection for key.
func (p *MemoryPresence) Track(_ context.Context, key string) error {
	p.mu.Lock()
	p.refs[key]++
	joined := p.refs[key] == 1
	keys := p.keysLocked()
	handlers := p.handlersLocked()
	p.mu.Unlock()

	if joined {
		dispatch(handlers, PresenceEvent{Type: PresenceJoin, Key: key})
	}
	dispatch(handlers, PresenceEvent{Type: PresenceSync, Keys: keys})
	return nil
}

// Untrack releases a connection for key.
func (p *MemoryPresence) Untrack(_ context.Context, key string) error {
	p.mu.Lock()
	if p.refs[key] == 0 {
		p.mu.Unlock()
		return nil
	}
	p.refs[key]--
	left := p.refs[key] == 0
	if left {
		delete(p.refs, key)
	}
	keys := p.keysLocked()
	handlers := p.handlersLocked()
	p.mu.Unlock()

	if left {
		dispatch(handlers, PresenceEvent{Type: PresenceLeave, Key: key})
	}
	dispatch(handlers, PresenceEvent{Type: PresenceSync, Keys: keys})
	return nil
}

// Members returns the tracked keys.
func (p *MemoryPresence) Members(_ context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keysLocked(), nil
}

// Subscribe registers a presence handler.
func (p *MemoryPresence) Subscribe(h PresenceHandler) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.handlers[id] = h
	return subscriptionFunc(func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, id)
		return nil
	}), nil
}

// Close drops all handlers.
func (p *MemoryPresence) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = make(map[int]PresenceHandler)
	return nil
}

func (p *MemoryPresence) keysLocked() []string {
	keys := make([]string, 0, len(p.refs))
	for k := range p.refs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *MemoryPresence) handlersLocked() []PresenceHandler {
	out := make([]PresenceHandler, 0, len(p.handlers))
	for _, h := range p.handlers {
		out = append(out, h)
	}
	return out
}

func dispatch(handlers []PresenceHandler, evt PresenceEvent) {
	for _, h := range handlers {
		h(evt)
	}
}
