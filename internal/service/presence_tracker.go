package service

import (
	"context"
	"sort"
	"sync"

	"github.com/noah-isme/gestao-docs-api/pkg/realtime"
)

// PresenceTracker derives the online user set from a presence channel.
type PresenceTracker struct {
	channel realtime.Presence
	key     string

	mu       sync.Mutex
	online   map[string]struct{}
	sub      realtime.Subscription
	onChange func([]string)
}

// NewPresenceTracker constructs a tracker announcing key on channel.
func NewPresenceTracker(channel realtime.Presence, key string) *PresenceTracker {
	return &PresenceTracker{channel: channel, key: key, online: make(map[string]struct{})}
}

// OnChange registers the callback fired whenever the set changes.
func (p *PresenceTracker) OnChange(fn func([]string)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// Start subscribes to the channel, seeds the set and announces the local key.
func (p *PresenceTracker) Start(ctx context.Context) error {
	sub, err := p.channel.Subscribe(p.apply)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.sub = sub
	p.mu.Unlock()

	members, err := p.channel.Members(ctx)
	if err == nil {
		p.apply(realtime.PresenceEvent{Type: realtime.PresenceSync, Keys: members})
	}
	return p.channel.Track(ctx, p.key)
}

// Stop withdraws the local key and unsubscribes.
func (p *PresenceTracker) Stop(ctx context.Context) error {
	err := p.channel.Untrack(ctx, p.key)
	p.mu.Lock()
	sub := p.sub
	p.sub = nil
	p.mu.Unlock()
	if sub != nil {
		_ = sub.Unsubscribe()
	}
	return err
}

// Online returns the sorted online user ids.
func (p *PresenceTracker) Online() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onlineLocked()
}

// IsOnline reports whether userID is present.
func (p *PresenceTracker) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.online[userID]
	return ok
}

func (p *PresenceTracker) apply(evt realtime.PresenceEvent) {
	p.mu.Lock()
	switch evt.Type {
	case realtime.PresenceSync:
		p.online = make(map[string]struct{}, len(evt.Keys))
		for _, k := range evt.Keys {
			p.online[k] = struct{}{}
		}
	case realtime.PresenceJoin:
		p.online[evt.Key] = struct{}{}
	case realtime.PresenceLeave:
		delete(p.online, evt.Key)
	default:
		p.mu.Unlock()
		return
	}
	online, fn := p.onlineLocked(), p.onChange
	p.mu.Unlock()
	if fn != nil {
		fn(online)
	}
}

func (p *PresenceTracker) onlineLocked() []string {
	out := make([]string, 0, len(p.online))
	for k := range p.online {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
