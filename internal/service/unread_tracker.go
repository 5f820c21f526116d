package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type unreadCounter interface {
	CountUnread(ctx context.Context, userID, sectorID string) (int, error)
}

// UnreadTracker keeps the unread message count of one user. The count is
// authoritative after each server query and incremented locally in between.
type UnreadTracker struct {
	store    unreadCounter
	userID   string
	sectorID string
	interval time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	count    int
	onChange func(int)
}

// NewUnreadTracker constructs a tracker polling every interval.
func NewUnreadTracker(store unreadCounter, userID, sectorID string, interval time.Duration, logger *zap.Logger) *UnreadTracker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnreadTracker{store: store, userID: userID, sectorID: sectorID, interval: interval, logger: logger}
}

// OnChange registers the callback fired whenever the count changes.
func (t *UnreadTracker) OnChange(fn func(int)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Count returns the current unread count.
func (t *UnreadTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Refresh replaces the count with the server's. On failure the previous count is kept.
func (t *UnreadTracker) Refresh(ctx context.Context) error {
	count, err := t.store.CountUnread(ctx, t.userID, t.sectorID)
	if err != nil {
		t.logger.Warn("unread refresh failed", zap.String("user_id", t.userID), zap.Error(err))
		return err
	}
	t.set(func(int) int { return count })
	return nil
}

// Increment bumps the count by one.
func (t *UnreadTracker) Increment() {
	t.set(func(c int) int { return c + 1 })
}

// Run re-queries the server every interval until ctx is done.
func (t *UnreadTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = t.Refresh(ctx)
		}
	}
}

func (t *UnreadTracker) set(next func(int) int) {
	t.mu.Lock()
	prev := t.count
	t.count = next(prev)
	count, fn := t.count, t.onChange
	t.mu.Unlock()
	if fn != nil && count != prev {
		fn(count)
	}
}
