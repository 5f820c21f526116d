package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gestao-docs-api/pkg/realtime"
)

func TestPresenceTrackerFollowsChannel(t *testing.T) {
	channel := realtime.NewMemoryPresence()
	require.NoError(t, channel.Track(context.Background(), "u2"))

	tracker := NewPresenceTracker(channel, "me")
	var last []string
	tracker.OnChange(func(online []string) { last = online })
	require.NoError(t, tracker.Start(context.Background()))

	assert.Equal(t, []string{"me", "u2"}, tracker.Online())
	assert.Equal(t, []string{"me", "u2"}, last)
	assert.True(t, tracker.IsOnline("u2"))

	require.NoError(t, channel.Track(context.Background(), "u3"))
	assert.True(t, tracker.IsOnline("u3"))

	require.NoError(t, channel.Untrack(context.Background(), "u2"))
	assert.False(t, tracker.IsOnline("u2"))
	assert.Equal(t, []string{"me", "u3"}, last)

	require.NoError(t, tracker.Stop(context.Background()))
	members, err := channel.Members(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"u3"}, members)

	require.NoError(t, channel.Track(context.Background(), "u4"))
	assert.False(t, tracker.IsOnline("u4"))
}

func TestPresenceTrackerIgnoresUnknownEvents(t *testing.T) {
	tracker := NewPresenceTracker(realtime.NewMemoryPresence(), "me")
	calls := 0
	tracker.OnChange(func([]string) { calls++ })
	tracker.apply(realtime.PresenceEvent{Type: "heartbeat"})
	assert.Zero(t, calls)
	assert.Empty(t, tracker.Online())
}
