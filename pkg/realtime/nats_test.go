package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNATSBroker(t *testing.T) *NATSBroker {
	t.Helper()
	srv := natstest.RunRandClientPortServer()
	t.Cleanup(srv.Shutdown)

	broker, err := NewNATSBroker(NATSConfig{URL: srv.ClientURL(), Name: "test", SubjectPrefix: ".rt."}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = broker.Close() })
	return broker
}

func TestNATSBrokerRoutesByTable(t *testing.T) {
	broker := newNATSBroker(t)
	assert.Equal(t, "rt.messages", broker.subject("messages"))

	got := make(chan Event, 4)
	_, err := broker.Subscribe("messages", func(evt Event) { got <- evt })
	require.NoError(t, err)
	other := make(chan Event, 4)
	_, err = broker.Subscribe("audit_logs", func(evt Event) { other <- evt })
	require.NoError(t, err)

	// malformed payloads on the subject are skipped
	require.NoError(t, broker.nc.Publish("rt.messages", []byte("nope")))
	require.NoError(t, broker.Publish(context.Background(), Event{
		Type:   EventInsert,
		Table:  "messages",
		ID:     "m1",
		Record: json.RawMessage(`{"id":"m1"}`),
	}))

	select {
	case evt := <-got:
		assert.Equal(t, EventInsert, evt.Type)
		assert.Equal(t, "m1", evt.ID)
		assert.JSONEq(t, `{"id":"m1"}`, string(evt.Record))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	require.NoError(t, broker.nc.Flush())
	assert.Empty(t, got)
	assert.Empty(t, other)
}

func TestNATSBrokerUnsubscribe(t *testing.T) {
	broker := newNATSBroker(t)
	got := make(chan Event, 4)
	sub, err := broker.Subscribe("messages", func(evt Event) { got <- evt })
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe())

	require.NoError(t, broker.Publish(context.Background(), Event{Type: EventDelete, Table: "messages", ID: "m1"}))
	require.NoError(t, broker.nc.Flush())
	select {
	case <-got:
		t.Fatal("delivered after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}
