package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, broker Broker, table string) *[]Event {
	t.Helper()
	var got []Event
	_, err := broker.Subscribe(table, func(evt Event) { got = append(got, evt) })
	require.NoError(t, err)
	return &got
}

func TestPGListenerHydratesIDOnlyNotifications(t *testing.T) {
	broker := NewMemoryBroker()
	got := collect(t, broker, "messages")
	var loaded []string
	listener := NewPGListener(nil, "", broker, nil).Hydrate("messages", func(_ context.Context, id string) (json.RawMessage, error) {
		loaded = append(loaded, id)
		return json.RawMessage(`{"id":"` + id + `","body":"olá"}`), nil
	})

	require.NoError(t, listener.relay(context.Background(), []byte(`{"type":"INSERT","table":"messages","id":"m1"}`)))
	require.NoError(t, listener.relay(context.Background(), []byte(`{"type":"DELETE","table":"messages","id":"m2","old_record":{"id":"m2","sender_id":"u1"}}`)))

	assert.Equal(t, []string{"m1"}, loaded)
	require.Len(t, *got, 2)
	var row struct {
		ID   string `json:"id"`
		Body string `json:"body"`
	}
	require.NoError(t, (*got)[0].Decode(&row))
	assert.Equal(t, "olá", row.Body)
	require.NoError(t, (*got)[1].Decode(&row))
	assert.Equal(t, "m2", row.ID)
}

func TestPGListenerDropsGoneAndFailedRows(t *testing.T) {
	broker := NewMemoryBroker()
	got := collect(t, broker, "messages")
	fail := true
	listener := NewPGListener(nil, "", broker, nil).Hydrate("messages", func(context.Context, string) (json.RawMessage, error) {
		if fail {
			return nil, errors.New("connection reset")
		}
		return nil, nil
	})

	require.NoError(t, listener.relay(context.Background(), []byte(`{"type":"UPDATE","table":"messages","id":"m1"}`)))
	fail = false
	require.NoError(t, listener.relay(context.Background(), []byte(`{"type":"INSERT","table":"messages","id":"m1"}`)))
	require.NoError(t, listener.relay(context.Background(), []byte(`garbage`)))
	assert.Empty(t, *got)
}

func TestPGListenerStopsOnClosedBroker(t *testing.T) {
	broker := NewMemoryBroker()
	require.NoError(t, broker.Close())
	listener := NewPGListener(nil, "", broker, nil)

	err := listener.relay(context.Background(), []byte(`{"type":"INSERT","table":"audit_logs","id":"a1"}`))
	assert.True(t, errors.Is(err, ErrClosed))
}
