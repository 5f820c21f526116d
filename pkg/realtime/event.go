// Package realtime carries table-change events and presence state between the database,
// the API nodes and connected chat sessions.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// EventType enumerates row-level change kinds.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ErrClosed is returned when publishing on a closed broker.
var ErrClosed = errors.New("realtime: broker closed")

// Event is a single row change for a logical table.
type Event struct {
	Type       EventType       `json:"type"`
	Table      string          `json:"table"`
	ID         string          `json:"id,omitempty"`
	Record     json.RawMessage `json:"record,omitempty"`
	OldRecord  json.RawMessage `json:"old_record,omitempty"`
	CommitTime time.Time       `json:"commit_time"`
}

// Decode unmarshals the row carried by the event. DELETE events carry the old row only.
func (e Event) Decode(dest interface{}) error {
	raw := e.Record
	if len(raw) == 0 || string(raw) == "null" {
		raw = e.OldRecord
	}
	if len(raw) == 0 {
		return errors.New("realtime: event carries no record")
	}
	return json.Unmarshal(raw, dest)
}

// Handler consumes events. Handlers must not block for long; brokers deliver in emission order.
type Handler func(Event)

// Subscription is a live registration on a broker or presence channel.
type Subscription interface {
	Unsubscribe() error
}

// Broker fans table-change events out to subscribers regardless of any active query.
type Broker interface {
	Publish(ctx context.Context, evt Event) error
	Subscribe(table string, h Handler) (Subscription, error)
	Close() error
}

type subscriptionFunc func() error

func (f subscriptionFunc) Unsubscribe() error { return f() }
