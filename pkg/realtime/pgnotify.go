package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// RowLoader returns the current row for id as JSON. A nil row with a nil
// error means the row no longer exists.
type RowLoader func(ctx context.Context, id string) (json.RawMessage, error)

// PGListener relays Postgres NOTIFY payloads emitted by table triggers onto a Broker.
// Triggers send ids only; rows are loaded before publishing for tables with a loader.
type PGListener struct {
	pool     *pgxpool.Pool
	channel  string
	broker   Broker
	loaders  map[string]RowLoader
	logger   *zap.Logger
	minDelay time.Duration
	maxDelay time.Duration
}

// NewPGListener constructs a listener for the given notification channel.
func NewPGListener(pool *pgxpool.Pool, channel string, broker Broker, logger *zap.Logger) *PGListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	if channel == "" {
		channel = "table_changes"
	}
	return &PGListener{
		pool:     pool,
		channel:  channel,
		broker:   broker,
		loaders:  map[string]RowLoader{},
		logger:   logger,
		minDelay: 500 * time.Millisecond,
		maxDelay: 30 * time.Second,
	}
}

// Hydrate registers the loader used to fill INSERT and UPDATE events of table.
func (l *PGListener) Hydrate(table string, load RowLoader) *PGListener {
	l.loaders[table] = load
	return l
}

// Run blocks until ctx is cancelled, re-establishing LISTEN after connection failures.
func (l *PGListener) Run(ctx context.Context) error {
	delay := l.minDelay
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("pg listener interrupted", zap.String("channel", l.channel), zap.Duration("retry_in", delay), zap.Error(err))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		delay *= 2
		if delay > l.maxDelay {
			delay = l.maxDelay
		}
	}
}

func (l *PGListener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	l.logger.Info("pg listener started", zap.String("channel", l.channel))

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if err := l.relay(ctx, []byte(n.Payload)); err != nil {
			return err
		}
	}
}

// relay publishes one notification. Only a closed broker is returned as an
// error; anything else drops the notification.
func (l *PGListener) relay(ctx context.Context, payload []byte) error {
	evt, err := ParseNotification(payload)
	if err != nil {
		l.logger.Warn("drop malformed notification", zap.String("channel", l.channel), zap.Error(err))
		return nil
	}
	if load, ok := l.loaders[evt.Table]; ok && evt.Type != EventDelete && len(evt.Record) == 0 {
		row, err := load(ctx, evt.ID)
		if err != nil {
			l.logger.Warn("load notified row failed", zap.String("table", evt.Table), zap.String("id", evt.ID), zap.Error(err))
			return nil
		}
		if row == nil {
			l.logger.Debug("notified row is gone", zap.String("table", evt.Table), zap.String("id", evt.ID))
			return nil
		}
		evt.Record = row
	}
	if err := l.broker.Publish(ctx, evt); err != nil {
		if errors.Is(err, ErrClosed) {
			return err
		}
		l.logger.Warn("relay notification failed", zap.String("table", evt.Table), zap.Error(err))
	}
	return nil
}

// ParseNotification decodes a trigger payload into an Event.
func ParseNotification(payload []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Event{}, fmt.Errorf("decode notification: %w", err)
	}
	switch evt.Type {
	case EventInsert, EventUpdate, EventDelete:
	default:
		return Event{}, fmt.Errorf("unknown event type %q", evt.Type)
	}
	if evt.Table == "" {
		return Event{}, errors.New("notification without table")
	}
	if evt.ID == "" && len(evt.Record) == 0 && len(evt.OldRecord) == 0 {
		return Event{}, errors.New("notification without row reference")
	}
	if evt.CommitTime.IsZero() {
		evt.CommitTime = time.Now().UTC()
	}
	return evt, nil
}
