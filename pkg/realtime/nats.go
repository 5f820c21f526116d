package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSConfig configures the NATS-backed broker.
type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
}

// NATSBroker fans events out across API nodes through NATS core subjects.
type NATSBroker struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

// NewNATSBroker connects to NATS.
func NewNATSBroker(cfg NATSConfig, logger *zap.Logger) (*NATSBroker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := strings.Trim(cfg.SubjectPrefix, ".")
	if prefix == "" {
		prefix = "realtime"
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSBroker{nc: nc, prefix: prefix, logger: logger}, nil
}

func (b *NATSBroker) subject(table string) string {
	return b.prefix + "." + table
}

// Publish serialises the event onto the table subject.
func (b *NATSBroker) Publish(_ context.Context, evt Event) error {
	if b.nc == nil || b.nc.IsClosed() {
		return ErrClosed
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.nc.Publish(b.subject(evt.Table), payload); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Table, err)
	}
	return nil
}

// Subscribe registers a handler on the table subject. NATS delivers messages of one
// subscription sequentially, preserving emission order.
func (b *NATSBroker) Subscribe(table string, h Handler) (Subscription, error) {
	sub, err := b.nc.Subscribe(b.subject(table), func(m *nats.Msg) {
		var evt Event
		if err := json.Unmarshal(m.Data, &evt); err != nil {
			b.logger.Warn("drop malformed event", zap.String("subject", m.Subject), zap.Error(err))
			return
		}
		h(evt)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
	return sub, nil
}

// Close drains subscriptions and closes the connection.
func (b *NATSBroker) Close() error {
	if b.nc == nil || b.nc.IsClosed() {
		return nil
	}
	return b.nc.Drain()
}
