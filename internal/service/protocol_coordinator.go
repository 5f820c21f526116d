package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/gestao-docs-api/internal/models"
	"github.com/noah-isme/gestao-docs-api/internal/repository"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
)

const defaultProtocolAttempts = 3

type protocolMinter interface {
	IncrementAndGet(ctx context.Context, scope models.CounterScope) (int64, bool)
}

// WriteFunc persists the entity in its current state.
type WriteFunc func(ctx context.Context) error

// ProtocolCoordinator writes protocolled entities, re-minting the protocol when
// the store reports it is already taken.
type ProtocolCoordinator struct {
	counter     protocolMinter
	maxAttempts int
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewProtocolCoordinator constructs a coordinator allowing maxAttempts writes per save.
func NewProtocolCoordinator(counter protocolMinter, maxAttempts int, metrics *MetricsService, logger *zap.Logger) *ProtocolCoordinator {
	if maxAttempts <= 0 {
		maxAttempts = defaultProtocolAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProtocolCoordinator{counter: counter, maxAttempts: maxAttempts, metrics: metrics, logger: logger}
}

// Mint reserves a fresh protocol for the entity and applies it.
func (c *ProtocolCoordinator) Mint(ctx context.Context, entity models.Protocolled) error {
	scope := entity.CounterScope()
	seq, ok := c.counter.IncrementAndGet(ctx, scope)
	if !ok {
		return appErrors.Clone(appErrors.ErrUnavailable, "could not mint protocol")
	}
	entity.ApplyProtocol(seq, models.FormatProtocol(seq, scope.Year))
	return nil
}

// Save runs write until it succeeds. Protocol collisions trigger a re-mint and
// another attempt; any other error is returned as is.
func (c *ProtocolCoordinator) Save(ctx context.Context, entity models.Protocolled, write WriteFunc) error {
	for attempt := 1; ; attempt++ {
		err := write(ctx)
		if err == nil {
			c.metrics.RecordProtocolAttempt("ok")
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateProtocol) {
			c.metrics.RecordProtocolAttempt("error")
			return err
		}
		if attempt >= c.maxAttempts {
			c.metrics.RecordProtocolAttempt("exhausted")
			c.logger.Error("protocol allocation exhausted",
				zap.String("scope", entity.CounterScope().Key()),
				zap.String("protocol", entity.CurrentProtocol()),
				zap.Int("attempts", attempt))
			return appErrors.Wrap(err, appErrors.ErrProtocolExhausted.Code, appErrors.ErrProtocolExhausted.Status, appErrors.ErrProtocolExhausted.Message)
		}
		c.metrics.RecordProtocolAttempt("conflict")
		c.logger.Info("protocol collision, minting a new one",
			zap.String("protocol", entity.CurrentProtocol()), zap.Int("attempt", attempt))
		if err := c.Mint(ctx, entity); err != nil {
			return err
		}
	}
}
