package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/gestao-docs-api/internal/models"
)

type counterStore interface {
	Peek(ctx context.Context, scopeID string) (int64, error)
	IncrementAndGet(ctx context.Context, scopeID string) (int64, error)
}

// CounterService issues per-scope sequential numbers.
type CounterService struct {
	repo    counterStore
	metrics *MetricsService
	logger  *zap.Logger
}

// NewCounterService constructs a CounterService.
func NewCounterService(repo counterStore, metrics *MetricsService, logger *zap.Logger) *CounterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CounterService{repo: repo, metrics: metrics, logger: logger}
}

// PeekNext returns the value the next increment would yield. ok is false when
// the value is unknown; callers must not display a number in that case.
func (s *CounterService) PeekNext(ctx context.Context, scope models.CounterScope) (int64, bool) {
	if !scope.Valid() {
		return 0, false
	}
	next, err := s.repo.Peek(ctx, scope.Key())
	s.metrics.RecordCounterOperation("peek", err == nil)
	if err != nil {
		s.logger.Warn("counter peek failed", zap.String("scope", scope.Key()), zap.Error(err))
		return 0, false
	}
	return next, true
}

// IncrementAndGet atomically reserves the next value of the scope.
func (s *CounterService) IncrementAndGet(ctx context.Context, scope models.CounterScope) (int64, bool) {
	if !scope.Valid() {
		return 0, false
	}
	value, err := s.repo.IncrementAndGet(ctx, scope.Key())
	s.metrics.RecordCounterOperation("increment", err == nil)
	if err != nil {
		s.logger.Warn("counter increment failed", zap.String("scope", scope.Key()), zap.Error(err))
		return 0, false
	}
	return value, true
}
