package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// CounterRepository manages sequential counters.
type CounterRepository struct {
	db *sqlx.DB
}

// NewCounterRepository constructs a CounterRepository.
func NewCounterRepository(db *sqlx.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

// Peek returns the value the next increment would yield without reserving it.
func (r *CounterRepository) Peek(ctx context.Context, scopeID string) (int64, error) {
	const query = `SELECT COALESCE((SELECT value FROM sequential_counters WHERE scope_id = $1), 0) + 1`
	var next int64
	if err := r.db.GetContext(ctx, &next, query, scopeID); err != nil {
		return 0, fmt.Errorf("peek counter %s: %w", scopeID, err)
	}
	return next, nil
}

// IncrementAndGet atomically reserves and returns the next value for the scope.
func (r *CounterRepository) IncrementAndGet(ctx context.Context, scopeID string) (int64, error) {
	const query = `INSERT INTO sequential_counters (scope_id, value, updated_at) VALUES ($1, 1, NOW())
		ON CONFLICT (scope_id) DO UPDATE SET value = sequential_counters.value + 1, updated_at = NOW()
		RETURNING value`
	var value int64
	if err := r.db.GetContext(ctx, &value, query, scopeID); err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", scopeID, err)
	}
	return value, nil
}
