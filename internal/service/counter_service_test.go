package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gestao-docs-api/internal/models"
)

type memoryCounterStore struct {
	mu     sync.Mutex
	values map[string]int64
	err    error
}

func newMemoryCounterStore() *memoryCounterStore {
	return &memoryCounterStore{values: map[string]int64{}}
}

func (m *memoryCounterStore) Peek(_ context.Context, scopeID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.values[scopeID] + 1, nil
}

func (m *memoryCounterStore) IncrementAndGet(_ context.Context, scopeID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.values[scopeID]++
	return m.values[scopeID], nil
}

func TestCounterPeekThenIncrement(t *testing.T) {
	store := newMemoryCounterStore()
	store.values["sectorA-2024"] = 4
	svc := NewCounterService(store, NewMetricsService(), zap.NewNop())
	scope := models.CounterScope{Category: "sectorA", Year: 2024}

	next, ok := svc.PeekNext(context.Background(), scope)
	require.True(t, ok)
	assert.Equal(t, int64(5), next)

	again, ok := svc.PeekNext(context.Background(), scope)
	require.True(t, ok)
	assert.Equal(t, int64(5), again)

	value, ok := svc.IncrementAndGet(context.Background(), scope)
	require.True(t, ok)
	assert.Equal(t, int64(5), value)

	next, ok = svc.PeekNext(context.Background(), scope)
	require.True(t, ok)
	assert.Equal(t, int64(6), next)
}

func TestCounterFailureIsUnknownNotZero(t *testing.T) {
	store := newMemoryCounterStore()
	store.err = errors.New("network down")
	svc := NewCounterService(store, nil, nil)
	scope := models.CounterScope{Category: "sectorA", Year: 2024}

	_, ok := svc.PeekNext(context.Background(), scope)
	assert.False(t, ok)
	_, ok = svc.IncrementAndGet(context.Background(), scope)
	assert.False(t, ok)

	_, ok = svc.PeekNext(context.Background(), models.CounterScope{Category: " ", Year: 2024})
	assert.False(t, ok)
}

func TestCounterConcurrentIncrementsAreDistinctAndContiguous(t *testing.T) {
	store := newMemoryCounterStore()
	store.values["sectorA-2024"] = 10
	svc := NewCounterService(store, nil, nil)
	scope := models.CounterScope{Category: "sectorA", Year: 2024}

	const n = 50
	results := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, ok := svc.IncrementAndGet(context.Background(), scope)
			assert.True(t, ok)
			results[i] = v
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, v := range results {
		assert.Equal(t, int64(11+i), v)
	}
}
