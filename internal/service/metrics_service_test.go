package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshotAggregates(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest("GET", "/api/v1/documents", 200, 10*time.Millisecond)
	m.ObserveHTTPRequest("GET", "/api/v1/documents", 500, 30*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordProtocolAttempt("conflict")
	m.RecordProtocolAttempt("ok")
	m.RecordProtocolAttempt("exhausted")
	m.RecordRealtimeEvent("messages", "INSERT")
	m.ChatSessionOpened()
	m.ChatSessionOpened()
	m.ChatSessionClosed()

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 20.0, snap.AverageRequestDurationMs, 0.001)
	assert.Equal(t, uint64(2), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
	assert.InDelta(t, 2.0/3.0, snap.CacheHitRatio, 0.001)
	assert.Equal(t, uint64(1), snap.ProtocolRetries)
	assert.Equal(t, uint64(1), snap.ProtocolExhausted)
	assert.Equal(t, uint64(1), snap.RealtimeEvents)
	assert.Equal(t, int64(1), snap.ActiveChatSessions)
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.RecordCounterOperation("increment", false)
	m.RecordChatSendFailure()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `sequential_counter_operations_total{operation="increment",result="error"} 1`))
	assert.True(t, strings.Contains(body, "chat_send_failures_total 1"))
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
