package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gestao-docs-api/internal/service"
)

func TestMetricsHandlerReady(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	h := NewMetricsHandler(nil, map[string]ReadinessCheck{"postgres": ok})
	c, w := newContext(http.MethodGet, "/ready", nil, nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	h = NewMetricsHandler(nil, map[string]ReadinessCheck{"postgres": ok, "redis": down})
	c, w = newContext(http.MethodGet, "/ready", nil, nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsHandlerPrometheusAndSnapshot(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordProtocolAttempt("conflict")
	h := NewMetricsHandler(metrics, nil)

	c, w := newContext(http.MethodGet, "/metrics", nil, nil)
	h.Prometheus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "protocol")

	c, w = newContext(http.MethodGet, "/metrics/summary", nil, nil)
	h.Snapshot(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newContext(http.MethodGet, "/metrics", nil, nil)
	NewMetricsHandler(nil, nil).Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.True(t, c.IsAborted())

	c, w = newContext(http.MethodGet, "/metrics/summary", nil, nil)
	NewMetricsHandler(nil, nil).Snapshot(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
