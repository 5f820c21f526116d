package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSnapshot aggregates counters for the JSON metrics endpoint.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	ProtocolRetries          uint64    `json:"protocolRetries"`
	ProtocolExhausted        uint64    `json:"protocolExhausted"`
	RealtimeEvents           uint64    `json:"realtimeEvents"`
	ActiveChatSessions       int64     `json:"activeChatSessions"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	cacheLatency      prometheus.Observer
	cacheWrite        prometheus.Observer
	cacheHitRatio     prometheus.Gauge
	cacheLookups      *prometheus.CounterVec
	protocolAttempts  *prometheus.CounterVec
	realtimeEvents    *prometheus.CounterVec
	chatSessions      prometheus.Gauge
	chatSendFailures  prometheus.Counter
	counterOperations *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	protocolRetryCount   uint64
	protocolExhausted    uint64
	realtimeEventCount   uint64
	activeSessions       int64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "asset_cache_latency_seconds",
		Help:    "Latency for asset cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "asset_cache_write_seconds",
		Help:    "Latency for asset cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "asset_cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "asset_cache_lookups_total",
		Help: "Asset cache lookups by result",
	}, []string{"result"})

	protocolAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "protocol_write_attempts_total",
		Help: "Protocolled entity write attempts by outcome",
	}, []string{"outcome"})

	realtimeEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_total",
		Help: "Table change events delivered to the broker",
	}, []string{"table", "type"})

	chatSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_sessions_active",
		Help: "Open realtime chat sessions",
	})

	chatSendFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_send_failures_total",
		Help: "Chat messages whose write failed after retries",
	})

	counterOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sequential_counter_operations_total",
		Help: "Sequential counter peeks and increments by result",
	}, []string{"operation", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheLookups,
		protocolAttempts, realtimeEvents, chatSessions, chatSendFailures, counterOperations, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHitRatio:     cacheHitRatio,
		cacheLookups:      cacheLookups,
		protocolAttempts:  protocolAttempts,
		realtimeEvents:    realtimeEvents,
		chatSessions:      chatSessions,
		chatSendFailures:  chatSendFailures,
		counterOperations: counterOperations,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordProtocolAttempt counts one write attempt of a protocolled entity.
// Outcome is one of "ok", "conflict", "exhausted" or "error".
func (m *MetricsService) RecordProtocolAttempt(outcome string) {
	if m == nil {
		return
	}
	m.protocolAttempts.WithLabelValues(outcome).Inc()
	switch outcome {
	case "conflict":
		atomic.AddUint64(&m.protocolRetryCount, 1)
	case "exhausted":
		atomic.AddUint64(&m.protocolExhausted, 1)
	}
}

// RecordCounterOperation counts a peek or increment.
func (m *MetricsService) RecordCounterOperation(operation string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.counterOperations.WithLabelValues(operation, result).Inc()
}

// RecordRealtimeEvent counts a table change event.
func (m *MetricsService) RecordRealtimeEvent(table, eventType string) {
	if m == nil {
		return
	}
	m.realtimeEvents.WithLabelValues(table, eventType).Inc()
	atomic.AddUint64(&m.realtimeEventCount, 1)
}

// ChatSessionOpened increments the active session gauge.
func (m *MetricsService) ChatSessionOpened() {
	if m == nil {
		return
	}
	m.chatSessions.Inc()
	atomic.AddInt64(&m.activeSessions, 1)
}

// ChatSessionClosed decrements the active session gauge.
func (m *MetricsService) ChatSessionClosed() {
	if m == nil {
		return
	}
	m.chatSessions.Dec()
	atomic.AddInt64(&m.activeSessions, -1)
}

// RecordChatSendFailure counts a message write that was given up.
func (m *MetricsService) RecordChatSendFailure() {
	if m == nil {
		return
	}
	m.chatSendFailures.Inc()
}

// Snapshot returns aggregated metrics suitable for the JSON endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            cacheRatio,
		ProtocolRetries:          atomic.LoadUint64(&m.protocolRetryCount),
		ProtocolExhausted:        atomic.LoadUint64(&m.protocolExhausted),
		RealtimeEvents:           atomic.LoadUint64(&m.realtimeEventCount),
		ActiveChatSessions:       atomic.LoadInt64(&m.activeSessions),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
