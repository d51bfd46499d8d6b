package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/educhain-labs/governance-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	proposalTotal   *prometheus.CounterVec
	conflictTotal   *prometheus.CounterVec
	ledgerAppends   *prometheus.CounterVec
	ledgerSettles   *prometheus.CounterVec
	lockWait        prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	ledgerAppendCount    uint64
	ledgerSettleCount    uint64
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

	proposalTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_proposals_total",
		Help: "Schedule proposals by outcome",
	}, []string{"result"})

	conflictTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_conflicts_total",
		Help: "Detected schedule conflicts by axis",
	}, []string{"type"})

	ledgerAppends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_appends_total",
		Help: "Ledger entries appended by action type",
	}, []string{"action"})

	ledgerSettles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_settlements_total",
		Help: "Ledger entries settled by final status",
	}, []string{"status"})

	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "resource_lock_wait_seconds",
		Help:    "Time spent waiting for scheduling resource locks",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, proposalTotal, conflictTotal, ledgerAppends, ledgerSettles, lockWait, cacheHitRatio, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		proposalTotal:   proposalTotal,
		conflictTotal:   conflictTotal,
		ledgerAppends:   ledgerAppends,
		ledgerSettles:   ledgerSettles,
		lockWait:        lockWait,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
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

// ObserveProposal counts a schedule proposal outcome.
func (m *MetricsService) ObserveProposal(result string) {
	if m == nil {
		return
	}
	m.proposalTotal.WithLabelValues(result).Inc()
}

// ObserveConflict counts a detected conflict by axis (ROOM or LECTURER).
func (m *MetricsService) ObserveConflict(conflictType string) {
	if m == nil {
		return
	}
	m.conflictTotal.WithLabelValues(conflictType).Inc()
}

// ObserveLedgerAppend counts an appended ledger entry.
func (m *MetricsService) ObserveLedgerAppend(action string) {
	if m == nil {
		return
	}
	m.ledgerAppends.WithLabelValues(action).Inc()
	atomic.AddUint64(&m.ledgerAppendCount, 1)
}

// ObserveLedgerSettle counts a settled ledger entry by final status.
func (m *MetricsService) ObserveLedgerSettle(status string) {
	if m == nil {
		return
	}
	m.ledgerSettles.WithLabelValues(status).Inc()
	atomic.AddUint64(&m.ledgerSettleCount, 1)
}

// ObserveLockWait records time spent acquiring resource locks.
func (m *MetricsService) ObserveLockWait(duration time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.Observe(duration.Seconds())
}

// ObserveCacheHit counts a cache hit and refreshes the hit ratio gauge.
func (m *MetricsService) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
	atomic.AddUint64(&m.cacheHitCount, 1)
	m.refreshHitRatio()
}

// ObserveCacheMiss counts a cache miss and refreshes the hit ratio gauge.
func (m *MetricsService) ObserveCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
	m.refreshHitRatio()
}

func (m *MetricsService) refreshHitRatio() {
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// Snapshot returns aggregated metrics suitable for the admin overview endpoint.
func (m *MetricsService) Snapshot() models.SystemMetricsSnapshot {
	if m == nil {
		return models.SystemMetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetricsSnapshot{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		LedgerAppendsTotal:       atomic.LoadUint64(&m.ledgerAppendCount),
		LedgerSettlementsTotal:   atomic.LoadUint64(&m.ledgerSettleCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
