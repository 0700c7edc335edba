package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IdempotencyMetrics покрывает ключи идемпотентности: исходы запросов и очистку.
type IdempotencyMetrics struct {
	requests       *prometheus.CounterVec
	cleanupRuns    *prometheus.CounterVec
	cleanupDeleted prometheus.Counter
	lastDeleted    prometheus.Gauge
}

// NewIdempotencyMetrics регистрирует метрики в переданном registerer.
func NewIdempotencyMetrics(registerer prometheus.Registerer) *IdempotencyMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &IdempotencyMetrics{
		requests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ordercore_idempotency_requests_total",
			Help: "Idempotent requests grouped by method and outcome",
		}, []string{"method", "outcome"}),
		cleanupRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ordercore_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result",
		}, []string{"result"}),
		cleanupDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ordercore_idempotency_cleanup_deleted_total",
			Help: "Total number of deleted expired idempotency keys",
		}),
		lastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ordercore_idempotency_cleanup_last_deleted",
			Help: "Number of keys deleted during the last cleanup run",
		}),
	}
}

// RecordRequest фиксирует исход запроса: executed, replayed, in_progress, mismatch.
func (m *IdempotencyMetrics) RecordRequest(method, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
}

// RecordCleanup фиксирует итог одного прогона очистки.
func (m *IdempotencyMetrics) RecordCleanup(deleted int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.cleanupRuns.WithLabelValues("error").Inc()
		return
	}
	m.cleanupRuns.WithLabelValues("ok").Inc()
	m.lastDeleted.Set(float64(deleted))
}

// AddDeleted увеличивает общий счётчик удалённых ключей.
func (m *IdempotencyMetrics) AddDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cleanupDeleted.Add(float64(n))
}
