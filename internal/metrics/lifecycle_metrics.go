package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleMetrics содержит метрики жизненного цикла заказа.
// Методы безопасно вызывать на nil-получателе.
type LifecycleMetrics struct {
	// Счётчики заказов и переходов
	ordersCreated      prometheus.Counter
	transitions        *prometheus.CounterVec
	rejectedTransition *prometheus.CounterVec

	// Скидки
	discounts *prometheus.CounterVec

	// Журнал и outbox
	historyEntries prometheus.Counter
	outboxEvents   *prometheus.CounterVec

	// Кэш
	cacheRequests *prometheus.CounterVec

	operationDuration *prometheus.HistogramVec
}

// NewLifecycleMetrics регистрирует метрики в DefaultRegisterer.
func NewLifecycleMetrics() *LifecycleMetrics {
	return NewLifecycleMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewLifecycleMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewLifecycleMetricsWithRegisterer(registerer prometheus.Registerer) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LifecycleMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ordercore_orders_created_total",
			Help: "Total number of orders created",
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ordercore_status_transitions_total",
			Help: "Total number of applied status transitions",
		}, []string{"field", "from", "to"}),
		rejectedTransition: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ordercore_status_transitions_rejected_total",
			Help: "Total number of rejected status transitions",
		}, []string{"field", "from", "to"}),
		discounts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ordercore_discounts_total",
			Help: "Total number of discount operations",
		}, []string{"action", "type"}),
		historyEntries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ordercore_history_entries_total",
			Help: "Total number of status history entries recorded",
		}),
		outboxEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ordercore_outbox_events_total",
			Help: "Total number of events enqueued into outbox",
		}, []string{"event_type"}),
		cacheRequests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ordercore_cache_requests_total",
			Help: "Cache lookups by entity and result",
		}, []string{"entity", "result"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "ordercore_operation_duration_seconds",
			Help:    "Duration of lifecycle operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation", "result"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *LifecycleMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordTransition фиксирует применённый переход статуса.
func (m *LifecycleMetrics) RecordTransition(field, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(field, from, to).Inc()
}

// RecordRejectedTransition фиксирует отклонённый переход статуса.
func (m *LifecycleMetrics) RecordRejectedTransition(field, from, to string) {
	if m == nil {
		return
	}
	m.rejectedTransition.WithLabelValues(field, from, to).Inc()
}

// RecordDiscount фиксирует применение или снятие скидки.
func (m *LifecycleMetrics) RecordDiscount(action, discountType string) {
	if m == nil {
		return
	}
	m.discounts.WithLabelValues(action, discountType).Inc()
}

// RecordHistoryEntry увеличивает счётчик записей журнала статусов.
func (m *LifecycleMetrics) RecordHistoryEntry() {
	if m == nil {
		return
	}
	m.historyEntries.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *LifecycleMetrics) RecordOutboxEvent(eventType string) {
	if m == nil {
		return
	}
	m.outboxEvents.WithLabelValues(eventType).Inc()
}

// RecordCacheHit фиксирует попадание в кэш.
func (m *LifecycleMetrics) RecordCacheHit(entity string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(entity, "hit").Inc()
}

// RecordCacheMiss фиксирует промах кэша.
func (m *LifecycleMetrics) RecordCacheMiss(entity string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(entity, "miss").Inc()
}

// RecordOperation записывает длительность операции и её результат.
func (m *LifecycleMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operationDuration.WithLabelValues(operation, result).Observe(duration.Seconds())
}
