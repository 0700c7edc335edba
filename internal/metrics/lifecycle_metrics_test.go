package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestNewLifecycleMetrics(t *testing.T) {
	m := NewLifecycleMetricsWithRegisterer(prometheus.NewRegistry())

	if m == nil {
		t.Fatal("NewLifecycleMetricsWithRegisterer should not return nil")
	}
	if m.ordersCreated == nil || m.transitions == nil || m.rejectedTransition == nil {
		t.Error("order counters should not be nil")
	}
	if m.discounts == nil || m.historyEntries == nil || m.outboxEvents == nil {
		t.Error("discount/history/outbox counters should not be nil")
	}
	if m.cacheRequests == nil || m.operationDuration == nil {
		t.Error("cache counter and duration histogram should not be nil")
	}
}

func TestLifecycleMetrics_ReRegistrationReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewLifecycleMetricsWithRegisterer(reg)
	second := NewLifecycleMetricsWithRegisterer(reg)

	first.RecordOrderCreated()
	second.RecordOrderCreated()

	if got := counterValue(t, first.ordersCreated); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}

func TestLifecycleMetrics_Record(t *testing.T) {
	m := NewLifecycleMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordTransition("status", "pending", "paid")
	m.RecordTransition("status", "pending", "paid")
	m.RecordRejectedTransition("status", "completed", "cancelled")
	m.RecordDiscount("apply", "fixed")
	m.RecordHistoryEntry()
	m.RecordOutboxEvent("OrderCreated")
	m.RecordCacheHit("order")
	m.RecordCacheMiss("order")
	m.RecordOperation("cancel", 10*time.Millisecond, nil)
	m.RecordOperation("cancel", 10*time.Millisecond, errors.New("boom"))

	if got := counterValue(t, m.transitions.WithLabelValues("status", "pending", "paid")); got != 2 {
		t.Fatalf("expected 2 transitions, got %v", got)
	}
	if got := counterValue(t, m.rejectedTransition.WithLabelValues("status", "completed", "cancelled")); got != 1 {
		t.Fatalf("expected 1 rejected transition, got %v", got)
	}
	if got := counterValue(t, m.discounts.WithLabelValues("apply", "fixed")); got != 1 {
		t.Fatalf("expected 1 discount, got %v", got)
	}
	if got := counterValue(t, m.historyEntries); got != 1 {
		t.Fatalf("expected 1 history entry, got %v", got)
	}
	if got := counterValue(t, m.cacheRequests.WithLabelValues("order", "hit")); got != 1 {
		t.Fatalf("expected 1 cache hit, got %v", got)
	}
	if got := counterValue(t, m.cacheRequests.WithLabelValues("order", "miss")); got != 1 {
		t.Fatalf("expected 1 cache miss, got %v", got)
	}
}

func TestLifecycleMetrics_NilReceiver(t *testing.T) {
	var m *LifecycleMetrics

	m.RecordOrderCreated()
	m.RecordTransition("status", "a", "b")
	m.RecordRejectedTransition("status", "a", "b")
	m.RecordDiscount("remove", "")
	m.RecordHistoryEntry()
	m.RecordOutboxEvent("x")
	m.RecordCacheHit("order")
	m.RecordCacheMiss("order")
	m.RecordOperation("op", time.Second, nil)
}
