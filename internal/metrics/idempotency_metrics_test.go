package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestIdempotencyMetrics_Record(t *testing.T) {
	m := NewIdempotencyMetrics(prometheus.NewRegistry())

	m.RecordRequest("/ordercore.v1.OrderLifecycleService/PayOrder", "replayed")
	m.RecordCleanup(3, nil)
	m.RecordCleanup(0, errors.New("boom"))
	m.AddDeleted(3)
	m.AddDeleted(0)

	if got := counterValue(t, m.requests.WithLabelValues("/ordercore.v1.OrderLifecycleService/PayOrder", "replayed")); got != 1 {
		t.Fatalf("expected 1 replayed request, got %v", got)
	}
	if got := counterValue(t, m.cleanupRuns.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected 1 ok run, got %v", got)
	}
	if got := counterValue(t, m.cleanupRuns.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed run, got %v", got)
	}
	if got := counterValue(t, m.cleanupDeleted); got != 3 {
		t.Fatalf("expected 3 deleted, got %v", got)
	}
	if got := gaugeValue(t, m.lastDeleted); got != 3 {
		t.Fatalf("expected last deleted 3, got %v", got)
	}
}

func TestIdempotencyMetrics_NilReceiver(t *testing.T) {
	var m *IdempotencyMetrics

	m.RecordRequest("m", "executed")
	m.RecordCleanup(1, nil)
	m.AddDeleted(1)
}
