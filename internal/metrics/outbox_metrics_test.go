package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestOutboxMetrics_Backlog(t *testing.T) {
	m := NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	m.SetBacklog(3, now.Add(-90*time.Second), now)
	require.Equal(t, 3.0, gaugeValue(t, m.pendingRecords))
	require.Equal(t, 90.0, gaugeValue(t, m.oldestPendingAge))

	m.SetBacklog(0, time.Time{}, now)
	require.Zero(t, gaugeValue(t, m.pendingRecords))
	require.Zero(t, gaugeValue(t, m.oldestPendingAge))

	// Часы могут разойтись: возраст не уходит в минус.
	m.SetBacklog(1, now.Add(time.Minute), now)
	require.Zero(t, gaugeValue(t, m.oldestPendingAge))
}

func TestOutboxMetrics_Publish(t *testing.T) {
	m := NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordPublish("sent")
	m.RecordPublish("sent")
	m.RecordPublish("failed")

	require.Equal(t, 2.0, counterValue(t, m.publishAttempts.WithLabelValues("sent")))
	require.Equal(t, 1.0, counterValue(t, m.publishAttempts.WithLabelValues("failed")))
}

func TestOutboxMetrics_NilSafe(t *testing.T) {
	var m *OutboxMetrics
	require.NotPanics(t, func() {
		m.RecordPublish("sent")
		m.SetBacklog(1, time.Now(), time.Now())
	})
}
