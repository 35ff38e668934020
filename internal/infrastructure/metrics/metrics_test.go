package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveRequest("completed", "")
	m.ObserveOutcome("persisted", "")
	m.ObserveOutcome("skipped", "no_text_detected")
	m.ObserveOutcome("skipped", "no_text_detected")
	m.ObserveDedup("conflict")
	m.ObserveBlobFailure()
	m.ObserveRetryEnqueue(true)
	m.ObserveStage("detect", time.Now())

	require.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("completed", "")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.outcomesTotal.WithLabelValues("skipped", "no_text_detected")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.dedupDecisions.WithLabelValues("conflict")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.blobFailuresTotal))
	require.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	require.Error(t, err)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveRequest("failed", "decode_error")
		m.ObserveOutcome("duplicate", "")
		m.ObserveStage("extract", time.Now())
		m.ObserveDedup("cache")
		m.ObserveBlobFailure()
		m.ObserveRetryEnqueue(false)
	})
	require.Nil(t, m.Registry())
}
