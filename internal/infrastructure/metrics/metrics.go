// Package metrics содержит prometheus-метрики конвейера распознавания номеров.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics счётчики и гистограммы конвейера. Все методы безопасны для nil-получателя,
// поэтому компоненты могут работать без метрик.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	outcomesTotal      *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	dedupDecisions     *prometheus.CounterVec
	blobFailuresTotal  prometheus.Counter
	retryEnqueuedTotal *prometheus.CounterVec
}

// New создаёт метрики и регистрирует их в registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plate_ingest_requests_total",
			Help: "Total number of ingestion requests by terminal state",
		}, []string{"status", "kind"}), // status: completed, failed
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plate_ingest_region_outcomes_total",
			Help: "Total number of per-region outcomes",
		}, []string{"status", "reason"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "plate_ingest_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"stage"}),
		dedupDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plate_ingest_dedup_decisions_total",
			Help: "Deduplication decisions by the path that made them",
		}, []string{"path"}), // path: cache, lookup, insert, conflict
		blobFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plate_ingest_blob_failures_total",
			Help: "Blob uploads that failed and left a record without a blob reference",
		}),
		retryEnqueuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plate_ingest_blob_retry_enqueued_total",
			Help: "Blob retry tasks handed to the retry queue",
		}, []string{"status"}),
	}

	for _, c := range []prometheus.Collector{
		m.requestsTotal, m.outcomesTotal, m.stageDuration,
		m.dedupDecisions, m.blobFailuresTotal, m.retryEnqueuedTotal,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry возвращает реестр, в котором зарегистрированы метрики.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest учитывает завершённый запрос.
func (m *Metrics) ObserveRequest(status, kind string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(status, kind).Inc()
}

// ObserveOutcome учитывает итог одной области.
func (m *Metrics) ObserveOutcome(status, reason string) {
	if m == nil {
		return
	}
	m.outcomesTotal.WithLabelValues(status, reason).Inc()
}

// ObserveStage записывает длительность этапа, начатого в start.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// ObserveDedup учитывает решение дедупликации.
func (m *Metrics) ObserveDedup(path string) {
	if m == nil {
		return
	}
	m.dedupDecisions.WithLabelValues(path).Inc()
}

// ObserveBlobFailure учитывает запись без ссылки на снимок.
func (m *Metrics) ObserveBlobFailure() {
	if m == nil {
		return
	}
	m.blobFailuresTotal.Inc()
}

// ObserveRetryEnqueue учитывает постановку задания в очередь повторов.
func (m *Metrics) ObserveRetryEnqueue(ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.retryEnqueuedTotal.WithLabelValues(status).Inc()
}
