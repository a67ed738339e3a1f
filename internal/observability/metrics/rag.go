package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RAGMetrics records retrieval, chat and resilience events. It satisfies
// resilience.Observer.
type RAGMetrics struct {
	service string

	retrievalsTotal     *prometheus.CounterVec
	retrievalHitTotal   *prometheus.CounterVec
	noContextTotal      *prometheus.CounterVec
	retrievedResults    *prometheus.HistogramVec
	retrievalDuration   *prometheus.HistogramVec
	chatTurnsTotal      *prometheus.CounterVec
	rollbacksTotal      *prometheus.CounterVec
	retriesTotal        *prometheus.CounterVec
	breakerStateChanges *prometheus.CounterVec
}

func newRAGMetrics(service string, registry *prometheus.Registry) *RAGMetrics {
	m := &RAGMetrics{
		service: service,
		retrievalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "retrievals_total",
			Help:      "Total successful retrievals.",
		}, []string{"service", "endpoint"}),
		retrievalHitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "retrieval_hit_total",
			Help:      "Total retrievals with at least one result.",
		}, []string{"service", "endpoint"}),
		noContextTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "no_context_total",
			Help:      "Total retrievals without results.",
		}, []string{"service", "endpoint"}),
		retrievedResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "retrieved_results",
			Help:      "Distribution of results per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}, []string{"service", "endpoint"}),
		retrievalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "duration_seconds",
			Help:      "Retrieval duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "endpoint"}),
		chatTurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total chat turns by mode and status.",
		}, []string{"service", "mode", "status"}),
		rollbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "rollbacks_total",
			Help:      "Total turns rolled back after a provider failure.",
		}, []string{"service", "retryable"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Total retried collaborator calls by operation.",
		}, []string{"service", "operation"}),
		breakerStateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state_changes_total",
			Help:      "Circuit breaker transitions by operation and target state.",
		}, []string{"service", "operation", "state"}),
	}
	registry.MustRegister(
		m.retrievalsTotal,
		m.retrievalHitTotal,
		m.noContextTotal,
		m.retrievedResults,
		m.retrievalDuration,
		m.chatTurnsTotal,
		m.rollbacksTotal,
		m.retriesTotal,
		m.breakerStateChanges,
	)
	return m
}

func (m *RAGMetrics) RecordRetrieval(endpoint string, resultCount int, duration time.Duration) {
	m.retrievalsTotal.WithLabelValues(m.service, endpoint).Inc()
	m.retrievedResults.WithLabelValues(m.service, endpoint).Observe(float64(resultCount))
	m.retrievalDuration.WithLabelValues(m.service, endpoint).Observe(duration.Seconds())

	if resultCount > 0 {
		m.retrievalHitTotal.WithLabelValues(m.service, endpoint).Inc()
		return
	}
	m.noContextTotal.WithLabelValues(m.service, endpoint).Inc()
}

func (m *RAGMetrics) RecordChatTurn(mode string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.chatTurnsTotal.WithLabelValues(m.service, mode, status).Inc()
}

func (m *RAGMetrics) RecordRollback(retryable bool) {
	label := "false"
	if retryable {
		label = "true"
	}
	m.rollbacksTotal.WithLabelValues(m.service, label).Inc()
}

func (m *RAGMetrics) RecordRetry(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *RAGMetrics) RecordBreakerState(operation, state string) {
	m.breakerStateChanges.WithLabelValues(m.service, operation, state).Inc()
}
