package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: созданные заявки
	Submissions prometheus.Counter

	// Webhook: исходы пересылки (success, failure) и latency
	ForwardTotal    *prometheus.CounterVec
	ForwardDuration prometheus.Histogram

	// Решения по статусу и каналу (api, callback)
	Decisions *prometheus.CounterVec

	// Errors: классификация отказов (validation, not_found, conflict, invalid_status, store)
	ErrorTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - closed, 1 - half-open, 2 - open)
	CircuitBreakerState prometheus.Gauge

	// Journal: заполненность буфера (backpressure)
	JournalBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Submissions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "relay_submissions_total",
			Help: "Total number of created approval requests.",
		}),

		ForwardTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "relay_forward_total",
			Help: "Webhook forward attempts by result.",
		}, []string{"result"}),

		ForwardDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_forward_duration_seconds",
			Help:    "Histogram of webhook call latencies.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		}),

		Decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "relay_decisions_total",
			Help: "Recorded decisions by status and channel.",
		}, []string{"status", "source"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "relay_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}),

		CircuitBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "relay_webhook_circuit_breaker_state",
			Help: "Current state of the webhook circuit breaker (0=closed, 1=half-open, 2=open).",
		}),

		JournalBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "relay_journal_buffer_utilization",
			Help: "Current number of events in lifecycle journal buffer.",
		}),
	}
}
