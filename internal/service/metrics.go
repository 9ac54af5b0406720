package service

import (
	"context"

	"github.com/alexanderramin/crq/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metricsObserver struct {
	useCases    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	transitions *prometheus.CounterVec
}

// NewMetricsObserver records use-case outcomes and status transitions on reg.
func NewMetricsObserver(reg prometheus.Registerer) UseCaseObserver {
	f := promauto.With(reg)
	return &metricsObserver{
		useCases: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crq",
			Name:      "use_cases_total",
			Help:      "Total number of workflow use cases by outcome.",
		}, []string{"use_case", "result"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crq",
			Name:      "use_case_duration_seconds",
			Help:      "Latency distribution for workflow use cases.",
			Buckets: []float64{
				0.0005, 0.001, 0.002, 0.005,
				0.01, 0.02, 0.05,
				0.1, 0.2, 0.5, 1,
			},
		}, []string{"use_case"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crq",
			Name:      "status_transitions_total",
			Help:      "Total number of committed change request status transitions.",
		}, []string{"from", "to"}),
	}
}

func (m *metricsObserver) ObserveUseCase(_ context.Context, event UseCaseEvent) {
	result := "ok"
	if event.Err != nil {
		result = string(domain.KindOf(event.Err))
	}
	m.useCases.WithLabelValues(event.Name, result).Inc()
	m.latency.WithLabelValues(event.Name).Observe(event.Duration.Seconds())

	if !event.Success {
		return
	}
	from, _ := event.Fields["from_status"].(string)
	to, _ := event.Fields["to_status"].(string)
	if to != "" && from != to {
		m.transitions.WithLabelValues(from, to).Inc()
	}
}
