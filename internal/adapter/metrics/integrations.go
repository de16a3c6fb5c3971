package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/integrations/internal/domain"
)

// IntegrationMetrics counts token store operations and OAuth callback outcomes.
type IntegrationMetrics struct {
	TokenOperations *prometheus.CounterVec
	Callbacks       *prometheus.CounterVec
}

func NewIntegrationMetrics(reg prometheus.Registerer) *IntegrationMetrics {
	m := &IntegrationMetrics{
		TokenOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_operations_total",
			Help:      "Total number of provider token store operations, by result.",
		}, []string{"provider", "operation", "result"}),
		Callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_callbacks_total",
			Help:      "Total number of OAuth callbacks handled, by outcome.",
		}, []string{"provider", "outcome"}),
	}

	reg.MustRegister(m.TokenOperations, m.Callbacks)
	return m
}

func (m *IntegrationMetrics) RecordTokenOperation(provider domain.Provider, operation, result string) {
	m.TokenOperations.WithLabelValues(provider.String(), operation, result).Inc()
}

func (m *IntegrationMetrics) RecordCallback(provider domain.Provider, outcome string) {
	m.Callbacks.WithLabelValues(provider.String(), outcome).Inc()
}
