package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outbox publish outcomes.
const (
	PublishPublished    = "published"
	PublishRetry        = "retry"
	PublishDeadLettered = "dead_lettered"
	PublishDeferred     = "deferred"
)

// OutboxMetrics counts relay outcomes per topic. A nil *OutboxMetrics records nothing.
type OutboxMetrics struct {
	publish *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox collectors on reg.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return nil
	}
	m := &OutboxMetrics{
		publish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_outbox_publish_total",
			Help: "Outbox rows handled by the publisher, by topic and outcome.",
		}, []string{"topic", "outcome"}),
	}
	reg.MustRegister(m.publish)
	return m
}

// IncPublish counts one outbox row outcome.
func (m *OutboxMetrics) IncPublish(topic, outcome string) {
	if m == nil {
		return
	}
	if topic == "" {
		topic = "unknown"
	}
	m.publish.WithLabelValues(topic, outcome).Inc()
}
