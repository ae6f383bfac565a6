package metrics

import "github.com/prometheus/client_golang/prometheus"

// Consumer message outcomes.
const (
	ConsumerHandled   = "handled"
	ConsumerDuplicate = "duplicate"
	ConsumerDropped   = "dropped"
	ConsumerRetried   = "retried"
)

// ConsumerMetrics counts Pub/Sub messages by what the consumer did with them.
// A nil receiver is a no-op.
type ConsumerMetrics struct {
	messages *prometheus.CounterVec
}

func NewConsumerMetrics(reg prometheus.Registerer) *ConsumerMetrics {
	if reg == nil {
		return &ConsumerMetrics{}
	}
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consumer_messages_total",
		Help:      "Messages received by event consumers, by outcome.",
	}, []string{"consumer", "event_type", "outcome"})
	reg.MustRegister(messages)
	return &ConsumerMetrics{messages: messages}
}

func (m *ConsumerMetrics) Inc(consumer, eventType, outcome string) {
	if m == nil || m.messages == nil {
		return
	}
	m.messages.WithLabelValues(normalizeLabel(consumer), normalizeLabel(eventType), outcome).Inc()
}
