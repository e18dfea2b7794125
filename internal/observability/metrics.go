package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	inboundMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_bot_inbound_messages_total",
			Help: "Total inbound customer messages handled.",
		},
	)
	outboxEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_bot_outbox_enqueued_total",
			Help: "Total entries appended to the outbox.",
		},
	)
	deliveryAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_bot_delivery_attempts_total",
			Help: "Total delivery attempts made by the worker.",
		},
	)
	deliveryOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_bot_delivery_outcomes_total",
			Help: "Delivery outcomes by terminal or retry state.",
		},
		[]string{"outcome"},
	)
	escalationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_bot_escalation_transitions_total",
			Help: "Upward escalation level crossings observed by the sweep.",
		},
		[]string{"level"},
	)
	outboxBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_bot_outbox_backlog",
			Help: "Entries currently pending or awaiting retry.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		inboundMessages, outboxEnqueued, deliveryAttempts,
		deliveryOutcomes, escalationTransitions, outboxBacklog,
	)
}

// RecordInbound counts one handled inbound message.
func RecordInbound() { inboundMessages.Inc() }

// RecordEnqueued counts one outbox append.
func RecordEnqueued() { outboxEnqueued.Inc() }

// RecordDeliveryAttempt counts one send attempt.
func RecordDeliveryAttempt() { deliveryAttempts.Inc() }

// RecordDeliveryOutcome counts a delivery outcome: sent, retry or permanent.
func RecordDeliveryOutcome(outcome string) {
	deliveryOutcomes.WithLabelValues(outcome).Inc()
}

// RecordEscalation counts an upward crossing into level.
func RecordEscalation(level string) {
	escalationTransitions.WithLabelValues(level).Inc()
}

// SetOutboxBacklog publishes the current queue depth.
func SetOutboxBacklog(depth int) {
	outboxBacklog.Set(float64(depth))
}
