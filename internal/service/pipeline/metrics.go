package pipeline

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	duplicateEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_duplicate_events_total",
			Help: "Deliveries short-circuited by the idempotency ledger",
		},
	)

	notifierFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_notifier_failures_total",
			Help: "Post-commit notifications that failed or timed out",
		},
	)
)

func init() {
	prometheus.MustRegister(eventsProcessed)
	prometheus.MustRegister(duplicateEvents)
	prometheus.MustRegister(notifierFailures)
}
