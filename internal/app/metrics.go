package app

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the service counters. Counters are always usable; they are only
// exported when registered.
type Metrics struct {
	WebhookEvents  *prometheus.CounterVec
	Intents        *prometheus.CounterVec
	Anomalies      *prometheus.CounterVec
	SweepOutcomes  *prometheus.CounterVec
	PublishFailure prometheus.Counter
}

// NewMetrics builds the counters and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payments",
			Name:      "webhook_events_total",
			Help:      "Provider callbacks by reconciliation outcome.",
		}, []string{"outcome"}),
		Intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payments",
			Name:      "intents_total",
			Help:      "Payment intent creation attempts by result.",
		}, []string{"result"}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payments",
			Name:      "anomalies_total",
			Help:      "Reconciliation anomalies that need operator attention.",
		}, []string{"kind"}),
		SweepOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payments",
			Name:      "pending_sweep_total",
			Help:      "Pending payments re-checked at the provider by outcome.",
		}, []string{"outcome"}),
		PublishFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "payments",
			Name:      "status_event_publish_failures_total",
			Help:      "Payment status events that could not be published.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.WebhookEvents, m.Intents, m.Anomalies, m.SweepOutcomes, m.PublishFailure)
	}
	return m
}
