package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics is
// safe to call so tests can skip registration entirely.
type Metrics struct {
	TokensCreated     prometheus.Counter
	TokenCollisions   prometheus.Counter
	TokensConsumed    prometheus.Counter
	TokenReuseDenied  prometheus.Counter
	DeliveriesSent    prometheus.Counter
	DeliveriesFailed  prometheus.Counter
	DeliveryAttempts  prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		TokensCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_tokens_created_total",
			Help: "Total number of registration tokens persisted",
		}),
		TokenCollisions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_token_collisions_total",
			Help: "Total number of identifier collisions during token creation",
		}),
		TokensConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_tokens_consumed_total",
			Help: "Total number of tokens transitioned to DONE",
		}),
		TokenReuseDenied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_token_reuse_denied_total",
			Help: "Total number of onboarding attempts rejected for already-used tokens",
		}),
		DeliveriesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_deliveries_sent_total",
			Help: "Total number of registration emails delivered",
		}),
		DeliveriesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_deliveries_failed_total",
			Help: "Total number of registration emails that exhausted delivery",
		}),
		DeliveryAttempts: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vigil_delivery_attempts",
			Help:    "Attempts used per delivery, successful or not",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
	}
}

func (m *Metrics) IncTokensCreated() {
	if m != nil {
		m.TokensCreated.Inc()
	}
}

func (m *Metrics) IncTokenCollisions() {
	if m != nil {
		m.TokenCollisions.Inc()
	}
}

func (m *Metrics) IncTokensConsumed() {
	if m != nil {
		m.TokensConsumed.Inc()
	}
}

func (m *Metrics) IncTokenReuseDenied() {
	if m != nil {
		m.TokenReuseDenied.Inc()
	}
}

func (m *Metrics) IncDeliveriesSent() {
	if m != nil {
		m.DeliveriesSent.Inc()
	}
}

func (m *Metrics) IncDeliveriesFailed() {
	if m != nil {
		m.DeliveriesFailed.Inc()
	}
}

func (m *Metrics) ObserveDeliveryAttempts(attempts int) {
	if m != nil {
		m.DeliveryAttempts.Observe(float64(attempts))
	}
}
