package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts authorization decisions by check and outcome.
type Metrics struct {
	Decisions *prometheus.CounterVec
}

// New registers the authorization metrics with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mediconnect_authz_decisions_total",
			Help: "Authorization decisions by check kind and outcome",
		}, []string{"check", "outcome"}),
	}
}

// ObserveDecision increments the decision counter.
func (m *Metrics) ObserveDecision(check string, allowed bool) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.Decisions.WithLabelValues(check, outcome).Inc()
}
