package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected *prometheus.CounterVec
}

// New registers the limiter metrics with reg; nil uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		Rejected: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mediconnect_ratelimit_rejected_total",
			Help: "Requests rejected by the rate limiter, by endpoint class",
		}, []string{"class"}),
	}
}

func (m *Metrics) IncrementRejected(class string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(class).Inc()
}
