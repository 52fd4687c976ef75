package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process-level HTTP and sign-in metrics.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	Logins          *prometheus.CounterVec
}

// New creates and registers the metrics with reg; nil uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mediconnect_http_request_duration_seconds",
			Help:    "HTTP handler latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mediconnect_logins_total",
			Help: "Sign-in attempts by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// IncrementLogins counts a sign-in attempt; outcome is "success" or "failure".
func (m *Metrics) IncrementLogins(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}
