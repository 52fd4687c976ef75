package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit trail.
type Metrics struct {
	Appended        prometheus.Counter
	AppendFailures  *prometheus.CounterVec
	PersistRetries  prometheus.Counter
	PersistDuration prometheus.Histogram
	QueueDepth      prometheus.Gauge
}

// NewMetrics registers the audit metrics with reg; nil uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Appended: f.NewCounter(prometheus.CounterOpts{
			Name: "mediconnect_audit_records_appended_total",
			Help: "Total number of audit records persisted",
		}),
		AppendFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mediconnect_audit_append_failures_total",
			Help: "Audit records that could not be persisted or queued, by reason",
		}, []string{"reason"}),
		PersistRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "mediconnect_audit_persist_retries_total",
			Help: "Failed asynchronous persist attempts that were retried",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mediconnect_audit_persist_duration_seconds",
			Help:    "Time spent writing one audit record to the store",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "mediconnect_audit_queue_depth",
			Help: "Records queued for the asynchronous writer",
		}),
	}
}

func (m *Metrics) incAppended() {
	if m != nil {
		m.Appended.Inc()
	}
}

func (m *Metrics) incFailure(reason string) {
	if m != nil {
		m.AppendFailures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) incRetry() {
	if m != nil {
		m.PersistRetries.Inc()
	}
}

func (m *Metrics) observePersist(seconds float64) {
	if m != nil {
		m.PersistDuration.Observe(seconds)
	}
}

func (m *Metrics) setQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}
