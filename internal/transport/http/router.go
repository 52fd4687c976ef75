// Package httptransport is the HTTP surface of the service. Handlers stay
// thin: they decode, call the directory, credential and authorization
// services, record the audit event and encode the response.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mediconnect/internal/platform/metrics"
	"mediconnect/internal/platform/middleware"
	"mediconnect/pkg/platform/middleware/metadata"
)

const requestTimeout = 30 * time.Second

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter applies the shared middleware chain, exposes /metrics from
// gatherer and mounts every registrar. A nil clientIP trusts no forwarding
// headers.
func NewRouter(logger *slog.Logger, m *metrics.Metrics, gatherer prometheus.Gatherer, clientIP *metadata.ClientIPResolver, registrars ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata(clientIP))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.LatencyMiddleware(m))

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	for _, reg := range registrars {
		reg.Register(r)
	}
	return r
}
