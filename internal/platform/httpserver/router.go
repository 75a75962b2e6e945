package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fxsettle/internal/platform/metrics"
	"fxsettle/pkg/platform/httputil"
	"fxsettle/pkg/platform/middleware/request"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

const healthTimeout = 2 * time.Second

// Mounter registers routes on the router.
type Mounter interface {
	Register(r chi.Router)
}

// NewRouter builds the root router: request middleware, /healthz, /metrics
// and the mounted API handlers. checks maps a dependency name to its probe.
// A nil registry disables request metrics and the /metrics endpoint.
func NewRouter(logger *slog.Logger, reg *prometheus.Registry, checks map[string]HealthCheck, mounts ...Mounter) chi.Router {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.RequestTime)
	r.Use(request.Recoverer(logger))
	r.Use(request.Logger(logger))
	if reg != nil {
		r.Use(metrics.NewWith(reg).Middleware)
	}

	r.Get("/healthz", healthHandler(checks))
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	for _, m := range mounts {
		m.Register(r)
	}
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				deps[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{
			"status":       overall,
			"dependencies": deps,
		})
	}
}
