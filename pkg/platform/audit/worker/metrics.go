package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the outbox relay.
type Metrics struct {
	Published       prometheus.Counter
	PublishFailures prometheus.Counter
	Skipped         prometheus.Counter
	BreakerState    prometheus.Gauge
}

// NewMetrics registers relay metrics with the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "fxsettle_outbox_published_total",
			Help: "Total number of events published to the broker",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "fxsettle_outbox_publish_failures_total",
			Help: "Total number of failed publish attempts",
		}),
		Skipped: f.NewCounter(prometheus.CounterOpts{
			Name: "fxsettle_outbox_circuit_skipped_total",
			Help: "Total number of relay passes skipped due to an open circuit breaker",
		}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "fxsettle_outbox_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) AddPublished(n int) {
	m.Published.Add(float64(n))
}

func (m *Metrics) IncPublishFailures() {
	m.PublishFailures.Inc()
}

func (m *Metrics) IncSkipped() {
	m.Skipped.Inc()
}

func (m *Metrics) SetBreakerState(open bool) {
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}
