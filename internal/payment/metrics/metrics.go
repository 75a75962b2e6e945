package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes used as the "outcome" label.
const (
	OutcomeAccepted       = "accepted"
	OutcomeSettled        = "settled"
	OutcomeUnauthorized   = "unauthorized"
	OutcomeInvalidInput   = "invalid_input"
	OutcomeInvalidState   = "invalid_state"
	OutcomeReentrant      = "reentrant"
	OutcomeTransferFailed = "transfer_failed"
	OutcomeTimeout        = "timeout"
	OutcomeError          = "error"
)

// Metrics provides observability for the payment module.
// Tracks lifecycle counts, submission outcomes and the settlement critical path.
type Metrics struct {
	PaymentsInitiated    prometheus.Counter
	PaymentsSettled      prometheus.Counter
	Submissions          *prometheus.CounterVec
	ReentrancyRejections prometheus.Counter
	SettlementDuration   prometheus.Histogram
}

// New registers the payment metrics with the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the payment metrics with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PaymentsInitiated: f.NewCounter(prometheus.CounterOpts{
			Name: "fxsettle_payments_initiated_total",
			Help: "Total number of payments initiated",
		}),
		PaymentsSettled: f.NewCounter(prometheus.CounterOpts{
			Name: "fxsettle_payments_settled_total",
			Help: "Total number of payments settled",
		}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fxsettle_rate_submissions_total",
			Help: "Rate submissions by outcome",
		}, []string{"outcome"}),
		ReentrancyRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "fxsettle_reentrancy_rejections_total",
			Help: "Nested calls rejected by the re-entrancy guard",
		}),
		SettlementDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fxsettle_settlement_duration_seconds",
			Help:    "Duration of settlement including the payee transfer",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementInitiated() {
	m.PaymentsInitiated.Inc()
}

func (m *Metrics) IncrementSettled() {
	m.PaymentsSettled.Inc()
}

func (m *Metrics) IncrementSubmission(outcome string) {
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementReentrancy() {
	m.ReentrancyRejections.Inc()
}

// ObserveSettlement records the duration of a settlement.
// Call with time.Now() taken before the settlement started.
func (m *Metrics) ObserveSettlement(start time.Time) {
	m.SettlementDuration.Observe(time.Since(start).Seconds())
}
