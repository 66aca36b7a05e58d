package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for account provisioning and voucher posting.
type Metrics struct {
	// Operation outcomes by operation and result label
	OperationOutcome *prometheus.CounterVec

	// Operation latency by operation
	OperationLatency *prometheus.HistogramVec

	// Vouchers posted by initial status
	VouchersPosted *prometheus.CounterVec

	// Rate-limited requests at the HTTP edge
	RateLimited prometheus.Counter
}

// New creates a Metrics instance registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coopledger_operation_outcomes_total",
			Help: "Total ledger operations by operation and outcome",
		}, []string{"operation", "outcome"}), // outcome: see ledger.Outcome

		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coopledger_operation_duration_seconds",
			Help:    "Duration of ledger operations including the database transaction",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),

		VouchersPosted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coopledger_vouchers_posted_total",
			Help: "Total opening-balance vouchers committed by initial status",
		}, []string{"status"}),

		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "coopledger_http_rate_limited_total",
			Help: "Total HTTP requests rejected by the rate limiter",
		}),
	}
}

// ObserveOperation records the outcome and duration of a ledger operation.
func (m *Metrics) ObserveOperation(operation, outcome string, d time.Duration) {
	if m != nil {
		m.OperationOutcome.WithLabelValues(operation, outcome).Inc()
		m.OperationLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// IncrementVouchersPosted records a committed voucher.
func (m *Metrics) IncrementVouchersPosted(status string) {
	if m != nil {
		m.VouchersPosted.WithLabelValues(status).Inc()
	}
}

// IncrementRateLimited records a rejected request.
func (m *Metrics) IncrementRateLimited() {
	if m != nil {
		m.RateLimited.Inc()
	}
}
