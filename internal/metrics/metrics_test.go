package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// TestObserveOperation tests outcome counting per label pair
func TestObserveOperation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOperation("open_account", "success", 10*time.Millisecond)
	m.ObserveOperation("open_account", "success", 12*time.Millisecond)
	m.ObserveOperation("open_account", "duplicate", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationOutcome.WithLabelValues("open_account", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationOutcome.WithLabelValues("open_account", "duplicate")))
}

// TestVouchersPosted tests the voucher counter
func TestVouchersPosted(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementVouchersPosted("Verified")
	m.IncrementRateLimited()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.VouchersPosted.WithLabelValues("Verified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))
}

// TestNilMetrics tests that a nil receiver is a no-op
func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("open_account", "success", time.Millisecond)
		m.IncrementVouchersPosted("Verified")
		m.IncrementRateLimited()
	})
}
