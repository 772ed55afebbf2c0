package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("billing_tick").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("billing_tick").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("billing_tick", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("billing_tick", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("billing_tick")))
}

func TestBillingCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddInvoices(4, 3)
	m.AddInvoices(4, 0)
	m.AddSkipped("no_active_lease", 2)
	m.ObserveWebhook("verified")
	m.SetUnbalanced(5)

	require.Equal(t, 3.0, testutil.ToFloat64(m.invoices.WithLabelValues("4")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.skipped.WithLabelValues("no_active_lease")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.webhooks.WithLabelValues("verified")))
	require.Equal(t, 5.0, testutil.ToFloat64(m.unbalanced))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddInvoices(1, 1)
	m.ObserveWebhook("ignored")
	m.SetUnbalanced(1)
	require.NoError(t, m.Track("x").End(nil))
}
