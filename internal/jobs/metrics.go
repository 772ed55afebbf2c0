package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	invoices   *prometheus.CounterVec
	skipped    *prometheus.CounterVec
	webhooks   *prometheus.CounterVec
	unbalanced prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddInvoices counts invoices created by a tick for the property.
func (m *Metrics) AddInvoices(propertyID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.invoices.WithLabelValues(formatInt(propertyID)).Add(float64(count))
}

// AddSkipped counts leases the tick left alone for reason.
func (m *Metrics) AddSkipped(reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.skipped.WithLabelValues(reason).Add(float64(count))
}

// ObserveWebhook counts a processed gateway event by outcome.
func (m *Metrics) ObserveWebhook(outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(outcome).Inc()
}

// SetUnbalanced records the number of unbalanced ledger events seen by the last sweep.
func (m *Metrics) SetUnbalanced(count int) {
	if m == nil {
		return
	}
	m.unbalanced.Set(float64(count))
}

func formatInt(v int64) string {
	if v <= 0 {
		return "0"
	}
	return strconv.FormatInt(v, 10)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	invoices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_rent_invoices_created_total",
		Help: "Invoices created by the billing tick grouped by property.",
	}, []string{"property"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_rent_leases_skipped_total",
		Help: "Leases skipped by the billing tick grouped by reason.",
	}, []string{"reason"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_rent_webhook_events_total",
		Help: "Gateway webhook events grouped by outcome.",
	}, []string{"outcome"})
	unbalanced := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_rent_ledger_unbalanced_events",
		Help: "Ledger events whose debits and credits differ, as of the last integrity sweep.",
	})
	registerer.MustRegister(runs, failures, duration, invoices, skipped, webhooks, unbalanced)
	return &Metrics{runs: runs, failures: failures, duration: duration, invoices: invoices, skipped: skipped, webhooks: webhooks, unbalanced: unbalanced}
}
