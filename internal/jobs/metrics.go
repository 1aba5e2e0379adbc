package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for ledger background jobs.
type Metrics struct {
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	unbalanced prometheus.Gauge
	recurring  prometheus.Counter
	partial    prometheus.Counter
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

// SetUnbalancedEntries publishes the latest integrity scan result.
func (m *Metrics) SetUnbalancedEntries(count int) {
	if m == nil {
		return
	}
	m.unbalanced.Set(float64(count))
}

// AddRecurringEntries counts drafts produced by recurring expansion.
func (m *Metrics) AddRecurringEntries(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.recurring.Add(float64(count))
}

// IncPartialRevaluation counts revaluations left without their reversal.
func (m *Metrics) IncPartialRevaluation() {
	if m == nil {
		return
	}
	m.partial.Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	unbalanced := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_gl_unbalanced_entries",
		Help: "Posted journal entries whose lines do not balance, as of the last integrity scan.",
	})
	recurring := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_recurring_entries_created_total",
		Help: "Draft entries generated from recurring patterns.",
	})
	partial := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_forex_partial_revaluations_total",
		Help: "Revaluation entries posted whose automatic reversal failed.",
	})
	registerer.MustRegister(runs, failures, duration, unbalanced, recurring, partial)
	return &Metrics{
		runs:       runs,
		failures:   failures,
		duration:   duration,
		unbalanced: unbalanced,
		recurring:  recurring,
		partial:    partial,
	}
}
