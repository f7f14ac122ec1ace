package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the scheduler's Prometheus collectors. A nil *Metrics
// is valid and records nothing, so tests can run without a registry.
type Metrics struct {
	submitted  prometheus.Counter
	completed  prometheus.Counter
	failed     prometheus.Counter
	retries    prometheus.Counter
	queueDepth prometheus.Gauge
	duration   prometheus.Histogram
}

// NewMetrics creates and registers the scheduler collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qhaul_jobs_submitted_total",
			Help: "Total number of jobs submitted to the scheduler",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qhaul_jobs_completed_total",
			Help: "Total number of jobs that reached COMPLETED",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qhaul_jobs_failed_total",
			Help: "Total number of jobs that exhausted their retry budget",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qhaul_job_retries_total",
			Help: "Total number of retry attempts across all jobs",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qhaul_queue_depth",
			Help: "Current number of queued jobs",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "qhaul_job_duration_seconds",
			Help:    "Wall-clock time from submission to terminal state",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
	reg.MustRegister(m.submitted, m.completed, m.failed, m.retries, m.queueDepth, m.duration)
	return m
}

func (m *Metrics) jobSubmitted() {
	if m == nil {
		return
	}
	m.submitted.Inc()
	m.queueDepth.Inc()
}

func (m *Metrics) jobDequeued() {
	if m == nil {
		return
	}
	m.queueDepth.Dec()
}

func (m *Metrics) jobRequeued() {
	if m == nil {
		return
	}
	m.queueDepth.Inc()
}

func (m *Metrics) jobRetried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) jobCompleted(seconds float64) {
	if m == nil {
		return
	}
	m.completed.Inc()
	m.duration.Observe(seconds)
}

func (m *Metrics) jobFailed(seconds float64) {
	if m == nil {
		return
	}
	m.failed.Inc()
	m.duration.Observe(seconds)
}
