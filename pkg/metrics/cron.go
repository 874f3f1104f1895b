package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sweep durations are dominated by row counts, not network latency, so the
// buckets stretch further than the prometheus defaults.
var sweepBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// CronJobMetrics tracks the dispatch sweep jobs (auto-drop, no-show,
// window expiry, weekly generation, preference lock).
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewCronJobMetrics registers the sweep metrics on the provided registerer.
// A nil registerer yields a no-op recorder, which the tests rely on.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "routepilot",
		Subsystem: "cron",
		Name:      "job_duration_seconds",
		Help:      "Wall time of one dispatch sweep job run.",
		Buckets:   sweepBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "routepilot",
		Subsystem: "cron",
		Name:      "job_success_total",
		Help:      "Sweep job runs that completed.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "routepilot",
		Subsystem: "cron",
		Name:      "job_failure_total",
		Help:      "Sweep job runs that returned an error.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure)
	return &CronJobMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
	}
}

// ObserveDuration records how long the named job ran.
func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(jobLabel(job)).Observe(duration.Seconds())
}

// IncSuccess counts a completed run of the named job.
func (c *CronJobMetrics) IncSuccess(job string) {
	if c == nil || c.success == nil {
		return
	}
	c.success.WithLabelValues(jobLabel(job)).Inc()
}

// IncFailure counts a failed run of the named job.
func (c *CronJobMetrics) IncFailure(job string) {
	if c == nil || c.failure == nil {
		return
	}
	c.failure.WithLabelValues(jobLabel(job)).Inc()
}

func jobLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
