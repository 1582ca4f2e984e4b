// Package metrics exposes the worker's Prometheus instrumentation. None of
// these counters are load-bearing for correctness; the Job row's status
// column remains the single source of truth.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every counter/histogram the worker records. It is
// constructed once at process start and passed by reference, matching the
// explicit-init convention used for every other worker component.
type Metrics struct {
	JobsClaimed    prometheus.Counter
	JobsSucceeded  prometheus.Counter
	JobsFailed     *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	HeartbeatFails prometheus.Counter
	ReclaimedJobs  prometheus.Counter
	ClipsRendered  prometheus.Counter
}

// New registers and returns a fresh Metrics bundle against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry across test runs.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		JobsClaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "clipworker_jobs_claimed_total",
			Help: "Number of jobs claimed from the job store.",
		}),
		JobsSucceeded: factory.NewCounter(prometheus.CounterOpts{
			Name: "clipworker_jobs_succeeded_total",
			Help: "Number of jobs that reached the done status.",
		}),
		JobsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clipworker_jobs_failed_total",
			Help: "Number of jobs that reached the failed status, by error kind.",
		}, []string{"kind"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clipworker_stage_duration_seconds",
			Help:    "Wall-clock duration of each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"stage"}),
		HeartbeatFails: factory.NewCounter(prometheus.CounterOpts{
			Name: "clipworker_heartbeat_failures_total",
			Help: "Heartbeat writes that failed and were swallowed.",
		}),
		ReclaimedJobs: factory.NewCounter(prometheus.CounterOpts{
			Name: "clipworker_jobs_reclaimed_total",
			Help: "Jobs requeued by stale reclaim.",
		}),
		ClipsRendered: factory.NewCounter(prometheus.CounterOpts{
			Name: "clipworker_clips_rendered_total",
			Help: "Individual clip MP4s successfully rendered.",
		}),
	}
}
