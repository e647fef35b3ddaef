package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors for the hot paths. Registered on the default registry and served
// by promhttp on /metrics.
var (
	FanoutJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedcore",
		Subsystem: "fanout",
		Name:      "jobs_total",
		Help:      "Fanout jobs by terminal status.",
	}, []string{"status"}) // applied, retried, dead_letter

	FanoutEntriesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "feedcore",
		Subsystem: "fanout",
		Name:      "entries_written_total",
		Help:      "Timeline entries written by push workers.",
	})

	FanoutLanding = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "feedcore",
		Subsystem: "fanout",
		Name:      "landing_seconds",
		Help:      "Latency from job creation to applied.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	TimelineReadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "feedcore",
		Subsystem: "read",
		Name:      "timeline_seconds",
		Help:      "Assembled timeline read latency.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	DegradedReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedcore",
		Subsystem: "read",
		Name:      "degraded_total",
		Help:      "Reads that returned partial or fallback results.",
	}, []string{"reason"}) // deadline, push_error, pull_error, affinity_down

	TrendingRollupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "feedcore",
		Subsystem: "trending",
		Name:      "rollup_seconds",
		Help:      "Duration of one trending rollup pass.",
		Buckets:   prometheus.DefBuckets,
	})
)
