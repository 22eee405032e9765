package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ShardQueryFailures counts per-shard read failures during fan-out. A
	// failed shard degrades to an empty contribution, never silently: this
	// counter is how that data loss stays observable.
	ShardQueryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcb_shard_query_failures_total",
			Help: "Shard queries that failed during aggregation fan-out",
		},
		[]string{"shard"},
	)

	RosterRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcb_roster_refreshes_total",
			Help: "District roster refresh attempts by result",
		},
		[]string{"result"},
	)

	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dcb_aggregation_duration_seconds",
			Help:    "Wall time of a full aggregation fan-out",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	SubmissionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcb_submission_transitions_total",
			Help: "Collection submission state transitions by action",
		},
		[]string{"action"},
	)
)
