package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Engine metrics
	CalculationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staycount_calculations_total",
			Help: "Compliance summaries computed",
		},
		[]string{"jurisdiction", "status"},
	)

	SimulationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staycount_simulations_total",
			Help: "Trip simulations and planner searches run",
		},
		[]string{"jurisdiction", "kind", "outcome"},
	)

	// Rule registry metrics
	RuleCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "staycount_rule_cache_hits_total",
			Help: "Rule registry cache hits",
		},
	)

	RuleCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "staycount_rule_cache_misses_total",
			Help: "Rule registry cache misses",
		},
	)

	// Summary cache metrics
	SummaryCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "staycount_summary_cache_hits_total",
			Help: "Summary cache hits",
		},
	)

	SummaryCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "staycount_summary_cache_misses_total",
			Help: "Summary cache misses",
		},
	)

	// Snapshot job metrics
	SnapshotJobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "staycount_snapshot_job_duration_seconds",
			Help:    "Snapshot job duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	SnapshotsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staycount_snapshots_written_total",
			Help: "Snapshots persisted",
		},
		[]string{"reason"},
	)

	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staycount_alerts_total",
			Help: "Status transitions dispatched to notifiers",
		},
		[]string{"jurisdiction", "direction"},
	)

	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staycount_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "staycount_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(
		CalculationsTotal,
		SimulationsTotal,
		RuleCacheHits,
		RuleCacheMisses,
		SummaryCacheHits,
		SummaryCacheMisses,
		SnapshotJobDuration,
		SnapshotsWritten,
		AlertsTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
