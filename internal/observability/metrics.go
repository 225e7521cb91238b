package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adsync_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// sync entry point invocations by mode and outcome
	SyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_sync_runs_total",
			Help: "Total sync runs by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	// (business, date) units processed by outcome
	SyncUnits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_sync_units_total",
			Help: "Total business-date units synced, by outcome",
		},
		[]string{"outcome"},
	)

	// per-phase duration
	PhaseLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adsync_phase_duration_seconds",
			Help:    "Duration of sync pipeline phases",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"phase"},
	)

	// per-phase failures
	PhaseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_phase_errors_total",
			Help: "Total sync phase failures",
		},
		[]string{"phase"},
	)

	// rows written per grain
	RowsUpserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_rows_upserted_total",
			Help: "Total rows upserted by grain",
		},
		[]string{"grain"},
	)

	// insight rows dropped because their entity is not known locally
	OrphansSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_orphans_skipped_total",
			Help: "Total insight or identity rows skipped for a missing parent",
		},
		[]string{"grain"},
	)

	// ads platform requests by endpoint and status
	GraphRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_graph_requests_total",
			Help: "Total ads platform requests",
		},
		[]string{"endpoint", "status"},
	)

	// ads platform request latency
	GraphLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adsync_graph_request_duration_seconds",
			Help:    "Duration of ads platform requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// sleeps triggered by platform rate limit errors
	RateLimitBackoffs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adsync_rate_limit_backoffs_total",
			Help: "Total backoff sleeps after a rate limit error",
		},
	)

	// requests that had to wait for a throttle token, per ad account
	ThrottleWaits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_throttle_waits_total",
			Help: "Total requests delayed by the per-account throttle",
		},
		[]string{"account"},
	)

	// leads written
	LeadsSynced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adsync_leads_synced_total",
			Help: "Total leads upserted",
		},
	)

	// current sync status, one series set to 1 per state
	SyncState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adsync_sync_state",
			Help: "Current sync status (1 for the active state)",
		},
		[]string{"state"},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		SyncRuns,
		SyncUnits,
		PhaseLatency,
		PhaseErrors,
		RowsUpserted,
		OrphansSkipped,
		GraphRequests,
		GraphLatency,
		RateLimitBackoffs,
		ThrottleWaits,
		LeadsSynced,
		SyncState,
	)
}
