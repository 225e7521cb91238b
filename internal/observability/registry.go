package observability

import "time"

// syncStates lists every value SetSyncState may receive.
var syncStates = []string{"idle", "syncing", "success", "failed"}

// MetricsRegistry provides an interface for recording application metrics.
// Components receive it by injection instead of touching the Prometheus globals.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Sync run metrics
	IncrementSyncRuns(mode, outcome string)
	IncrementSyncUnits(outcome string)
	RecordPhaseLatency(phase string, duration time.Duration)
	IncrementPhaseErrors(phase string)
	SetSyncState(state string)

	// Persistence metrics
	AddRowsUpserted(grain string, n int)
	AddOrphansSkipped(grain string, n int)
	AddLeadsSynced(n int)

	// Ads platform metrics
	IncrementGraphRequests(endpoint, status string)
	RecordGraphLatency(endpoint string, duration time.Duration)
	IncrementRateLimitBackoffs()
	IncrementThrottleWaits(account string)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

// HTTP Request metrics
func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// Sync run metrics
func (r *PrometheusRegistry) IncrementSyncRuns(mode, outcome string) {
	SyncRuns.WithLabelValues(mode, outcome).Inc()
}

func (r *PrometheusRegistry) IncrementSyncUnits(outcome string) {
	SyncUnits.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordPhaseLatency(phase string, duration time.Duration) {
	PhaseLatency.WithLabelValues(phase).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementPhaseErrors(phase string) {
	PhaseErrors.WithLabelValues(phase).Inc()
}

func (r *PrometheusRegistry) SetSyncState(state string) {
	for _, s := range syncStates {
		v := 0.0
		if s == state {
			v = 1
		}
		SyncState.WithLabelValues(s).Set(v)
	}
}

// Persistence metrics
func (r *PrometheusRegistry) AddRowsUpserted(grain string, n int) {
	RowsUpserted.WithLabelValues(grain).Add(float64(n))
}

func (r *PrometheusRegistry) AddOrphansSkipped(grain string, n int) {
	OrphansSkipped.WithLabelValues(grain).Add(float64(n))
}

func (r *PrometheusRegistry) AddLeadsSynced(n int) {
	LeadsSynced.Add(float64(n))
}

// Ads platform metrics
func (r *PrometheusRegistry) IncrementGraphRequests(endpoint, status string) {
	GraphRequests.WithLabelValues(endpoint, status).Inc()
}

func (r *PrometheusRegistry) RecordGraphLatency(endpoint string, duration time.Duration) {
	GraphLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementRateLimitBackoffs() {
	RateLimitBackoffs.Inc()
}

func (r *PrometheusRegistry) IncrementThrottleWaits(account string) {
	ThrottleWaits.WithLabelValues(account).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

// HTTP Request metrics
func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}

// Sync run metrics
func (r *NoOpRegistry) IncrementSyncRuns(mode, outcome string)                  {}
func (r *NoOpRegistry) IncrementSyncUnits(outcome string)                       {}
func (r *NoOpRegistry) RecordPhaseLatency(phase string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementPhaseErrors(phase string)                       {}
func (r *NoOpRegistry) SetSyncState(state string)                               {}

// Persistence metrics
func (r *NoOpRegistry) AddRowsUpserted(grain string, n int)   {}
func (r *NoOpRegistry) AddOrphansSkipped(grain string, n int) {}
func (r *NoOpRegistry) AddLeadsSynced(n int)                  {}

// Ads platform metrics
func (r *NoOpRegistry) IncrementGraphRequests(endpoint, status string)             {}
func (r *NoOpRegistry) RecordGraphLatency(endpoint string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementRateLimitBackoffs()                                {}
func (r *NoOpRegistry) IncrementThrottleWaits(account string)                      {}
