package observability

import (
	"strings"
	"sync"
	"time"
)

var _ MetricsRegistry = (*MockMetricsRegistry)(nil)

// MockMetricsRegistry records metric calls in memory so tests can assert on them.
// Counters are keyed by metric name and label values joined with ":".
type MockMetricsRegistry struct {
	mu       sync.Mutex
	counters map[string]float64
	state    string
}

// NewMockMetricsRegistry creates an empty MockMetricsRegistry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{counters: make(map[string]float64)}
}

// Count returns the accumulated value for a metric and its labels.
func (m *MockMetricsRegistry) Count(name string, labels ...string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key(name, labels)]
}

// State returns the last value passed to SetSyncState.
func (m *MockMetricsRegistry) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MockMetricsRegistry) add(v float64, name string, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]float64)
	}
	m.counters[key(name, labels)] += v
}

func key(name string, labels []string) string {
	if len(labels) == 0 {
		return name
	}
	return name + ":" + strings.Join(labels, ":")
}

// HTTP Request metrics
func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.add(1, "requests", endpoint, method, status)
}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}

// Sync run metrics
func (m *MockMetricsRegistry) IncrementSyncRuns(mode, outcome string) {
	m.add(1, "sync_runs", mode, outcome)
}
func (m *MockMetricsRegistry) IncrementSyncUnits(outcome string) { m.add(1, "sync_units", outcome) }
func (m *MockMetricsRegistry) RecordPhaseLatency(phase string, duration time.Duration) {
	m.add(1, "phase_runs", phase)
}
func (m *MockMetricsRegistry) IncrementPhaseErrors(phase string) { m.add(1, "phase_errors", phase) }
func (m *MockMetricsRegistry) SetSyncState(state string) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// Persistence metrics
func (m *MockMetricsRegistry) AddRowsUpserted(grain string, n int) {
	m.add(float64(n), "rows_upserted", grain)
}
func (m *MockMetricsRegistry) AddOrphansSkipped(grain string, n int) {
	m.add(float64(n), "orphans_skipped", grain)
}
func (m *MockMetricsRegistry) AddLeadsSynced(n int) { m.add(float64(n), "leads_synced") }

// Ads platform metrics
func (m *MockMetricsRegistry) IncrementGraphRequests(endpoint, status string) {
	m.add(1, "graph_requests", endpoint, status)
}
func (m *MockMetricsRegistry) RecordGraphLatency(endpoint string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementRateLimitBackoffs()                                { m.add(1, "rate_limit_backoffs") }
func (m *MockMetricsRegistry) IncrementThrottleWaits(account string) {
	m.add(1, "throttle_waits", account)
}
