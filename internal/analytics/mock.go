package analytics

import (
	"context"
	"sync"
)

// Nop discards every event. It is used when ClickHouse is not configured.
type Nop struct{}

// RecordPhase returns ErrUnavailable.
func (Nop) RecordPhase(context.Context, PhaseEvent) error { return ErrUnavailable }

var _ Recorder = Nop{}

// MockRecorder keeps events in memory for tests.
type MockRecorder struct {
	mu     sync.Mutex
	events []PhaseEvent
	Err    error
}

var _ Recorder = (*MockRecorder)(nil)

// RecordPhase stores ev, or returns Err when set.
func (m *MockRecorder) RecordPhase(_ context.Context, ev PhaseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (m *MockRecorder) Events() []PhaseEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PhaseEvent(nil), m.events...)
}
