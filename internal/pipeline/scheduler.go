package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// AutoSyncGate reports whether scheduled syncs are enabled.
// *status.Register satisfies it.
type AutoSyncGate interface {
	AutoSyncEnabled(ctx context.Context) (bool, error)
}

// Scheduler runs SyncAllActive on a ticker while auto sync is enabled.
type Scheduler struct {
	runner   *Runner
	gate     AutoSyncGate
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewScheduler creates a Scheduler. Each tick's run is bounded by timeout.
func NewScheduler(runner *Runner, gate AutoSyncGate, interval, timeout time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{runner: runner, gate: gate, interval: interval, timeout: timeout, logger: logger}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	enabled, err := s.gate.AutoSyncEnabled(ctx)
	if err != nil {
		s.logger.Error("failed to read auto sync flag", zap.Error(err))
		return
	}
	if !enabled {
		return
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if _, err := s.runner.SyncAllActive(ctx); err != nil {
		s.logger.Error("scheduled sync failed", zap.Error(err))
	}
}
