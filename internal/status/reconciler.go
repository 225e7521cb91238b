package status

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reconciler runs Register.Reconcile on a fixed interval.
type Reconciler struct {
	register *Register
	interval time.Duration
	logger   *zap.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(register *Register, interval time.Duration, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{register: register, interval: interval, logger: logger}
}

// Run blocks until ctx is done.
func (rc *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rc.register.Reconcile(ctx); err != nil && ctx.Err() == nil {
				rc.logger.Warn("sync status reconcile failed", zap.Error(err))
			}
		}
	}
}
