package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/models"
	"github.com/patrickwarner/adsync/internal/observability"
	"github.com/patrickwarner/adsync/internal/status"
)

// Sync modes accepted by the Runner entry points.
const (
	ModeBusiness = "business"
	ModeAll      = "all"
	ModeSmart    = "smart"
)

const (
	DefaultBackfillDays = 30
	MaxBackfillDays     = 365
)

// Summary is the outcome of one sync run. Units are business-days, except
// for Skipped which counts businesses another job was already syncing.
type Summary struct {
	Mode        string        `json:"mode"`
	Synced      int           `json:"synced"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	RateLimited bool          `json:"rate_limited"`
	Status      status.Status `json:"status"`
}

func (s *Summary) add(o Summary) {
	s.Synced += o.Synced
	s.Failed += o.Failed
	s.Skipped += o.Skipped
	s.RateLimited = s.RateLimited || o.RateLimited
}

// RunnerDeps are the collaborators of a Runner.
type RunnerDeps struct {
	Businesses BusinessStore
	Status     StatusRegister
	Locker     Locker
	Days       DaySyncer
	Backfill   *Backfill
	Smart      *SmartSync
	Logger     *zap.Logger
	Metrics    observability.MetricsRegistry
}

// Runner is the entry point for every sync: it drives the global status,
// takes the per-business lock and counts units.
type Runner struct {
	businesses BusinessStore
	status     StatusRegister
	lock       businessLock
	days       DaySyncer
	backfill   *Backfill
	smart      *SmartSync
	loc        *time.Location
	now        func() time.Time
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
}

// NewRunner creates a Runner. Dates for SyncAllActive are taken in loc.
func NewRunner(d RunnerDeps, lockTTL time.Duration, loc *time.Location) *Runner {
	r := &Runner{
		businesses: d.Businesses,
		status:     d.Status,
		lock:       businessLock{locker: d.Locker, ttl: lockTTL},
		days:       d.Days,
		backfill:   d.Backfill,
		smart:      d.Smart,
		loc:        loc,
		now:        time.Now,
		logger:     d.Logger,
		metrics:    d.Metrics,
	}
	if r.loc == nil {
		r.loc = time.UTC
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.metrics == nil {
		r.metrics = observability.NewNoOpRegistry()
	}
	return r
}

// SyncBusiness backfills the last days days of one business. days outside
// 1..MaxBackfillDays falls back to DefaultBackfillDays.
func (r *Runner) SyncBusiness(ctx context.Context, businessID int64, days int) (Summary, error) {
	if days <= 0 || days > MaxBackfillDays {
		days = DefaultBackfillDays
	}
	return r.execute(ctx, ModeBusiness, func(ctx context.Context) (Summary, error) {
		b, err := r.businesses.Get(ctx, businessID)
		if err != nil {
			return Summary{}, fmt.Errorf("load business %d: %w", businessID, err)
		}
		return r.guarded(ctx, b, func(ctx context.Context) Summary {
			return r.backfill.Run(ctx, b, days)
		})
	})
}

// SyncAllActive runs the full day sync for today on every active business.
func (r *Runner) SyncAllActive(ctx context.Context) (Summary, error) {
	return r.execute(ctx, ModeAll, func(ctx context.Context) (Summary, error) {
		businesses, err := r.businesses.ListActive(ctx)
		if err != nil {
			return Summary{}, err
		}
		today := models.DayStart(r.now(), r.loc)

		var sum Summary
		for _, b := range businesses {
			if ctx.Err() != nil {
				break
			}
			s, err := r.guarded(ctx, b, func(ctx context.Context) Summary {
				res := r.days.SyncDay(ctx, b, today)
				if err := res.Err(); err != nil {
					r.metrics.IncrementSyncUnits("failed")
					r.logger.Warn("business sync failed", zap.Int64("business_id", b.ID), zap.Error(err))
					return Summary{Failed: 1, RateLimited: res.RateLimited()}
				}
				r.metrics.IncrementSyncUnits("synced")
				return Summary{Synced: 1}
			})
			if err != nil {
				r.logger.Error("business lock failed", zap.Int64("business_id", b.ID), zap.Error(err))
				s.Failed++
			}
			sum.add(s)
		}
		return sum, nil
	})
}

// SmartSync re-syncs the recent window of every active business.
func (r *Runner) SmartSync(ctx context.Context) (Summary, error) {
	return r.execute(ctx, ModeSmart, func(ctx context.Context) (Summary, error) {
		businesses, err := r.businesses.ListActive(ctx)
		if err != nil {
			return Summary{}, err
		}
		return r.smart.Run(ctx, businesses), nil
	})
}

// guarded runs fn under the business lock. A held lock yields Skipped=1.
func (r *Runner) guarded(ctx context.Context, b models.Business, fn func(context.Context) Summary) (Summary, error) {
	var sum Summary
	held, err := r.lock.run(ctx, b, func(ctx context.Context) {
		sum = fn(ctx)
	})
	if held {
		r.metrics.IncrementSyncUnits("skipped")
		r.logger.Info("business already syncing, skipped", zap.Int64("business_id", b.ID))
		return Summary{Skipped: 1}, nil
	}
	return sum, err
}

// execute wraps a run with the status register. Only a failure to start
// the run is returned; unit failures are counted in the Summary. A run
// where every unit failed finishes the status as failed.
func (r *Runner) execute(ctx context.Context, mode string, fn func(context.Context) (Summary, error)) (Summary, error) {
	statusCtx := context.WithoutCancel(ctx)
	if err := r.status.Begin(statusCtx); err != nil {
		r.logger.Warn("failed to mark sync as started", zap.String("mode", mode), zap.Error(err))
	}

	start := time.Now()
	sum, err := fn(ctx)
	sum.Mode = mode

	runErr := err
	if runErr == nil && sum.Failed > 0 && sum.Synced == 0 {
		runErr = errors.New("every sync unit failed")
	}
	if ferr := r.status.Finish(statusCtx, runErr); ferr != nil {
		r.logger.Warn("failed to record sync outcome", zap.String("mode", mode), zap.Error(ferr))
	}
	if st, serr := r.status.Current(statusCtx); serr == nil {
		sum.Status = st
	}

	outcome := "success"
	if runErr != nil {
		outcome = "failed"
	}
	r.metrics.IncrementSyncRuns(mode, outcome)
	r.logger.Info("sync run finished",
		zap.String("mode", mode),
		zap.String("outcome", outcome),
		zap.Int("synced", sum.Synced),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped),
		zap.Bool("rate_limited", sum.RateLimited),
		zap.Duration("duration", time.Since(start)))

	if err != nil {
		return sum, fmt.Errorf("start %s sync: %w", mode, err)
	}
	return sum, nil
}
