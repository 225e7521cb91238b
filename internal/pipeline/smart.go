package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/models"
	"github.com/patrickwarner/adsync/internal/observability"
)

// SmartOptions tune a SmartSync.
type SmartOptions struct {
	Days           int           // window size including today, default 7
	Delay          time.Duration // pause between days
	RateLimitDelay time.Duration // pause after a rate-limited day
	Location       *time.Location
	LockTTL        time.Duration
}

// SmartSync re-syncs the recent window with every phase, one day at a time,
// to pick up late attribution without hammering the platform.
type SmartSync struct {
	days    DaySyncer
	lock    businessLock
	opts    SmartOptions
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *zap.Logger
	metrics observability.MetricsRegistry
}

// NewSmartSync creates a SmartSync. locker may be nil.
func NewSmartSync(days DaySyncer, locker Locker, opts SmartOptions, logger *zap.Logger, metrics observability.MetricsRegistry) *SmartSync {
	if opts.Days <= 0 {
		opts.Days = 7
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &SmartSync{
		days:    days,
		lock:    businessLock{locker: locker, ttl: opts.LockTTL},
		opts:    opts,
		now:     time.Now,
		sleep:   sleepCtx,
		logger:  logger,
		metrics: metrics,
	}
}

// Run syncs today and the previous Days-1 days for each business, strictly
// sequentially. A locked business is skipped. Cancelling ctx ends the run
// after the current day.
func (s *SmartSync) Run(ctx context.Context, businesses []models.Business) Summary {
	var sum Summary
	today := models.DayStart(s.now(), s.opts.Location)
	first, backoff := true, false

	for _, b := range businesses {
		if ctx.Err() != nil {
			break
		}
		held, err := s.lock.run(ctx, b, func(ctx context.Context) {
			for i := 0; i < s.opts.Days; i++ {
				if !first && !s.pause(ctx, backoff) {
					return
				}
				first = false

				res := s.days.SyncDay(ctx, b, today.AddDate(0, 0, -i))
				if err := res.Err(); err != nil {
					sum.Failed++
					s.metrics.IncrementSyncUnits("failed")
					s.logger.Warn("smart sync day failed",
						zap.Int64("business_id", b.ID),
						zap.String("date", res.Date.Format("2006-01-02")),
						zap.Error(err))
				} else {
					sum.Synced++
					s.metrics.IncrementSyncUnits("synced")
				}
				backoff = res.RateLimited()
				if backoff {
					sum.RateLimited = true
				}
			}
		})
		if held {
			sum.Skipped++
			s.metrics.IncrementSyncUnits("skipped")
			s.logger.Info("business already syncing, skipped", zap.Int64("business_id", b.ID))
			continue
		}
		if err != nil {
			sum.Failed++
			s.logger.Error("smart sync lock failed", zap.Int64("business_id", b.ID), zap.Error(err))
		}
	}
	return sum
}

// pause waits before the next day. It returns false when ctx ended.
func (s *SmartSync) pause(ctx context.Context, rateLimited bool) bool {
	d := s.opts.Delay
	if rateLimited {
		d = s.opts.RateLimitDelay
		s.metrics.IncrementRateLimitBackoffs()
		s.logger.Warn("rate limited, backing off before next day", zap.Duration("delay", d))
	}
	return s.sleep(ctx, d) == nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
