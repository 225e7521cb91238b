package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/patrickwarner/adsync/internal/models"
	"github.com/patrickwarner/adsync/internal/observability"
)

const defaultBackfillConcurrency = 5

// Backfill fills the business-level history of the most recent past days.
type Backfill struct {
	days        DaySyncer
	concurrency int
	loc         *time.Location
	now         func() time.Time
	logger      *zap.Logger
	metrics     observability.MetricsRegistry
}

// NewBackfill creates a Backfill running at most concurrency dates at once.
func NewBackfill(days DaySyncer, concurrency int, loc *time.Location, logger *zap.Logger, metrics observability.MetricsRegistry) *Backfill {
	if concurrency <= 0 {
		concurrency = defaultBackfillConcurrency
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Backfill{days: days, concurrency: concurrency, loc: loc, now: time.Now, logger: logger, metrics: metrics}
}

// Dates returns the n days before today, newest first, each at midnight in
// the reporting time zone. Today is excluded.
func (b *Backfill) Dates(n int) []time.Time {
	today := models.DayStart(b.now(), b.loc)
	dates := make([]time.Time, 0, n)
	for i := 1; i <= n; i++ {
		dates = append(dates, today.AddDate(0, 0, -i))
	}
	return dates
}

// Run syncs the account phase for each of the last days dates. A failing
// date is counted and never aborts the others. Dates not started because
// ctx ended count as failed.
func (b *Backfill) Run(ctx context.Context, business models.Business, days int) Summary {
	var synced, failed atomic.Int64
	var rateLimited atomic.Bool

	g := new(errgroup.Group)
	g.SetLimit(b.concurrency)
	for _, date := range b.Dates(days) {
		if ctx.Err() != nil {
			failed.Add(1)
			continue
		}
		g.Go(func() error {
			res, err := b.syncDate(ctx, business, date)
			if err != nil {
				failed.Add(1)
				b.metrics.IncrementSyncUnits("failed")
				b.logger.Warn("backfill date failed",
					zap.Int64("business_id", business.ID),
					zap.String("date", date.Format("2006-01-02")),
					zap.Error(err))
				if res.RateLimited() {
					rateLimited.Store(true)
				}
				return nil
			}
			synced.Add(1)
			b.metrics.IncrementSyncUnits("synced")
			return nil
		})
	}
	_ = g.Wait()

	return Summary{
		Synced:      int(synced.Load()),
		Failed:      int(failed.Load()),
		RateLimited: rateLimited.Load(),
	}
}

func (b *Backfill) syncDate(ctx context.Context, business models.Business, date time.Time) (res DayResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic syncing %s: %v", date.Format("2006-01-02"), r)
		}
	}()
	res = b.days.SyncBusinessDay(ctx, business, date)
	return res, res.Err()
}
