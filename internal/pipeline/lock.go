package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickwarner/adsync/internal/db"
	"github.com/patrickwarner/adsync/internal/models"
)

// businessLock keeps two jobs from syncing the same business at once.
// A nil locker runs every job unguarded.
type businessLock struct {
	locker Locker
	ttl    time.Duration
}

func lockKey(businessID int64) string {
	return fmt.Sprintf("sync:business:%d", businessID)
}

// run calls fn while holding the business lock. held is true when another
// job owns the lock and fn did not run.
func (l businessLock) run(ctx context.Context, b models.Business, fn func(context.Context)) (held bool, err error) {
	if l.locker == nil {
		fn(ctx)
		return false, nil
	}
	ttl := l.ttl
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	err = l.locker.WithLock(ctx, lockKey(b.ID), ttl, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
	if errors.Is(err, db.ErrLockHeld) {
		return true, nil
	}
	return false, err
}
