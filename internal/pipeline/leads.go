package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/graph"
)

// syncLeads copies the leads of every ad that reported leads for the day.
// One ad failing does not stop the others, except for a rate limit, which
// ends the phase since every later call would be rejected too.
func (o *Orchestrator) syncLeads(ctx context.Context, r *run, adIDs []string) (PhaseResult, error) {
	var res PhaseResult
	var errs []error
	for _, adID := range adIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := o.leads.SyncAd(ctx, r.business, adID)
		res.Rows += n
		res.Entities++
		if err == nil {
			continue
		}
		errs = append(errs, fmt.Errorf("ad %s: %w", adID, err))
		if graph.IsRateLimit(err) {
			o.logger.Warn("rate limited while syncing leads, stopping phase",
				zap.Int64("business_id", r.business.ID),
				zap.Int("remaining_ads", len(adIDs)-res.Entities))
			break
		}
	}
	return res, errors.Join(errs...)
}
