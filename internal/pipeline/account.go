package pipeline

import (
	"context"

	"github.com/patrickwarner/adsync/internal/graph"
	"github.com/patrickwarner/adsync/internal/kpi"
	"github.com/patrickwarner/adsync/internal/models"
)

// syncAccount writes the business-day row. A day without delivery has no
// insight record and writes nothing.
func (o *Orchestrator) syncAccount(ctx context.Context, r *run) (PhaseResult, error) {
	var res PhaseResult
	insights, err := o.platform.Insights(ctx, r.query(graph.LevelAccount))
	if err != nil {
		return res, err
	}
	if len(insights) == 0 {
		return res, nil
	}

	q := r.query(graph.LevelAccount)
	q.ActionBreakdowns = []string{graph.ActionBreakdownDestination}
	breakdown, err := o.platform.Insights(ctx, q)
	if err != nil {
		return res, err
	}
	var channels models.LeadChannels
	for _, in := range breakdown {
		addChannels(&channels, kpi.BucketLeads(in.Actions))
	}

	in := insights[0]
	hook, hold := kpi.Engagement(in)
	day := models.BusinessDay{
		BusinessID: r.business.ID,
		Date:       r.date,
		Metrics:    kpi.Parse(in),
		Channels:   channels,
		Reach:      in.Reach.Int(),
		Frequency:  in.Frequency.Float(),
		HookRate:   hook,
		HoldRate:   hold,
	}
	if err := o.analytics.UpsertBusinessDay(ctx, day); err != nil {
		return res, err
	}
	res.Rows = 1
	o.metrics.AddRowsUpserted(string(models.GrainBusiness), 1)
	return res, nil
}

func (r *run) query(level graph.Level) graph.InsightsQuery {
	return graph.InsightsQuery{
		AccountID:   r.business.AdAccountID,
		AccessToken: r.business.AccessToken,
		Date:        r.date,
		Level:       level,
	}
}

func addChannels(dst *models.LeadChannels, c models.LeadChannels) {
	dst.WhatsApp += c.WhatsApp
	dst.Instagram += c.Instagram
	dst.Messenger += c.Messenger
}
