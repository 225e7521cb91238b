package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/creative"
	"github.com/patrickwarner/adsync/internal/graph"
	"github.com/patrickwarner/adsync/internal/kpi"
	"github.com/patrickwarner/adsync/internal/models"
)

// identitiesReady is handed to an insight step once the identity step of
// the same stage has returned. Only runStage creates one, so an insight
// step cannot be called ahead of its identities.
type identitiesReady struct {
	grain models.Grain
}

// identityFunc upserts the entities of a stage and reports how many were
// written and how many were skipped as orphans.
type identityFunc func(ctx context.Context, r *run) (written, skipped int, err error)

// runStage runs the identity step and then the insight step of an entity
// stage. The insight step runs even when some identities failed: it only
// writes rows for ids that exist.
func (o *Orchestrator) runStage(ctx context.Context, r *run, grain models.Grain, identity identityFunc,
	insights func(context.Context, *run, identitiesReady) (insightCounts, error)) (PhaseResult, error) {
	var res PhaseResult
	written, skipped, idErr := identity(ctx, r)
	res.Entities = written
	res.Skipped = skipped
	if idErr != nil {
		idErr = fmt.Errorf("identities: %w", idErr)
	}
	if err := ctx.Err(); err != nil {
		return res, errors.Join(idErr, err)
	}

	counts, inErr := insights(ctx, r, identitiesReady{grain: grain})
	res.Rows = counts.rows
	res.Skipped += counts.skipped
	if inErr != nil {
		inErr = fmt.Errorf("insights: %w", inErr)
	}
	return res, errors.Join(idErr, inErr)
}

func (o *Orchestrator) syncCampaigns(ctx context.Context, r *run) (PhaseResult, error) {
	return o.runStage(ctx, r, models.GrainCampaign, o.campaignIdentities,
		func(ctx context.Context, r *run, ready identitiesReady) (insightCounts, error) {
			return o.entityInsights(ctx, r, ready, graph.LevelCampaign, o.campaigns.FindExistingIDs, o.analytics.UpsertCampaignDay)
		})
}

func (o *Orchestrator) syncAdSets(ctx context.Context, r *run) (PhaseResult, error) {
	return o.runStage(ctx, r, models.GrainAdSet, o.adSetIdentities,
		func(ctx context.Context, r *run, ready identitiesReady) (insightCounts, error) {
			return o.entityInsights(ctx, r, ready, graph.LevelAdSet, o.adsets.FindExistingIDs, o.analytics.UpsertAdSetDay)
		})
}

// syncAds also returns the ids of ads that reported leads for the day.
func (o *Orchestrator) syncAds(ctx context.Context, r *run) (PhaseResult, []string, error) {
	var leadAds []string
	res, err := o.runStage(ctx, r, models.GrainAd, o.adIdentities,
		func(ctx context.Context, r *run, ready identitiesReady) (insightCounts, error) {
			counts, err := o.entityInsights(ctx, r, ready, graph.LevelAd, o.ads.FindExistingIDs, o.analytics.UpsertAdDay)
			leadAds = counts.leadIDs
			return counts, err
		})
	return res, leadAds, err
}

func (o *Orchestrator) campaignIdentities(ctx context.Context, r *run) (int, int, error) {
	items, err := o.platform.Campaigns(ctx, r.business.AdAccountID, r.business.AccessToken)
	if err != nil {
		return 0, 0, err
	}
	campaigns := make([]models.Campaign, 0, len(items))
	for _, c := range items {
		campaigns = append(campaigns, models.Campaign{
			ID:         c.ID,
			BusinessID: r.business.ID,
			Name:       c.Name,
			Status:     effectiveStatus(c.EffectiveStatus, c.Status),
			Objective:  c.Objective,
		})
	}
	n, err := upsertChunked(ctx, campaigns, o.chunkSize, o.campaigns.Upsert)
	return n, 0, err
}

func (o *Orchestrator) adSetIdentities(ctx context.Context, r *run) (int, int, error) {
	items, err := o.platform.AdSets(ctx, r.business.AdAccountID, r.business.AccessToken)
	if err != nil {
		return 0, 0, err
	}
	parents := make([]string, 0, len(items))
	for _, s := range items {
		parents = append(parents, s.CampaignID)
	}
	known, err := o.campaigns.FindExistingIDs(ctx, parents)
	if err != nil {
		return 0, 0, fmt.Errorf("check parent campaigns: %w", err)
	}

	sets := make([]models.AdSet, 0, len(items))
	for _, s := range items {
		if !known.Has(s.CampaignID) {
			continue
		}
		sets = append(sets, models.AdSet{
			ID:         s.ID,
			CampaignID: s.CampaignID,
			BusinessID: r.business.ID,
			Name:       s.Name,
			Status:     effectiveStatus(s.EffectiveStatus, s.Status),
		})
	}
	o.skipOrphans(r, models.GrainAdSet, len(items)-len(sets))
	n, err := upsertChunked(ctx, sets, o.chunkSize, o.adsets.Upsert)
	return n, len(items) - len(sets), err
}

func (o *Orchestrator) adIdentities(ctx context.Context, r *run) (int, int, error) {
	items, err := o.platform.Ads(ctx, r.business.AdAccountID, r.business.AccessToken)
	if err != nil {
		return 0, 0, err
	}
	parents := make([]string, 0, len(items))
	for _, a := range items {
		parents = append(parents, a.AdSetID)
	}
	known, err := o.adsets.FindExistingIDs(ctx, parents)
	if err != nil {
		return 0, 0, fmt.Errorf("check parent adsets: %w", err)
	}

	ads := make([]models.Ad, 0, len(items))
	for _, a := range items {
		if !known.Has(a.AdSetID) {
			continue
		}
		ads = append(ads, models.Ad{
			ID:         a.ID,
			AdSetID:    a.AdSetID,
			CampaignID: a.CampaignID,
			BusinessID: r.business.ID,
			Name:       a.Name,
			Status:     effectiveStatus(a.EffectiveStatus, a.Status),
			Creative:   creative.Extract(a.Creative),
		})
	}
	o.skipOrphans(r, models.GrainAd, len(items)-len(ads))
	n, err := upsertChunked(ctx, ads, o.chunkSize, o.ads.Upsert)
	return n, len(items) - len(ads), err
}

type insightCounts struct {
	rows    int
	skipped int
	leadIDs []string
}

// entityInsights writes the day rows of one entity level. Records whose
// entity is not stored locally are skipped; existence is checked with a
// single query for the whole level.
func (o *Orchestrator) entityInsights(ctx context.Context, r *run, ready identitiesReady, level graph.Level,
	exists func(context.Context, []string) (models.IDSet, error),
	upsert func(context.Context, models.EntityDay) error) (insightCounts, error) {
	var counts insightCounts

	insights, err := o.platform.Insights(ctx, r.query(level))
	if err != nil {
		return counts, err
	}
	if len(insights) == 0 {
		return counts, nil
	}

	q := r.query(level)
	q.ActionBreakdowns = []string{graph.ActionBreakdownDestination}
	breakdown, err := o.platform.Insights(ctx, q)
	if err != nil {
		return counts, fmt.Errorf("destination breakdown: %w", err)
	}
	channels := make(map[string]models.LeadChannels, len(breakdown))
	for _, in := range breakdown {
		id := in.EntityID(level)
		c := channels[id]
		addChannels(&c, kpi.BucketLeads(in.Actions))
		channels[id] = c
	}

	ids := make([]string, 0, len(insights))
	for _, in := range insights {
		ids = append(ids, in.EntityID(level))
	}
	known, err := exists(ctx, ids)
	if err != nil {
		return counts, fmt.Errorf("check %s ids: %w", ready.grain, err)
	}

	var rows []models.EntityDay
	for _, in := range insights {
		id := in.EntityID(level)
		if !known.Has(id) {
			counts.skipped++
			continue
		}
		day := models.EntityDay{
			EntityID:   id,
			BusinessID: r.business.ID,
			Date:       r.date,
			Metrics:    kpi.Parse(in),
			Channels:   channels[id],
		}
		if day.Leads > 0 {
			counts.leadIDs = append(counts.leadIDs, id)
		}
		rows = append(rows, day)
	}
	o.skipOrphans(r, ready.grain, counts.skipped)

	counts.rows, err = upsertChunked(ctx, rows, o.chunkSize, upsert)
	o.metrics.AddRowsUpserted(string(ready.grain), counts.rows)
	return counts, err
}

func (o *Orchestrator) skipOrphans(r *run, grain models.Grain, n int) {
	if n <= 0 {
		return
	}
	o.metrics.AddOrphansSkipped(string(grain), n)
	o.logger.Debug("skipped records with unknown entity",
		zap.Int64("business_id", r.business.ID),
		zap.String("grain", string(grain)),
		zap.Int("count", n))
}

func effectiveStatus(effective, status string) string {
	if effective != "" {
		return effective
	}
	return status
}
