// Package pipeline pulls one business's ad performance from the ads
// platform into the analytics tables. An Orchestrator syncs one day,
// the Backfill and SmartSync drivers sweep date ranges, and the Runner is
// the entry point used by the API, the MCP server and the scheduler.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/analytics"
	"github.com/patrickwarner/adsync/internal/graph"
	"github.com/patrickwarner/adsync/internal/models"
	"github.com/patrickwarner/adsync/internal/observability"
)

// Phase names one step of a day sync.
type Phase string

const (
	PhaseAccount   Phase = "account"
	PhaseCampaigns Phase = "campaigns"
	PhaseAdSets    Phase = "adsets"
	PhaseAds       Phase = "ads"
	PhaseHourly    Phase = "hourly"
	PhaseLeads     Phase = "leads"
)

// PhaseResult is the outcome of one phase. Entities counts identity rows
// upserted, Rows counts aggregate rows (or leads) written and Skipped
// counts records dropped because their entity or parent is unknown.
type PhaseResult struct {
	Phase    Phase         `json:"phase"`
	Entities int           `json:"entities"`
	Rows     int           `json:"rows"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// DayResult collects the phases run for one business and date.
type DayResult struct {
	BusinessID int64         `json:"business_id"`
	Date       time.Time     `json:"date"`
	Phases     []PhaseResult `json:"phases"`
}

// Failed reports whether any phase failed.
func (r DayResult) Failed() bool {
	for _, p := range r.Phases {
		if p.Err != nil {
			return true
		}
	}
	return false
}

// Err joins the phase errors, each prefixed with its phase.
func (r DayResult) Err() error {
	var errs []error
	for _, p := range r.Phases {
		if p.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Phase, p.Err))
		}
	}
	return errors.Join(errs...)
}

// RateLimited reports whether any phase was rejected by a platform rate limit.
func (r DayResult) RateLimited() bool {
	for _, p := range r.Phases {
		if graph.IsRateLimit(p.Err) {
			return true
		}
	}
	return false
}

// Deps are the collaborators of an Orchestrator. Leads may be nil to skip
// the leads phase. Recorder, Logger and Metrics default to no-ops.
type Deps struct {
	Platform  Platform
	Campaigns EntityStore[models.Campaign]
	AdSets    EntityStore[models.AdSet]
	Ads       EntityStore[models.Ad]
	Analytics AnalyticsStore
	Leads     LeadSyncer
	Recorder  analytics.Recorder
	Logger    *zap.Logger
	Metrics   observability.MetricsRegistry
}

// Options tune an Orchestrator.
type Options struct {
	ChunkSize int            // identity upserts per concurrent chunk, default 20
	Location  *time.Location // reporting time zone for date keys, default UTC
}

const defaultChunkSize = 20

// Orchestrator runs the phases of a day sync in a fixed order.
type Orchestrator struct {
	platform  Platform
	campaigns EntityStore[models.Campaign]
	adsets    EntityStore[models.AdSet]
	ads       EntityStore[models.Ad]
	analytics AnalyticsStore
	leads     LeadSyncer
	recorder  analytics.Recorder
	logger    *zap.Logger
	metrics   observability.MetricsRegistry
	tracer    trace.Tracer
	chunkSize int
	loc       *time.Location
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(d Deps, opts Options) *Orchestrator {
	o := &Orchestrator{
		platform:  d.Platform,
		campaigns: d.Campaigns,
		adsets:    d.AdSets,
		ads:       d.Ads,
		analytics: d.Analytics,
		leads:     d.Leads,
		recorder:  d.Recorder,
		logger:    d.Logger,
		metrics:   d.Metrics,
		tracer:    observability.Tracer("pipeline"),
		chunkSize: opts.ChunkSize,
		loc:       opts.Location,
	}
	if o.recorder == nil {
		o.recorder = analytics.Nop{}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.metrics == nil {
		o.metrics = observability.NewNoOpRegistry()
	}
	if o.chunkSize <= 0 {
		o.chunkSize = defaultChunkSize
	}
	if o.loc == nil {
		o.loc = time.UTC
	}
	return o
}

// Location returns the reporting time zone.
func (o *Orchestrator) Location() *time.Location { return o.loc }

// SyncDay runs every phase for one business and date. A failing phase is
// recorded and the next phase still runs; there is no rollback. A cancelled
// context stops before the next phase.
func (o *Orchestrator) SyncDay(ctx context.Context, b models.Business, date time.Time) DayResult {
	day := o.newRun(b, date)
	res := DayResult{BusinessID: b.ID, Date: day.date}

	res.Phases = append(res.Phases, o.runPhase(ctx, day, PhaseAccount, o.syncAccount))

	var leadAds []string
	stages := []struct {
		phase Phase
		fn    phaseFunc
	}{
		{PhaseCampaigns, o.syncCampaigns},
		{PhaseAdSets, o.syncAdSets},
		{PhaseAds, func(ctx context.Context, r *run) (PhaseResult, error) {
			pr, ids, err := o.syncAds(ctx, r)
			leadAds = ids
			return pr, err
		}},
		{PhaseHourly, o.syncHourly},
	}
	for _, s := range stages {
		if ctx.Err() != nil {
			return res
		}
		res.Phases = append(res.Phases, o.runPhase(ctx, day, s.phase, s.fn))
	}

	if o.leads != nil && len(leadAds) > 0 && ctx.Err() == nil {
		res.Phases = append(res.Phases, o.runPhase(ctx, day, PhaseLeads, func(ctx context.Context, r *run) (PhaseResult, error) {
			return o.syncLeads(ctx, r, leadAds)
		}))
	}
	return res
}

// SyncBusinessDay runs the account phase only. Backfills use it to fill the
// business-level history without walking the entity hierarchy.
func (o *Orchestrator) SyncBusinessDay(ctx context.Context, b models.Business, date time.Time) DayResult {
	day := o.newRun(b, date)
	return DayResult{
		BusinessID: b.ID,
		Date:       day.date,
		Phases:     []PhaseResult{o.runPhase(ctx, day, PhaseAccount, o.syncAccount)},
	}
}

// run is the per-day context shared by the phases.
type run struct {
	id       string
	business models.Business
	date     time.Time
}

func (o *Orchestrator) newRun(b models.Business, date time.Time) *run {
	return &run{id: uuid.NewString(), business: b, date: models.DayStart(date, o.loc)}
}

type phaseFunc func(ctx context.Context, r *run) (PhaseResult, error)

func (o *Orchestrator) runPhase(ctx context.Context, r *run, phase Phase, fn phaseFunc) PhaseResult {
	ctx, span := o.tracer.Start(ctx, "sync."+string(phase),
		trace.WithAttributes(
			attribute.String("sync.run_id", r.id),
			attribute.Int64("business_id", r.business.ID),
			attribute.String("sync.date", r.date.Format("2006-01-02")),
		))
	defer span.End()

	start := time.Now()
	res, err := fn(ctx, r)
	res.Phase = phase
	res.Duration = time.Since(start)
	res.Err = err

	span.SetAttributes(
		attribute.Int("sync.rows", res.Rows),
		attribute.Int("sync.skipped", res.Skipped),
	)
	o.metrics.RecordPhaseLatency(string(phase), res.Duration)

	fields := []zap.Field{
		zap.String("run_id", r.id),
		zap.Int64("business_id", r.business.ID),
		zap.String("date", r.date.Format("2006-01-02")),
		zap.String("phase", string(phase)),
		zap.Int("entities", res.Entities),
		zap.Int("rows", res.Rows),
		zap.Int("skipped", res.Skipped),
		zap.Duration("duration", res.Duration),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.IncrementPhaseErrors(string(phase))
		o.logger.Error("sync phase failed", append(fields, zap.Error(err))...)
	} else {
		o.logger.Info("sync phase complete", fields...)
	}

	ev := analytics.PhaseEvent{
		Timestamp:  start,
		RunID:      r.id,
		BusinessID: r.business.ID,
		Date:       r.date,
		Phase:      string(phase),
		Rows:       res.Rows,
		Skipped:    res.Skipped,
		Duration:   res.Duration,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if err := o.recorder.RecordPhase(ctx, ev); err != nil && !errors.Is(err, analytics.ErrUnavailable) {
		o.logger.Warn("failed to record sync phase event", zap.String("phase", string(phase)), zap.Error(err))
	}
	return res
}
