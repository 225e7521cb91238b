// Package app wires configuration, storage and the ads platform client into
// the sync runner shared by the HTTP server and the MCP server.
package app

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/analytics"
	"github.com/patrickwarner/adsync/internal/config"
	"github.com/patrickwarner/adsync/internal/db"
	"github.com/patrickwarner/adsync/internal/graph"
	"github.com/patrickwarner/adsync/internal/leads"
	"github.com/patrickwarner/adsync/internal/observability"
	"github.com/patrickwarner/adsync/internal/pipeline"
	"github.com/patrickwarner/adsync/internal/ratelimit"
	"github.com/patrickwarner/adsync/internal/reporting"
	"github.com/patrickwarner/adsync/internal/status"
)

// App holds the long-lived dependencies of a running process.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Metrics    observability.MetricsRegistry
	Postgres   *db.Postgres
	Redis      *db.RedisStore
	ClickHouse *analytics.Analytics // nil when no DSN is configured

	Register   *status.Register
	Runner     *pipeline.Runner
	Scheduler  *pipeline.Scheduler
	Reconciler *status.Reconciler
	Reports    *reporting.Reporter

	closers []func()
}

// New connects to every backing store and builds the sync pipeline.
// Close must be called to release the connections.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, metrics observability.MetricsRegistry) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: metrics}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	a.Postgres = pg
	a.closers = append(a.closers, pg.Close)

	rdb, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	a.Redis = rdb
	a.closers = append(a.closers, rdb.Close)

	var recorder analytics.Recorder = analytics.Nop{}
	if cfg.ClickHouseDSN != "" {
		ch, err := analytics.InitClickHouse(cfg.ClickHouseDSN)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect clickhouse: %w", err)
		}
		a.ClickHouse = ch
		a.closers = append(a.closers, ch.Close)
		recorder = ch
	} else {
		logger.Info("ClickHouse not configured, phase events disabled")
	}

	loc := cfg.Location()
	platform := newPlatform(cfg, logger, metrics)

	var leadSyncer pipeline.LeadSyncer
	if cfg.SyncLeads {
		leadSyncer = leads.NewSyncer(platform, db.NewLeadRepo(pg.DB), logger, metrics)
	}

	orch := pipeline.NewOrchestrator(pipeline.Deps{
		Platform:  platform,
		Campaigns: db.NewCampaignRepo(pg.DB),
		AdSets:    db.NewAdSetRepo(pg.DB),
		Ads:       db.NewAdRepo(pg.DB),
		Analytics: db.NewAnalyticsRepo(pg.DB),
		Leads:     leadSyncer,
		Recorder:  recorder,
		Logger:    logger,
		Metrics:   metrics,
	}, pipeline.Options{ChunkSize: cfg.UpsertChunkSize, Location: loc})

	smart := pipeline.NewSmartSync(orch, rdb, pipeline.SmartOptions{
		Days:           cfg.SmartSyncDays,
		Delay:          cfg.SmartSyncDelay,
		RateLimitDelay: cfg.RateLimitDelay,
		Location:       loc,
		LockTTL:        cfg.LockTTL,
	}, logger, metrics)

	a.Register = status.NewRegister(db.NewSettingsRepo(pg.DB), cfg.StatusGracePeriod, cfg.StatusStaleAfter, logger, metrics)
	a.Runner = pipeline.NewRunner(pipeline.RunnerDeps{
		Businesses: db.NewBusinessRepo(pg.DB),
		Status:     a.Register,
		Locker:     rdb,
		Days:       orch,
		Backfill:   pipeline.NewBackfill(orch, cfg.BackfillConcurrency, loc, logger, metrics),
		Smart:      smart,
		Logger:     logger,
		Metrics:    metrics,
	}, cfg.LockTTL, loc)
	a.Scheduler = pipeline.NewScheduler(a.Runner, a.Register, cfg.AutoSyncInterval, cfg.SyncTimeout, logger)
	a.Reconciler = status.NewReconciler(a.Register, cfg.ReconcileInterval, logger)
	a.Reports = reporting.NewReporter(pg.DB, loc)

	// A run left in progress by a crashed process is settled before serving.
	if _, err := a.Register.Reconcile(ctx); err != nil {
		logger.Warn("initial status reconcile", zap.Error(err))
	}
	return a, nil
}

// newPlatform builds the traced, retrying and throttled Graph API client.
func newPlatform(cfg config.Config, logger *zap.Logger, metrics observability.MetricsRegistry) *graph.Client {
	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   cfg.GraphTimeout,
	}
	limiter := ratelimit.NewAccountLimiter(ratelimit.Config{
		Capacity:   cfg.ThrottleCapacity,
		RefillRate: cfg.ThrottleRefill,
		Enabled:    cfg.ThrottleEnabled,
	}, metrics)
	client := graph.NewClient(cfg.GraphBaseURL, graph.NewRetryClient(httpClient, cfg.GraphMaxRetries, logger), limiter, logger, metrics)
	client.SetPageLimit(cfg.GraphPageLimit)
	return client
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
