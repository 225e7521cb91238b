package pipeline

import (
	"context"
	"time"

	"github.com/patrickwarner/adsync/internal/graph"
	"github.com/patrickwarner/adsync/internal/models"
	"github.com/patrickwarner/adsync/internal/status"
)

// Platform is the slice of the ads platform client the pipeline needs.
// *graph.Client satisfies it.
type Platform interface {
	Insights(ctx context.Context, q graph.InsightsQuery) ([]graph.Insight, error)
	Campaigns(ctx context.Context, accountID, token string) ([]graph.Campaign, error)
	AdSets(ctx context.Context, accountID, token string) ([]graph.AdSet, error)
	Ads(ctx context.Context, accountID, token string) ([]graph.Ad, error)
}

// EntityStore persists one entity grain. *db.CampaignRepo, *db.AdSetRepo
// and *db.AdRepo satisfy it for their types.
type EntityStore[T any] interface {
	Upsert(ctx context.Context, v T) error
	FindExistingIDs(ctx context.Context, ids []string) (models.IDSet, error)
}

// AnalyticsStore writes aggregate rows. *db.AnalyticsRepo satisfies it.
type AnalyticsStore interface {
	UpsertBusinessDay(ctx context.Context, d models.BusinessDay) error
	UpsertCampaignDay(ctx context.Context, d models.EntityDay) error
	UpsertAdSetDay(ctx context.Context, d models.EntityDay) error
	UpsertAdDay(ctx context.Context, d models.EntityDay) error
	UpsertHourlyStats(ctx context.Context, stats []models.HourlyStat) error
}

// LeadSyncer copies one ad's leads. *leads.Syncer satisfies it.
type LeadSyncer interface {
	SyncAd(ctx context.Context, business models.Business, adID string) (int, error)
}

// BusinessStore lists the businesses to sync. *db.BusinessRepo satisfies it.
type BusinessStore interface {
	ListActive(ctx context.Context) ([]models.Business, error)
	Get(ctx context.Context, id int64) (models.Business, error)
}

// StatusRegister is the global sync status. *status.Register satisfies it.
type StatusRegister interface {
	Begin(ctx context.Context) error
	Finish(ctx context.Context, runErr error) error
	Current(ctx context.Context) (status.Status, error)
}

// Locker serialises work per key across processes. fn must not run when
// the key is held; the error then wraps db.ErrLockHeld. *db.RedisStore
// satisfies it.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// DaySyncer runs the per-day phases. *Orchestrator satisfies it.
type DaySyncer interface {
	SyncDay(ctx context.Context, b models.Business, date time.Time) DayResult
	SyncBusinessDay(ctx context.Context, b models.Business, date time.Time) DayResult
}
