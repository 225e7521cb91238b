package leads

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/graph"
	"github.com/patrickwarner/adsync/internal/models"
	"github.com/patrickwarner/adsync/internal/observability"
)

// Source lists an ad's leads. *graph.Client satisfies it.
type Source interface {
	Leads(ctx context.Context, accountID, adID, token string) ([]graph.Lead, error)
}

// Store persists one lead with its raw payload. *db.LeadRepo satisfies it.
type Store interface {
	Upsert(ctx context.Context, lead models.Lead, raw json.RawMessage) error
}

// Syncer copies the leads of one ad into the store.
type Syncer struct {
	source  Source
	store   Store
	logger  *zap.Logger
	metrics observability.MetricsRegistry
}

// NewSyncer creates a Syncer.
func NewSyncer(source Source, store Store, logger *zap.Logger, metrics observability.MetricsRegistry) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Syncer{source: source, store: store, logger: logger, metrics: metrics}
}

// SyncAd fetches and upserts every lead of adID and returns how many were
// stored. A token without lead access is not an error: the ad is logged and
// skipped with a zero count.
func (s *Syncer) SyncAd(ctx context.Context, business models.Business, adID string) (int, error) {
	leads, err := s.source.Leads(ctx, business.AdAccountID, adID, business.AccessToken)
	if graph.IsPermissionDenied(err) {
		s.logger.Warn("no permission to read leads, skipping ad",
			zap.Int64("business_id", business.ID),
			zap.String("ad_id", adID),
			zap.Error(err))
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("fetch leads for ad %s: %w", adID, err)
	}

	stored := 0
	for _, l := range leads {
		raw, err := json.Marshal(l)
		if err != nil {
			return stored, fmt.Errorf("encode lead %s: %w", l.ID, err)
		}
		lead := FromGraph(l, business.ID)
		if lead.AdID == "" {
			lead.AdID = adID
		}
		if err := s.store.Upsert(ctx, lead, raw); err != nil {
			return stored, fmt.Errorf("store lead %s: %w", l.ID, err)
		}
		stored++
	}
	s.metrics.AddLeadsSynced(stored)
	return stored, nil
}
