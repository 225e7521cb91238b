package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/patrickwarner/adsync/internal/models"
)

// CampaignRepo persists campaign identities.
type CampaignRepo struct {
	db *sql.DB
}

// NewCampaignRepo creates a CampaignRepo.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

// Upsert inserts or refreshes a campaign in one statement.
func (r *CampaignRepo) Upsert(ctx context.Context, c models.Campaign) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO campaigns (id, business_id, name, status, objective, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (id) DO UPDATE SET
    business_id = EXCLUDED.business_id,
    name = EXCLUDED.name,
    status = EXCLUDED.status,
    objective = EXCLUDED.objective,
    updated_at = NOW()`,
		c.ID, c.BusinessID, c.Name, c.Status, c.Objective)
	if err != nil {
		return fmt.Errorf("upsert campaign %s: %w", c.ID, err)
	}
	return nil
}

// FindExistingIDs returns the subset of ids already stored.
func (r *CampaignRepo) FindExistingIDs(ctx context.Context, ids []string) (models.IDSet, error) {
	return findExistingIDs(ctx, r.db, "campaigns", ids)
}

// AdSetRepo persists ad set identities.
type AdSetRepo struct {
	db *sql.DB
}

// NewAdSetRepo creates an AdSetRepo.
func NewAdSetRepo(db *sql.DB) *AdSetRepo { return &AdSetRepo{db: db} }

// Upsert inserts or refreshes an ad set. The parent campaign must exist.
func (r *AdSetRepo) Upsert(ctx context.Context, s models.AdSet) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO adsets (id, campaign_id, business_id, name, status, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (id) DO UPDATE SET
    campaign_id = EXCLUDED.campaign_id,
    business_id = EXCLUDED.business_id,
    name = EXCLUDED.name,
    status = EXCLUDED.status,
    updated_at = NOW()`,
		s.ID, s.CampaignID, s.BusinessID, s.Name, s.Status)
	if err != nil {
		return fmt.Errorf("upsert adset %s: %w", s.ID, err)
	}
	return nil
}

// FindExistingIDs returns the subset of ids already stored.
func (r *AdSetRepo) FindExistingIDs(ctx context.Context, ids []string) (models.IDSet, error) {
	return findExistingIDs(ctx, r.db, "adsets", ids)
}

// AdRepo persists ads together with their resolved creative.
type AdRepo struct {
	db *sql.DB
}

// NewAdRepo creates an AdRepo.
func NewAdRepo(db *sql.DB) *AdRepo { return &AdRepo{db: db} }

// Upsert inserts or refreshes an ad. The parent ad set must exist.
func (r *AdRepo) Upsert(ctx context.Context, a models.Ad) error {
	creative, err := json.Marshal(a.Creative)
	if err != nil {
		return fmt.Errorf("encode creative for ad %s: %w", a.ID, err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO ads (id, adset_id, campaign_id, business_id, name, status, creative, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
ON CONFLICT (id) DO UPDATE SET
    adset_id = EXCLUDED.adset_id,
    campaign_id = EXCLUDED.campaign_id,
    business_id = EXCLUDED.business_id,
    name = EXCLUDED.name,
    status = EXCLUDED.status,
    creative = EXCLUDED.creative,
    updated_at = NOW()`,
		a.ID, a.AdSetID, a.CampaignID, a.BusinessID, a.Name, a.Status, string(creative))
	if err != nil {
		return fmt.Errorf("upsert ad %s: %w", a.ID, err)
	}
	return nil
}

// FindExistingIDs returns the subset of ids already stored.
func (r *AdRepo) FindExistingIDs(ctx context.Context, ids []string) (models.IDSet, error) {
	return findExistingIDs(ctx, r.db, "ads", ids)
}

// findExistingIDs checks membership of every id with a single query,
// whatever the number of ids. table is always a package constant.
func findExistingIDs(ctx context.Context, db *sql.DB, table string, ids []string) (models.IDSet, error) {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return models.IDSet{}, nil
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE id = ANY($1)`, table), pq.Array(unique))
	if err != nil {
		return nil, fmt.Errorf("query existing %s: %w", table, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	found := make(models.IDSet, len(unique))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s id: %w", table, err)
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return found, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
