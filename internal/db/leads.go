package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/patrickwarner/adsync/internal/models"
)

// LeadRepo persists lead-form submissions and their raw payloads.
type LeadRepo struct {
	db *sql.DB
}

// NewLeadRepo creates a LeadRepo.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

// On conflict only the attribution columns follow the platform. Status is
// operator-owned and contact columns are only filled while still NULL.
const upsertLeadSQL = `INSERT INTO leads (id, business_id, ad_id, ad_name, form_id, name, email, phone, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
ON CONFLICT (id) DO UPDATE SET
    ad_id = EXCLUDED.ad_id,
    ad_name = EXCLUDED.ad_name,
    business_id = EXCLUDED.business_id,
    name = COALESCE(leads.name, EXCLUDED.name),
    email = COALESCE(leads.email, EXCLUDED.email),
    phone = COALESCE(leads.phone, EXCLUDED.phone),
    updated_at = NOW()`

const upsertLeadPayloadSQL = `INSERT INTO lead_raw_payloads (id, lead_id, payload, received_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (lead_id) DO UPDATE SET payload = EXCLUDED.payload, received_at = NOW()`

// Upsert writes the lead and its raw platform payload in one transaction.
func (r *LeadRepo) Upsert(ctx context.Context, lead models.Lead, raw json.RawMessage) (err error) {
	status := lead.Status
	if status == "" {
		status = models.LeadStatusNew
	}
	var createdAt any
	if !lead.CreatedAt.IsZero() {
		createdAt = lead.CreatedAt
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin lead tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, upsertLeadSQL,
		lead.ID, lead.BusinessID, lead.AdID, lead.AdName, lead.FormID,
		nullString(lead.Name), nullString(lead.Email), nullString(lead.Phone),
		status, createdAt); err != nil {
		return fmt.Errorf("upsert lead %s: %w", lead.ID, err)
	}

	if len(raw) > 0 {
		if _, err = tx.ExecContext(ctx, upsertLeadPayloadSQL, uuid.NewString(), lead.ID, string(raw)); err != nil {
			return fmt.Errorf("store payload for lead %s: %w", lead.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit lead tx: %w", err)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
