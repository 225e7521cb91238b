package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/patrickwarner/adsync/internal/models"
)

// BusinessRepo reads the businesses whose ad accounts are synced.
type BusinessRepo struct {
	db *sql.DB
}

// NewBusinessRepo creates a BusinessRepo.
func NewBusinessRepo(db *sql.DB) *BusinessRepo { return &BusinessRepo{db: db} }

const businessColumns = `id, name, ad_account_id, access_token, active, COALESCE(color, ''), created_at`

// ListActive returns the active businesses ordered by id.
func (r *BusinessRepo) ListActive(ctx context.Context) ([]models.Business, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+businessColumns+` FROM businesses WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query businesses: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []models.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Get returns one business, or ErrBusinessNotFound.
func (r *BusinessRepo) Get(ctx context.Context, id int64) (models.Business, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id)
	b, err := scanBusiness(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Business{}, fmt.Errorf("business %d: %w", id, ErrBusinessNotFound)
	}
	return b, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBusiness(s scanner) (models.Business, error) {
	var b models.Business
	if err := s.Scan(&b.ID, &b.Name, &b.AdAccountID, &b.AccessToken, &b.Active, &b.Color, &b.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return b, err
		}
		return b, fmt.Errorf("scan business: %w", err)
	}
	return b, nil
}
