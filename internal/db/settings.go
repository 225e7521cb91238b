package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/patrickwarner/adsync/internal/models"
)

// SettingsRepo is the generic system_settings key/value store.
type SettingsRepo struct {
	db *sql.DB
}

// NewSettingsRepo creates a SettingsRepo.
func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

// Get returns the setting stored under key, or ErrSettingNotFound.
func (r *SettingsRepo) Get(ctx context.Context, key string) (models.Setting, error) {
	s := models.Setting{Key: key}
	err := r.db.QueryRowContext(ctx, `SELECT value, updated_at FROM system_settings WHERE key = $1`, key).
		Scan(&s.Value, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("setting %q: %w", key, ErrSettingNotFound)
	}
	if err != nil {
		return s, fmt.Errorf("get setting %q: %w", key, err)
	}
	return s, nil
}

// Set stores value under key, replacing any previous value.
func (r *SettingsRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO system_settings (key, value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// CompareAndSet replaces the value under key only if the row still holds
// old's value and update time. It reports whether the row was changed.
func (r *SettingsRepo) CompareAndSet(ctx context.Context, key string, old models.Setting, value string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE system_settings SET value = $2, updated_at = NOW()
WHERE key = $1 AND value = $3 AND updated_at = $4`, key, value, old.Value, old.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("compare and set setting %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("compare and set setting %q: %w", key, err)
	}
	return n == 1, nil
}
