// Package status tracks the global sync state shown to operators. The state
// is persisted in the system_settings table so every process sees the same
// value, and a scheduled reconciliation returns finished or abandoned runs
// to idle.
package status

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/db"
	"github.com/patrickwarner/adsync/internal/models"
	"github.com/patrickwarner/adsync/internal/observability"
)

// State is the coarse sync state.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateSuccess State = "success"
	StateFailed  State = "failed"
)

// Setting keys in system_settings.
const (
	KeyStatus   = "sync_status"
	KeyLastSync = "last_sync_at"
	KeyAutoSync = "auto_sync_enabled"
)

// Status is a snapshot of the register.
type Status struct {
	State      State      `json:"state"`
	Since      time.Time  `json:"since"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	AutoSync   bool       `json:"auto_sync_enabled"`
}

// Store is the key/value persistence behind a Register. *db.SettingsRepo
// satisfies it. Get must wrap db.ErrSettingNotFound for missing keys, and
// CompareAndSet must leave the row alone unless both value and update time
// still match old.
type Store interface {
	Get(ctx context.Context, key string) (models.Setting, error)
	Set(ctx context.Context, key, value string) error
	CompareAndSet(ctx context.Context, key string, old models.Setting, value string) (bool, error)
}

// Register reads and writes the sync status.
type Register struct {
	store   Store
	grace   time.Duration
	stale   time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics observability.MetricsRegistry
}

// NewRegister creates a Register. grace is how long success or failed stays
// visible before reverting to idle; stale is how long syncing may last
// before it is treated as abandoned.
func NewRegister(store Store, grace, stale time.Duration, logger *zap.Logger, metrics observability.MetricsRegistry) *Register {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Register{
		store:   store,
		grace:   grace,
		stale:   stale,
		now:     time.Now,
		logger:  logger,
		metrics: metrics,
	}
}

// Begin marks a sync as running.
func (r *Register) Begin(ctx context.Context) error {
	return r.setState(ctx, StateSyncing)
}

// Finish records the outcome of a run. A nil runErr means success and also
// stamps last_sync_at.
func (r *Register) Finish(ctx context.Context, runErr error) error {
	if runErr != nil {
		return r.setState(ctx, StateFailed)
	}
	if err := r.store.Set(ctx, KeyLastSync, r.now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("record last sync: %w", err)
	}
	return r.setState(ctx, StateSuccess)
}

// Current returns the persisted status. Missing keys read as idle with
// auto sync disabled.
func (r *Register) Current(ctx context.Context) (Status, error) {
	st := Status{State: StateIdle}

	s, err := r.store.Get(ctx, KeyStatus)
	switch {
	case err == nil:
		st.State = parseState(s.Value)
		st.Since = s.UpdatedAt
	case !errors.Is(err, db.ErrSettingNotFound):
		return st, fmt.Errorf("read sync status: %w", err)
	}

	s, err = r.store.Get(ctx, KeyLastSync)
	switch {
	case err == nil:
		if t, perr := time.Parse(time.RFC3339, s.Value); perr == nil {
			st.LastSyncAt = &t
		}
	case !errors.Is(err, db.ErrSettingNotFound):
		return st, fmt.Errorf("read last sync: %w", err)
	}

	st.AutoSync, err = r.AutoSyncEnabled(ctx)
	return st, err
}

// AutoSyncEnabled reports whether the scheduler may start syncs.
func (r *Register) AutoSyncEnabled(ctx context.Context) (bool, error) {
	s, err := r.store.Get(ctx, KeyAutoSync)
	if errors.Is(err, db.ErrSettingNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read auto sync flag: %w", err)
	}
	enabled, _ := strconv.ParseBool(s.Value)
	return enabled, nil
}

// SetAutoSync turns the scheduler on or off.
func (r *Register) SetAutoSync(ctx context.Context, enabled bool) error {
	if err := r.store.Set(ctx, KeyAutoSync, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("write auto sync flag: %w", err)
	}
	r.logger.Info("auto sync toggled", zap.Bool("enabled", enabled))
	return nil
}

// Reconcile reverts success and failed to idle once older than the grace
// period, and syncing to idle once older than the stale threshold. Newer
// states are left alone, and so is a state rewritten after it was read, so
// a sync that begins mid-check keeps its syncing state. It returns the
// status after reconciliation.
func (r *Register) Reconcile(ctx context.Context) (Status, error) {
	row, err := r.store.Get(ctx, KeyStatus)
	if errors.Is(err, db.ErrSettingNotFound) {
		return r.Current(ctx)
	}
	if err != nil {
		return Status{State: StateIdle}, fmt.Errorf("read sync status: %w", err)
	}

	state := parseState(row.Value)
	if state == StateIdle || row.UpdatedAt.IsZero() {
		return r.Current(ctx)
	}

	age := r.now().Sub(row.UpdatedAt)
	switch {
	case (state == StateSuccess || state == StateFailed) && age >= r.grace:
	case state == StateSyncing && age >= r.stale:
		r.logger.Warn("sync status stuck in syncing, resetting",
			zap.Duration("age", age),
			zap.Duration("stale_after", r.stale))
	default:
		return r.Current(ctx)
	}

	reset, err := r.store.CompareAndSet(ctx, KeyStatus, row, string(StateIdle))
	if err != nil {
		return Status{State: state, Since: row.UpdatedAt}, fmt.Errorf("reset sync status: %w", err)
	}
	if reset {
		r.metrics.SetSyncState(string(StateIdle))
		r.logger.Debug("sync status reconciled", zap.String("from", string(state)))
	} else {
		r.logger.Debug("sync status changed during reconcile, leaving it",
			zap.String("read", string(state)))
	}
	return r.Current(ctx)
}

func (r *Register) setState(ctx context.Context, s State) error {
	if err := r.store.Set(ctx, KeyStatus, string(s)); err != nil {
		return fmt.Errorf("write sync status %s: %w", s, err)
	}
	r.metrics.SetSyncState(string(s))
	return nil
}

func parseState(v string) State {
	switch s := State(v); s {
	case StateSyncing, StateSuccess, StateFailed:
		return s
	default:
		return StateIdle
	}
}
