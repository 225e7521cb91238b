// Package analytics keeps an append-only audit log of sync phases in
// ClickHouse, one row per phase run.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

// Recorder receives one event per finished sync phase. Implementations
// should return ErrUnavailable when their storage is not configured.
type Recorder interface {
	RecordPhase(ctx context.Context, ev PhaseEvent) error
}

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = errors.New("analytics unavailable")

// PhaseEvent mirrors a row in the sync_phase_events table.
type PhaseEvent struct {
	Timestamp  time.Time     `json:"timestamp"`
	RunID      string        `json:"run_id"`
	BusinessID int64         `json:"business_id"`
	Date       time.Time     `json:"date"`
	Phase      string        `json:"phase"`
	Rows       int           `json:"rows"`
	Skipped    int           `json:"skipped"`
	Duration   time.Duration `json:"duration_ns"`
	Error      string        `json:"error,omitempty"`
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB *sql.DB
}

var _ Recorder = (*Analytics)(nil)

const createPhaseEvents = `CREATE TABLE IF NOT EXISTS sync_phase_events (
       timestamp    DateTime64(3),
       run_id       String,
       business_id  Int64,
       date         Date,
       phase        LowCardinality(String),
       rows         UInt32,
       skipped      UInt32,
       duration_ms  UInt32,
       error        String
   ) ENGINE=MergeTree() ORDER BY (business_id, date, timestamp)`

// InitClickHouse connects to ClickHouse and ensures the events table exists.
func InitClickHouse(dsn string) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(5)
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), createPhaseEvents); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: db}, nil
}

// RecordPhase inserts a single phase row.
func (a *Analytics) RecordPhase(ctx context.Context, ev PhaseEvent) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	stmt := `INSERT INTO sync_phase_events (timestamp, run_id, business_id, date, phase, rows, skipped, duration_ms, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt,
		ev.Timestamp, ev.RunID, ev.BusinessID, ev.Date, ev.Phase,
		uint32(ev.Rows), uint32(ev.Skipped), uint32(ev.Duration.Milliseconds()), ev.Error); err != nil {
		return fmt.Errorf("insert %s phase event: %w", ev.Phase, err)
	}
	return nil
}

// RecentPhases returns the latest phase events of a business, newest first.
func (a *Analytics) RecentPhases(ctx context.Context, businessID int64, limit int) ([]PhaseEvent, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT timestamp, run_id, business_id, date, phase, rows, skipped, duration_ms, error FROM sync_phase_events WHERE business_id=? ORDER BY timestamp DESC LIMIT ?`
	rows, err := a.DB.QueryContext(ctx, query, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("query phase events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var events []PhaseEvent
	for rows.Next() {
		var ev PhaseEvent
		var rowCount, skipped, durationMS uint32
		if err := rows.Scan(&ev.Timestamp, &ev.RunID, &ev.BusinessID, &ev.Date, &ev.Phase, &rowCount, &skipped, &durationMS, &ev.Error); err != nil {
			return nil, fmt.Errorf("scan phase event: %w", err)
		}
		ev.Rows, ev.Skipped = int(rowCount), int(skipped)
		ev.Duration = time.Duration(durationMS) * time.Millisecond
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}
