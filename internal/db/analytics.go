package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/patrickwarner/adsync/internal/models"
)

// AnalyticsRepo writes the per-day and per-hour aggregate rows. Every write
// replaces the stored metrics wholesale, so re-syncing a day converges on
// the platform's latest numbers.
type AnalyticsRepo struct {
	db *sql.DB
}

// NewAnalyticsRepo creates an AnalyticsRepo.
func NewAnalyticsRepo(db *sql.DB) *AnalyticsRepo { return &AnalyticsRepo{db: db} }

const metricColumns = `spend, impressions, clicks, leads, conversions, revenue,
    ctr, cpm, cpc, cpl, cvr, roas, leads_whatsapp, leads_instagram, leads_messenger`

const metricUpdates = `spend = EXCLUDED.spend,
    impressions = EXCLUDED.impressions,
    clicks = EXCLUDED.clicks,
    leads = EXCLUDED.leads,
    conversions = EXCLUDED.conversions,
    revenue = EXCLUDED.revenue,
    ctr = EXCLUDED.ctr,
    cpm = EXCLUDED.cpm,
    cpc = EXCLUDED.cpc,
    cpl = EXCLUDED.cpl,
    cvr = EXCLUDED.cvr,
    roas = EXCLUDED.roas,
    leads_whatsapp = EXCLUDED.leads_whatsapp,
    leads_instagram = EXCLUDED.leads_instagram,
    leads_messenger = EXCLUDED.leads_messenger,
    updated_at = NOW()`

// dateArg renders a day key as a DATE literal. Passing a timestamp would let
// the server's time zone shift the day.
func dateArg(t time.Time) string { return t.Format("2006-01-02") }

func metricArgs(m models.Metrics, c models.LeadChannels) []any {
	return []any{
		m.Spend, m.Impressions, m.Clicks, m.Leads, m.Conversions, m.Revenue,
		m.CTR, m.CPM, m.CPC, m.CPL, m.CVR, m.ROAS,
		c.WhatsApp, c.Instagram, c.Messenger,
	}
}

// UpsertBusinessDay writes one business-day row keyed on (business_id, date).
func (r *AnalyticsRepo) UpsertBusinessDay(ctx context.Context, d models.BusinessDay) error {
	query := `INSERT INTO business_daily_insights (business_id, date, ` + metricColumns + `,
    reach, frequency, hook_rate, hold_rate, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, NOW())
ON CONFLICT (business_id, date) DO UPDATE SET
    ` + metricUpdates + `,
    reach = EXCLUDED.reach,
    frequency = EXCLUDED.frequency,
    hook_rate = EXCLUDED.hook_rate,
    hold_rate = EXCLUDED.hold_rate`

	args := append([]any{d.BusinessID, dateArg(d.Date)}, metricArgs(d.Metrics, d.Channels)...)
	args = append(args, d.Reach, d.Frequency, d.HookRate, d.HoldRate)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert business day %d/%s: %w", d.BusinessID, dateArg(d.Date), err)
	}
	return nil
}

// UpsertCampaignDay writes one campaign-day row.
func (r *AnalyticsRepo) UpsertCampaignDay(ctx context.Context, d models.EntityDay) error {
	return r.upsertEntityDay(ctx, "campaign_daily_insights", "campaign_id", d)
}

// UpsertAdSetDay writes one adset-day row.
func (r *AnalyticsRepo) UpsertAdSetDay(ctx context.Context, d models.EntityDay) error {
	return r.upsertEntityDay(ctx, "adset_daily_insights", "adset_id", d)
}

// UpsertAdDay writes one ad-day row.
func (r *AnalyticsRepo) UpsertAdDay(ctx context.Context, d models.EntityDay) error {
	return r.upsertEntityDay(ctx, "ad_daily_insights", "ad_id", d)
}

func (r *AnalyticsRepo) upsertEntityDay(ctx context.Context, table, keyColumn string, d models.EntityDay) error {
	query := fmt.Sprintf(`INSERT INTO %[1]s (%[2]s, business_id, date, %[3]s, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NOW())
ON CONFLICT (%[2]s, date) DO UPDATE SET
    business_id = EXCLUDED.business_id,
    %[4]s`, table, keyColumn, metricColumns, metricUpdates)

	args := append([]any{d.EntityID, d.BusinessID, dateArg(d.Date)}, metricArgs(d.Metrics, d.Channels)...)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s %s/%s: %w", table, d.EntityID, dateArg(d.Date), err)
	}
	return nil
}

const upsertHourlySQL = `INSERT INTO hourly_stats (business_id, date, hour, spend, impressions, clicks, messaging_conversations)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (business_id, date, hour) DO UPDATE SET
    spend = EXCLUDED.spend,
    impressions = EXCLUDED.impressions,
    clicks = EXCLUDED.clicks,
    messaging_conversations = EXCLUDED.messaging_conversations`

// UpsertHourlyStats writes a batch of hour rows in one transaction. Any
// failing row rolls back the whole batch.
func (r *AnalyticsRepo) UpsertHourlyStats(ctx context.Context, stats []models.HourlyStat) (err error) {
	if len(stats) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin hourly tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, s := range stats {
		if _, err = tx.ExecContext(ctx, upsertHourlySQL,
			s.BusinessID, dateArg(s.Date), s.Hour, s.Spend, s.Impressions, s.Clicks, s.MessagingConversations); err != nil {
			return fmt.Errorf("upsert hour %d: %w", s.Hour, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit hourly tx: %w", err)
	}
	return nil
}

// BusinessDays returns the stored business-day rows in [from, to], oldest first.
func (r *AnalyticsRepo) BusinessDays(ctx context.Context, businessID int64, from, to string) ([]models.BusinessDay, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT business_id, date, `+metricColumns+`,
    reach, frequency, hook_rate, hold_rate
FROM business_daily_insights
WHERE business_id = $1 AND date BETWEEN $2 AND $3
ORDER BY date`, businessID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query business days: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []models.BusinessDay
	for rows.Next() {
		var d models.BusinessDay
		m, c := &d.Metrics, &d.Channels
		if err := rows.Scan(&d.BusinessID, &d.Date,
			&m.Spend, &m.Impressions, &m.Clicks, &m.Leads, &m.Conversions, &m.Revenue,
			&m.CTR, &m.CPM, &m.CPC, &m.CPL, &m.CVR, &m.ROAS,
			&c.WhatsApp, &c.Instagram, &c.Messenger,
			&d.Reach, &d.Frequency, &d.HookRate, &d.HoldRate); err != nil {
			return nil, fmt.Errorf("scan business day: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
