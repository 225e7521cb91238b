// Package reporting builds KPI reports from the stored business-day rows.
package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/patrickwarner/adsync/internal/db"
	"github.com/patrickwarner/adsync/internal/kpi"
	"github.com/patrickwarner/adsync/internal/models"
)

const (
	DefaultDays = 30
	MaxDays     = 365
)

// DayReader loads business-day rows for an inclusive date range given as
// YYYY-MM-DD. *db.AnalyticsRepo satisfies it.
type DayReader interface {
	BusinessDays(ctx context.Context, businessID int64, from, to string) ([]models.BusinessDay, error)
}

// Totals are the window aggregates. Rates are re-derived from the summed
// counts; HookRate and HoldRate are impression-weighted averages.
type Totals struct {
	models.Metrics
	Channels models.LeadChannels `json:"channels"`
	HookRate float64             `json:"hook_rate"`
	HoldRate float64             `json:"hold_rate"`
}

// BusinessSummary is a business performance report over a window of days.
type BusinessSummary struct {
	BusinessID int64                `json:"business_id"`
	From       string               `json:"from"`
	To         string               `json:"to"`
	Days       int                  `json:"days"`
	Totals     Totals               `json:"totals"`
	Daily      []models.BusinessDay `json:"daily"`
}

// Reporter generates business reports.
type Reporter struct {
	days DayReader
	loc  *time.Location
	now  func() time.Time
}

// NewReporter creates a Reporter reading from the Postgres analytics tables.
// Windows end today in loc.
func NewReporter(sqlDB *sql.DB, loc *time.Location) *Reporter {
	return newReporter(db.NewAnalyticsRepo(sqlDB), loc)
}

func newReporter(days DayReader, loc *time.Location) *Reporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Reporter{days: days, loc: loc, now: time.Now}
}

// BusinessReport sums the last days days of a business, today included.
// days outside 1..MaxDays falls back to DefaultDays. Days without delivery
// have no row and are absent from Daily.
func (r *Reporter) BusinessReport(ctx context.Context, businessID int64, days int) (*BusinessSummary, error) {
	if days <= 0 || days > MaxDays {
		days = DefaultDays
	}
	today := models.DayStart(r.now(), r.loc)
	from := today.AddDate(0, 0, -(days - 1)).Format("2006-01-02")
	to := today.Format("2006-01-02")

	daily, err := r.days.BusinessDays(ctx, businessID, from, to)
	if err != nil {
		return nil, fmt.Errorf("get daily metrics: %w", err)
	}

	summary := &BusinessSummary{
		BusinessID: businessID,
		From:       from,
		To:         to,
		Days:       days,
		Totals:     sum(daily),
		Daily:      daily,
	}
	if summary.Daily == nil {
		summary.Daily = []models.BusinessDay{}
	}
	return summary, nil
}

func sum(daily []models.BusinessDay) Totals {
	var t Totals
	var hookWeighted, holdWeighted float64
	for _, d := range daily {
		t.Spend += d.Spend
		t.Impressions += d.Impressions
		t.Clicks += d.Clicks
		t.Leads += d.Leads
		t.Conversions += d.Conversions
		t.Revenue += d.Revenue
		t.Channels.WhatsApp += d.Channels.WhatsApp
		t.Channels.Instagram += d.Channels.Instagram
		t.Channels.Messenger += d.Channels.Messenger
		hookWeighted += d.HookRate * float64(d.Impressions)
		holdWeighted += d.HoldRate * float64(d.Impressions)
	}
	kpi.Derive(&t.Metrics)
	if t.Impressions > 0 {
		t.HookRate = hookWeighted / float64(t.Impressions)
		t.HoldRate = holdWeighted / float64(t.Impressions)
	}
	return t
}
