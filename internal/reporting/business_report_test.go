package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/adsync/internal/models"
)

var dayColumns = []string{
	"business_id", "date", "spend", "impressions", "clicks", "leads", "conversions", "revenue",
	"ctr", "cpm", "cpc", "cpl", "cvr", "roas", "leads_whatsapp", "leads_instagram", "leads_messenger",
	"reach", "frequency", "hook_rate", "hold_rate",
}

func TestBusinessReport_SumsAndRederivesRates(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	d1 := time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM business_daily_insights WHERE business_id = \$1 AND date BETWEEN \$2 AND \$3`).
		WithArgs(int64(7), "2024-03-25", "2024-03-31").
		WillReturnRows(sqlmock.NewRows(dayColumns).
			// stored per-day rates must not leak into the totals
			AddRow(7, d1, 100.0, 1000, 10, 5, 1, 300.0, 99, 99, 99, 99, 99, 99, 3, 1, 0, 900, 1.1, 20.0, 10.0).
			AddRow(7, d2, 50.0, 3000, 20, 0, 1, 0.0, 99, 99, 99, 99, 99, 99, 0, 0, 2, 2500, 1.2, 40.0, 6.0))

	r := NewReporter(sqlDB, time.UTC)
	r.now = func() time.Time { return time.Date(2024, 3, 31, 18, 0, 0, 0, time.UTC) }

	got, err := r.BusinessReport(context.Background(), 7, 7)
	require.NoError(t, err)

	assert.Equal(t, "2024-03-25", got.From)
	assert.Equal(t, "2024-03-31", got.To)
	assert.Len(t, got.Daily, 2)

	tot := got.Totals
	assert.Equal(t, 150.0, tot.Spend)
	assert.Equal(t, int64(4000), tot.Impressions)
	assert.Equal(t, int64(30), tot.Clicks)
	assert.Equal(t, int64(5), tot.Leads)
	assert.InDelta(t, 0.75, tot.CTR, 1e-9)
	assert.InDelta(t, 37.5, tot.CPM, 1e-9)
	assert.InDelta(t, 5.0, tot.CPC, 1e-9)
	assert.InDelta(t, 30.0, tot.CPL, 1e-9)
	assert.InDelta(t, 2.0, tot.ROAS, 1e-9)
	assert.Equal(t, models.LeadChannels{WhatsApp: 3, Instagram: 1, Messenger: 2}, tot.Channels)
	// (20*1000 + 40*3000) / 4000
	assert.InDelta(t, 35.0, tot.HookRate, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBusinessReport_EmptyWindow(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(`FROM business_daily_insights`).
		WillReturnRows(sqlmock.NewRows(dayColumns))

	got, err := NewReporter(sqlDB, nil).BusinessReport(context.Background(), 7, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultDays, got.Days)
	assert.NotNil(t, got.Daily)
	assert.Zero(t, got.Totals.CTR)
	assert.Zero(t, got.Totals.HookRate)
}

type failingReader struct{}

func (failingReader) BusinessDays(context.Context, int64, string, string) ([]models.BusinessDay, error) {
	return nil, errors.New("db down")
}

func TestBusinessReport_QueryError(t *testing.T) {
	_, err := newReporter(failingReader{}, time.UTC).BusinessReport(context.Background(), 1, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestBusinessReport_WindowUsesReportingZone(t *testing.T) {
	var gotFrom, gotTo string
	r := newReporter(readerFunc(func(from, to string) {
		gotFrom, gotTo = from, to
	}), time.FixedZone("UTC+9", 9*3600))
	r.now = func() time.Time { return time.Date(2024, 3, 31, 20, 0, 0, 0, time.UTC) }

	_, err := r.BusinessReport(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "2024-04-01", gotFrom)
	assert.Equal(t, "2024-04-01", gotTo)
}

type readerFunc func(from, to string)

func (f readerFunc) BusinessDays(_ context.Context, _ int64, from, to string) ([]models.BusinessDay, error) {
	f(from, to)
	return nil, nil
}
