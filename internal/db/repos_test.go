package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/adsync/internal/models"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// arrayLen matches a pq array argument with exactly n elements.
type arrayLen int

func (n arrayLen) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "{") {
		return false
	}
	body := strings.Trim(s, "{}")
	if body == "" {
		return n == 0
	}
	return len(strings.Split(body, ",")) == int(n)
}

func TestFindExistingIDs_OneQueryRegardlessOfSize(t *testing.T) {
	for _, n := range []int{1, 10, 100, 1000} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			db, mock := setupTestDB(t)

			ids := make([]string, n)
			rows := sqlmock.NewRows([]string{"id"})
			for i := range ids {
				ids[i] = fmt.Sprintf("c%d", i)
				if i%2 == 0 {
					rows.AddRow(ids[i])
				}
			}
			mock.ExpectQuery(`SELECT id FROM campaigns WHERE id = ANY\(\$1\)`).
				WithArgs(arrayLen(n)).
				WillReturnRows(rows)

			found, err := NewCampaignRepo(db).FindExistingIDs(context.Background(), ids)
			require.NoError(t, err)
			assert.Len(t, found, (n+1)/2)
			assert.True(t, found.Has("c0"))
			if n > 1 {
				assert.False(t, found.Has("c1"))
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFindExistingIDs_EmptyInputIssuesNoQuery(t *testing.T) {
	db, mock := setupTestDB(t)

	found, err := NewAdRepo(db).FindExistingIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindExistingIDs_CollapsesDuplicates(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery(`SELECT id FROM adsets WHERE id = ANY`).
		WithArgs(arrayLen(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1"))

	found, err := NewAdSetRepo(db).FindExistingIDs(context.Background(), []string{"s1", "s2", "s1", "", "s2"})
	require.NoError(t, err)
	assert.Equal(t, models.NewIDSet("s1"), found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindExistingIDs_QueryError(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery(`SELECT id FROM ads`).WillReturnError(errors.New("connection reset"))

	_, err := NewAdRepo(db).FindExistingIDs(context.Background(), []string{"a1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query existing ads")
}

func TestCampaignRepo_Upsert(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec(`INSERT INTO campaigns .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("c1", int64(3), "Spring", "ACTIVE", "OUTCOME_LEADS").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewCampaignRepo(db).Upsert(context.Background(), models.Campaign{
		ID: "c1", BusinessID: 3, Name: "Spring", Status: "ACTIVE", Objective: "OUTCOME_LEADS",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdRepo_UpsertStoresCreativeJSON(t *testing.T) {
	db, mock := setupTestDB(t)
	creative := models.Creative{Kind: models.CreativePlain, Title: "Hello"}
	encoded, _ := json.Marshal(creative)

	mock.ExpectExec(`INSERT INTO ads`).
		WithArgs("ad1", "s1", "c1", int64(3), "Ad", "PAUSED", string(encoded)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewAdRepo(db).Upsert(context.Background(), models.Ad{
		ID: "ad1", AdSetID: "s1", CampaignID: "c1", BusinessID: 3, Name: "Ad", Status: "PAUSED", Creative: creative,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyticsRepo_UpsertCampaignDay(t *testing.T) {
	db, mock := setupTestDB(t)
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO campaign_daily_insights \(campaign_id, business_id, date,.*ON CONFLICT \(campaign_id, date\) DO UPDATE`).
		WithArgs("c1", int64(3), "2024-03-05",
			100.0, int64(1000), int64(50), int64(10), int64(0), 500.0,
			5.0, 100.0, 2.0, 10.0, 0.0, 5.0,
			int64(4), int64(1), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewAnalyticsRepo(db).UpsertCampaignDay(context.Background(), models.EntityDay{
		EntityID:   "c1",
		BusinessID: 3,
		Date:       day,
		Metrics: models.Metrics{
			Spend: 100, Impressions: 1000, Clicks: 50, Leads: 10, Revenue: 500,
			CTR: 5, CPM: 100, CPC: 2, CPL: 10, ROAS: 5,
		},
		Channels: models.LeadChannels{WhatsApp: 4, Instagram: 1},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyticsRepo_UpsertBusinessDayUsesLocalDate(t *testing.T) {
	db, mock := setupTestDB(t)
	loc := time.FixedZone("UTC+9", 9*3600)

	mock.ExpectExec(`INSERT INTO business_daily_insights`).
		WithArgs(append([]driver.Value{int64(1), "2024-03-05"}, anyArgs(19)...)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewAnalyticsRepo(db).UpsertBusinessDay(context.Background(), models.BusinessDay{
		BusinessID: 1,
		Date:       time.Date(2024, 3, 5, 0, 0, 0, 0, loc),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyticsRepo_UpsertHourlyStats(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	stats := []models.HourlyStat{
		{BusinessID: 1, Date: day, Hour: 9, Spend: 1.5, Impressions: 100, Clicks: 2, MessagingConversations: 1},
		{BusinessID: 1, Date: day, Hour: 10, Spend: 2.5, Impressions: 200, Clicks: 3},
	}

	t.Run("commits batch", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO hourly_stats`).
			WithArgs(int64(1), "2024-03-05", 9, 1.5, int64(100), int64(2), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO hourly_stats`).
			WithArgs(int64(1), "2024-03-05", 10, 2.5, int64(200), int64(3), int64(0)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, NewAnalyticsRepo(db).UpsertHourlyStats(context.Background(), stats))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO hourly_stats`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO hourly_stats`).WillReturnError(errors.New("deadlock detected"))
		mock.ExpectRollback()

		err := NewAnalyticsRepo(db).UpsertHourlyStats(context.Background(), stats)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "upsert hour 10")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		db, mock := setupTestDB(t)
		require.NoError(t, NewAnalyticsRepo(db).UpsertHourlyStats(context.Background(), nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// captureSQL returns a mock that accepts any statement and keeps the SQL
// text of the last one it matched.
func captureSQL(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *string) {
	t.Helper()
	var captured string
	matcher := sqlmock.QueryMatcherFunc(func(_, actual string) error {
		captured = actual
		return nil
	})
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock, &captured
}

// assertReplacesColumns checks that every column in the ON CONFLICT clause
// is overwritten with the incoming value rather than combined with the
// stored one.
func assertReplacesColumns(t *testing.T, query string, columns []string) {
	t.Helper()
	i := strings.Index(query, "ON CONFLICT")
	require.GreaterOrEqual(t, i, 0, "missing ON CONFLICT clause")
	conflict := query[i:]
	for _, col := range columns {
		pattern := `\b` + col + `\s*=\s*EXCLUDED\.` + col + `\b`
		assert.Regexp(t, regexp.MustCompile(pattern), conflict, col)
	}
	assert.NotContains(t, conflict, "+")
	assert.NotContains(t, conflict, "COALESCE")
}

var dayMetricColumns = []string{
	"spend", "impressions", "clicks", "leads", "conversions", "revenue",
	"ctr", "cpm", "cpc", "cpl", "cvr", "roas",
	"leads_whatsapp", "leads_instagram", "leads_messenger",
}

func TestAnalyticsRepo_UpsertsReplaceMetrics(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	t.Run("business day", func(t *testing.T) {
		db, mock, captured := captureSQL(t)
		mock.ExpectExec("business").WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, NewAnalyticsRepo(db).UpsertBusinessDay(ctx, models.BusinessDay{BusinessID: 1, Date: day}))
		assertReplacesColumns(t, *captured,
			append(dayMetricColumns, "reach", "frequency", "hook_rate", "hold_rate"))
	})

	for name, upsert := range map[string]func(*AnalyticsRepo, context.Context, models.EntityDay) error{
		"campaign day": (*AnalyticsRepo).UpsertCampaignDay,
		"adset day":    (*AnalyticsRepo).UpsertAdSetDay,
		"ad day":       (*AnalyticsRepo).UpsertAdDay,
	} {
		t.Run(name, func(t *testing.T) {
			db, mock, captured := captureSQL(t)
			mock.ExpectExec("entity").WillReturnResult(sqlmock.NewResult(0, 1))
			require.NoError(t, upsert(NewAnalyticsRepo(db), ctx, models.EntityDay{EntityID: "x1", BusinessID: 1, Date: day}))
			assertReplacesColumns(t, *captured, append(dayMetricColumns, "business_id"))
		})
	}

	t.Run("hourly", func(t *testing.T) {
		db, mock, captured := captureSQL(t)
		mock.ExpectBegin()
		mock.ExpectExec("hourly").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		require.NoError(t, NewAnalyticsRepo(db).UpsertHourlyStats(ctx, []models.HourlyStat{{BusinessID: 1, Date: day, Hour: 9}}))
		assertReplacesColumns(t, *captured, []string{"spend", "impressions", "clicks", "messaging_conversations"})
	})
}

func TestAnalyticsRepo_BusinessDays(t *testing.T) {
	db, mock := setupTestDB(t)
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	cols := []string{"business_id", "date", "spend", "impressions", "clicks", "leads", "conversions", "revenue",
		"ctr", "cpm", "cpc", "cpl", "cvr", "roas", "leads_whatsapp", "leads_instagram", "leads_messenger",
		"reach", "frequency", "hook_rate", "hold_rate"}
	mock.ExpectQuery(`FROM business_daily_insights`).
		WithArgs(int64(1), "2024-03-01", "2024-03-07").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, day, 100.0, 1000, 50, 10, 0, 0.0, 5.0, 100.0, 2.0, 10.0, 0.0, 0.0, 3, 2, 1, 800, 1.25, 20.0, 4.0))

	got, err := NewAnalyticsRepo(db).BusinessDays(context.Background(), 1, "2024-03-01", "2024-03-07")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 100.0, got[0].Spend)
	assert.Equal(t, int64(3), got[0].Channels.WhatsApp)
	assert.Equal(t, int64(800), got[0].Reach)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBusinessRepo(t *testing.T) {
	cols := []string{"id", "name", "ad_account_id", "access_token", "active", "color", "created_at"}
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("list active", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectQuery(`FROM businesses WHERE active ORDER BY id`).
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow(1, "Acme", "act_1", "secret-token", true, "#fff", created).
				AddRow(2, "Globex", "2", "other-token", true, "", created))

		got, err := NewBusinessRepo(db).ListActive(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Acme", got[0].Name)
		assert.Equal(t, "secret-token", got[0].AccessToken)
	})

	t.Run("get missing", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectQuery(`FROM businesses WHERE id = \$1`).
			WithArgs(int64(9)).
			WillReturnRows(sqlmock.NewRows(cols))

		_, err := NewBusinessRepo(db).Get(context.Background(), 9)
		assert.ErrorIs(t, err, ErrBusinessNotFound)
	})
}

func TestSettingsRepo(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectQuery(`SELECT value, updated_at FROM system_settings`).
			WithArgs("sync_status").
			WillReturnRows(sqlmock.NewRows([]string{"value", "updated_at"}))

		_, err := NewSettingsRepo(db).Get(context.Background(), "sync_status")
		assert.ErrorIs(t, err, ErrSettingNotFound)
	})

	t.Run("get", func(t *testing.T) {
		db, mock := setupTestDB(t)
		now := time.Now().UTC()
		mock.ExpectQuery(`SELECT value, updated_at FROM system_settings`).
			WithArgs("sync_status").
			WillReturnRows(sqlmock.NewRows([]string{"value", "updated_at"}).AddRow("syncing", now))

		s, err := NewSettingsRepo(db).Get(context.Background(), "sync_status")
		require.NoError(t, err)
		assert.Equal(t, "syncing", s.Value)
		assert.Equal(t, now, s.UpdatedAt)
	})

	t.Run("set", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectExec(`INSERT INTO system_settings .* ON CONFLICT \(key\) DO UPDATE`).
			WithArgs("auto_sync_enabled", "true").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewSettingsRepo(db).Set(context.Background(), "auto_sync_enabled", "true"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("compare and set", func(t *testing.T) {
		old := models.Setting{Key: "sync_status", Value: "success", UpdatedAt: time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)}

		db, mock := setupTestDB(t)
		mock.ExpectExec(`UPDATE system_settings SET value = \$2, updated_at = NOW\(\)\s+WHERE key = \$1 AND value = \$3 AND updated_at = \$4`).
			WithArgs("sync_status", "idle", "success", old.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
		ok, err := NewSettingsRepo(db).CompareAndSet(context.Background(), "sync_status", old, "idle")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())

		db, mock = setupTestDB(t)
		mock.ExpectExec(`UPDATE system_settings`).
			WithArgs("sync_status", "idle", "success", old.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(0, 0))
		ok, err = NewSettingsRepo(db).CompareAndSet(context.Background(), "sync_status", old, "idle")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLeadRepo_Upsert(t *testing.T) {
	name := "Ana"
	lead := models.Lead{ID: "l1", BusinessID: 2, AdID: "ad1", AdName: "Promo", Name: &name}
	raw := json.RawMessage(`{"id":"l1"}`)

	t.Run("writes lead and payload atomically", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO leads`).
			WithArgs("l1", int64(2), "ad1", "Promo", "", "Ana", nil, nil, models.LeadStatusNew, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO lead_raw_payloads`).
			WithArgs(sqlmock.AnyArg(), "l1", `{"id":"l1"}`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, NewLeadRepo(db).Upsert(context.Background(), lead, raw))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("payload failure rolls back lead", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO leads`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO lead_raw_payloads`).WillReturnError(errors.New("invalid json"))
		mock.ExpectRollback()

		require.Error(t, NewLeadRepo(db).Upsert(context.Background(), lead, raw))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpsertLeadSQL_PreservesOperatorColumns(t *testing.T) {
	conflict := upsertLeadSQL[strings.Index(upsertLeadSQL, "ON CONFLICT"):]
	assert.NotContains(t, conflict, "status =")
	assert.Contains(t, conflict, "name = COALESCE(leads.name, EXCLUDED.name)")
	assert.Contains(t, conflict, "email = COALESCE(leads.email, EXCLUDED.email)")
	assert.Contains(t, conflict, "phone = COALESCE(leads.phone, EXCLUDED.phone)")
}

func TestEnsureSchema(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS businesses`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, (&Postgres{DB: db}).EnsureSchema(context.Background()))
	assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS ad_daily_insights")
	assert.Contains(t, schemaSQL, "PRIMARY KEY (adset_id, date)")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func anyArgs(n int) []driver.Value {
	out := make([]driver.Value, n)
	for i := range out {
		out[i] = sqlmock.AnyArg()
	}
	return out
}
