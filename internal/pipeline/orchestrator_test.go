package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/analytics"
	"github.com/patrickwarner/adsync/internal/graph"
	"github.com/patrickwarner/adsync/internal/models"
	"github.com/patrickwarner/adsync/internal/observability"
)

type fixture struct {
	platform  *fakePlatform
	campaigns *fakeEntities[models.Campaign]
	adsets    *fakeEntities[models.AdSet]
	ads       *fakeEntities[models.Ad]
	analytics *fakeAnalytics
	leads     *fakeLeads
	recorder  *analytics.MockRecorder
	metrics   *observability.MockMetricsRegistry
	orch      *Orchestrator
}

var testBusiness = models.Business{ID: 7, Name: "Acme", AdAccountID: "act_7", AccessToken: "tok", Active: true}

func lead(n string) graph.Action { return graph.Action{ActionType: "lead", Value: graph.Number(n)} }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		platform:  newFakePlatform(),
		campaigns: newFakeEntities(func(c models.Campaign) string { return c.ID }),
		adsets:    newFakeEntities(func(s models.AdSet) string { return s.ID }),
		ads:       newFakeEntities(func(a models.Ad) string { return a.ID }),
		analytics: newFakeAnalytics(),
		leads:     &fakeLeads{count: 2},
		recorder:  &analytics.MockRecorder{},
		metrics:   observability.NewMockMetricsRegistry(),
	}
	f.orch = NewOrchestrator(Deps{
		Platform:  f.platform,
		Campaigns: f.campaigns,
		AdSets:    f.adsets,
		Ads:       f.ads,
		Analytics: f.analytics,
		Leads:     f.leads,
		Recorder:  f.recorder,
		Logger:    zap.NewNop(),
		Metrics:   f.metrics,
	}, Options{ChunkSize: 20})
	return f
}

// seedHierarchy sets up one campaign with one ad set and one ad, plus an
// ad set and an ad whose parents are unknown.
func (f *fixture) seedHierarchy() {
	p := f.platform
	p.campaigns = []graph.Campaign{{ID: "c1", Name: "Spring", Status: "ACTIVE", EffectiveStatus: "ACTIVE"}}
	p.adsets = []graph.AdSet{
		{ID: "s1", CampaignID: "c1", Name: "Broad", EffectiveStatus: "ACTIVE"},
		{ID: "s2", CampaignID: "c-gone", Name: "Orphan", EffectiveStatus: "PAUSED"},
	}
	p.ads = []graph.Ad{
		{ID: "a1", AdSetID: "s1", CampaignID: "c1", Name: "Video", EffectiveStatus: "ACTIVE",
			Creative: &graph.AdCreative{ID: "cr1", Title: "Hello", Body: "World"}},
		{ID: "a2", AdSetID: "s2", CampaignID: "c-gone", Name: "Orphan ad", EffectiveStatus: "ACTIVE"},
	}

	p.insights["account"] = []graph.Insight{{
		AccountID: "7", Spend: "100", Impressions: "1000", Clicks: "50",
		Reach: "800", Frequency: "1.25", Actions: []graph.Action{lead("4")},
	}}
	p.insights["account+destination"] = []graph.Insight{{
		AccountID: "7",
		Actions: []graph.Action{
			{ActionType: "lead", Value: "3", Destination: "whatsapp"},
			{ActionType: "lead", Value: "1", Destination: "instagram_profile"},
		},
	}}
	p.insights["campaign"] = []graph.Insight{{CampaignID: "c1", Spend: "100", Impressions: "1000", Clicks: "50", Actions: []graph.Action{lead("4")}}}
	p.insights["campaign+destination"] = []graph.Insight{{CampaignID: "c1", Actions: []graph.Action{{ActionType: "lead", Value: "4", Destination: "whatsapp"}}}}
	p.insights["adset"] = []graph.Insight{{AdSetID: "s1", Spend: "100", Impressions: "1000", Clicks: "50"}}
	p.insights["ad"] = []graph.Insight{
		{AdID: "a1", Spend: "60", Impressions: "600", Clicks: "30", Actions: []graph.Action{lead("4")}},
		{AdID: "a-unknown", Spend: "40", Impressions: "400", Clicks: "20", Actions: []graph.Action{lead("1")}},
	}
	p.insights["account+hourly"] = []graph.Insight{
		{HourlyInterval: "09:00:00 - 09:59:59", Spend: "10", Impressions: "100", Clicks: "5",
			Actions: []graph.Action{{ActionType: "onsite_conversion.messaging_welcome_message_view", Value: "2"}}},
		{HourlyInterval: "09:00:00 - 09:59:59", Spend: "5", Impressions: "50", Clicks: "1"},
		{HourlyInterval: "14:00:00 - 14:59:59", Spend: "20", Impressions: "200", Clicks: "8"},
		{HourlyInterval: "garbage", Spend: "1"},
	}
}

func phaseByName(res DayResult, phase Phase) (PhaseResult, bool) {
	for _, p := range res.Phases {
		if p.Phase == phase {
			return p, true
		}
	}
	return PhaseResult{}, false
}

func TestSyncDay_WritesEveryGrain(t *testing.T) {
	f := newFixture(t)
	f.seedHierarchy()
	date := time.Date(2024, 3, 5, 17, 30, 0, 0, time.UTC)

	res := f.orch.SyncDay(context.Background(), testBusiness, date)
	require.False(t, res.Failed(), "unexpected error: %v", res.Err())
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), res.Date)

	var order []Phase
	for _, p := range res.Phases {
		order = append(order, p.Phase)
	}
	assert.Equal(t, []Phase{PhaseAccount, PhaseCampaigns, PhaseAdSets, PhaseAds, PhaseHourly, PhaseLeads}, order)

	bd, ok := f.analytics.business["7|2024-03-05"]
	require.True(t, ok)
	assert.Equal(t, 100.0, bd.Spend)
	assert.Equal(t, int64(4), bd.Leads)
	assert.Equal(t, int64(800), bd.Reach)
	assert.Equal(t, 1.25, bd.Frequency)
	assert.Equal(t, models.LeadChannels{WhatsApp: 3, Instagram: 1}, bd.Channels)

	cd := f.analytics.campaigns["c1|2024-03-05"]
	assert.Equal(t, int64(4), cd.Channels.WhatsApp)
	assert.Len(t, f.analytics.adsets, 1)

	assert.Contains(t, f.adsets.rows, "s1")
	assert.NotContains(t, f.adsets.rows, "s2", "orphan ad set must not be stored")
	assert.Contains(t, f.ads.rows, "a1")
	assert.NotContains(t, f.ads.rows, "a2", "ad with unknown ad set must not be stored")
	assert.Equal(t, models.CreativePlain, f.ads.rows["a1"].Creative.Kind)

	require.Len(t, f.analytics.ads, 1)
	_, ok = f.analytics.ads["a1|2024-03-05"]
	assert.True(t, ok)
	ads, _ := phaseByName(res, PhaseAds)
	assert.Equal(t, 1, ads.Rows)
	assert.Equal(t, 2, ads.Skipped, "one orphan ad plus one unknown insight")

	require.Len(t, f.analytics.hourly, 2)
	nine := f.analytics.hourly["7|2024-03-05|9"]
	assert.Equal(t, 15.0, nine.Spend)
	assert.Equal(t, int64(150), nine.Impressions)
	assert.Equal(t, int64(2), nine.MessagingConversations)
	assert.Equal(t, 1, f.analytics.batches)

	assert.Equal(t, []string{"a1"}, f.leads.ads)
	lp, _ := phaseByName(res, PhaseLeads)
	assert.Equal(t, 2, lp.Rows)
}

func TestSyncDay_OneExistenceQueryPerGrainPerPhase(t *testing.T) {
	f := newFixture(t)
	f.seedHierarchy()

	f.orch.SyncDay(context.Background(), testBusiness, time.Now())

	// campaigns: insight check plus the ad set parent check
	assert.Equal(t, 2, f.campaigns.existCalls)
	// adsets: insight check plus the ad parent check
	assert.Equal(t, 2, f.adsets.existCalls)
	assert.Equal(t, 1, f.ads.existCalls)
}

func TestSyncDay_UnknownAdInsightIsSkippedSilently(t *testing.T) {
	f := newFixture(t)
	f.ads.seed(models.Ad{ID: "a1"})
	f.platform.insights["ad"] = []graph.Insight{
		{AdID: "a1", Spend: "1"},
		{AdID: "never-synced", Spend: "2"},
	}

	res := f.orch.SyncDay(context.Background(), testBusiness, time.Now())

	ads, _ := phaseByName(res, PhaseAds)
	assert.NoError(t, ads.Err)
	assert.Equal(t, 1, ads.Rows)
	assert.Equal(t, 1, ads.Skipped)
	assert.Equal(t, 1.0, f.metrics.Count("orphans_skipped", "ad"))
}

func TestSyncDay_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedHierarchy()
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	f.orch.SyncDay(context.Background(), testBusiness, date)
	first := len(f.analytics.campaigns) + len(f.analytics.adsets) + len(f.analytics.ads) + len(f.analytics.hourly)
	f.orch.SyncDay(context.Background(), testBusiness, date.Add(15*time.Hour))
	second := len(f.analytics.campaigns) + len(f.analytics.adsets) + len(f.analytics.ads) + len(f.analytics.hourly)

	assert.Equal(t, first, second)
	assert.Len(t, f.analytics.business, 1)

	// Values are the single-day upstream figures, not the sum of both runs.
	assert.Equal(t, 100.0, f.analytics.business[dayKey("7", date)].Spend)
	assert.Equal(t, int64(1000), f.analytics.business[dayKey("7", date)].Impressions)
	assert.Equal(t, 100.0, f.analytics.campaigns[dayKey("c1", date)].Spend)
	assert.Equal(t, 100.0, f.analytics.adsets[dayKey("s1", date)].Spend)
	assert.Equal(t, 60.0, f.analytics.ads[dayKey("a1", date)].Spend)
	assert.Equal(t, int64(4), f.analytics.ads[dayKey("a1", date)].Leads)
	assert.Equal(t, 15.0, f.analytics.hourly[dayKey("7", date)+"|9"].Spend)
}

func TestSyncDay_PhaseFailureDoesNotStopLaterPhases(t *testing.T) {
	f := newFixture(t)
	f.seedHierarchy()
	f.platform.listErr["campaigns"] = errBoom
	f.campaigns.seed(models.Campaign{ID: "c1"})

	res := f.orch.SyncDay(context.Background(), testBusiness, time.Now())

	require.True(t, res.Failed())
	assert.ErrorIs(t, res.Err(), errBoom)
	assert.Contains(t, res.Err().Error(), "campaigns")

	camp, _ := phaseByName(res, PhaseCampaigns)
	assert.Error(t, camp.Err)
	assert.Equal(t, 1, camp.Rows, "insight step still runs for stored campaigns")

	hourly, ok := phaseByName(res, PhaseHourly)
	require.True(t, ok)
	assert.NoError(t, hourly.Err)
	assert.Equal(t, 1.0, f.metrics.Count("phase_errors", "campaigns"))
}

func TestSyncDay_NoInsightWritesNothing(t *testing.T) {
	f := newFixture(t)

	res := f.orch.SyncDay(context.Background(), testBusiness, time.Now())

	assert.False(t, res.Failed())
	assert.Empty(t, f.analytics.business)
	assert.Empty(t, f.analytics.hourly)
	_, ok := phaseByName(res, PhaseLeads)
	assert.False(t, ok, "leads phase only runs for ads with leads")
}

func TestSyncDay_BreakdownFailureKeepsStoredChannels(t *testing.T) {
	f := newFixture(t)
	f.seedHierarchy()
	f.platform.errs["account+destination"] = errBoom

	res := f.orch.SyncDay(context.Background(), testBusiness, time.Now())

	acc, _ := phaseByName(res, PhaseAccount)
	assert.ErrorIs(t, acc.Err, errBoom)
	assert.Empty(t, f.analytics.business)
}

func TestSyncDay_LeadsPhaseStopsOnRateLimit(t *testing.T) {
	f := newFixture(t)
	f.ads.seed(models.Ad{ID: "a1"}, models.Ad{ID: "a2"}, models.Ad{ID: "a3"})
	f.platform.insights["ad"] = []graph.Insight{
		{AdID: "a1", Actions: []graph.Action{lead("1")}},
		{AdID: "a2", Actions: []graph.Action{lead("1")}},
		{AdID: "a3", Actions: []graph.Action{lead("1")}},
	}
	f.leads.errs = map[string]error{"a1": &graph.APIError{StatusCode: 400, Code: 17, Message: "User request limit reached"}}

	res := f.orch.SyncDay(context.Background(), testBusiness, time.Now())

	assert.Equal(t, []string{"a1"}, f.leads.ads)
	assert.True(t, res.RateLimited())
}

func TestSyncDay_RecordsPhaseEvents(t *testing.T) {
	f := newFixture(t)
	f.platform.errs["account"] = errBoom

	res := f.orch.SyncDay(context.Background(), testBusiness, time.Now())

	events := f.recorder.Events()
	require.Len(t, events, len(res.Phases))
	assert.Equal(t, "account", events[0].Phase)
	assert.Equal(t, "boom", events[0].Error)
	assert.Equal(t, int64(7), events[0].BusinessID)
	for _, ev := range events {
		assert.Equal(t, events[0].RunID, ev.RunID, "one run id per day")
	}
}

func TestSyncDay_RecorderFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.recorder.Err = errors.New("clickhouse down")

	res := f.orch.SyncDay(context.Background(), testBusiness, time.Now())
	assert.False(t, res.Failed())
}

func TestSyncDay_StopsWhenCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.orch.SyncDay(ctx, testBusiness, time.Now())
	assert.Len(t, res.Phases, 1)
}

func TestSyncBusinessDay_RunsAccountPhaseOnly(t *testing.T) {
	f := newFixture(t)
	f.seedHierarchy()

	res := f.orch.SyncBusinessDay(context.Background(), testBusiness, time.Now())

	require.Len(t, res.Phases, 1)
	assert.Equal(t, PhaseAccount, res.Phases[0].Phase)
	assert.Len(t, f.analytics.business, 1)
	assert.Empty(t, f.analytics.campaigns)
}

func TestSyncDay_NormalisesDateToReportingZone(t *testing.T) {
	f := newFixture(t)
	loc := time.FixedZone("UTC-5", -5*3600)
	f.orch.loc = loc

	// 02:00 UTC on the 6th is still the 5th in UTC-5.
	res := f.orch.SyncBusinessDay(context.Background(), testBusiness, time.Date(2024, 3, 6, 2, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-03-05", res.Date.Format("2006-01-02"))
	assert.Equal(t, loc, res.Date.Location())
}

func TestUpsertChunked(t *testing.T) {
	store := newFakeEntities(func(s string) string { return s })
	items := make([]string, 45)
	for i := range items {
		items[i] = fmt.Sprintf("id-%d", i)
	}
	store.fail["id-3"] = errBoom
	store.fail["id-40"] = errBoom

	n, err := upsertChunked(context.Background(), items, 20, store.Upsert)

	assert.Equal(t, 43, n)
	assert.ErrorIs(t, err, errBoom)
	assert.Len(t, store.rows, 43)
	assert.LessOrEqual(t, store.maxFlight, 20)
}

func TestParseHour(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"00:00:00 - 00:59:59", 0, true},
		{"14:00:00 - 14:59:59", 14, true},
		{" 23:00:00 - 23:59:59 ", 23, true},
		{"24:00:00 - 24:59:59", 0, false},
		{"", 0, false},
		{"noon", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseHour(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
