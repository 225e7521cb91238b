package pipeline

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/patrickwarner/adsync/internal/db"
	"github.com/patrickwarner/adsync/internal/graph"
	"github.com/patrickwarner/adsync/internal/models"
	"github.com/patrickwarner/adsync/internal/status"
)

// fakePlatform serves canned insights keyed by level and query shape.
type fakePlatform struct {
	mu        sync.Mutex
	insights  map[string][]graph.Insight
	errs      map[string]error
	campaigns []graph.Campaign
	adsets    []graph.AdSet
	ads       []graph.Ad
	listErr   map[string]error
	queries   []graph.InsightsQuery
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		insights: map[string][]graph.Insight{},
		errs:     map[string]error{},
		listErr:  map[string]error{},
	}
}

func insightKey(q graph.InsightsQuery) string {
	k := string(q.Level)
	if len(q.ActionBreakdowns) > 0 {
		k += "+destination"
	}
	if len(q.Breakdowns) > 0 {
		k += "+hourly"
	}
	return k
}

func (p *fakePlatform) Insights(_ context.Context, q graph.InsightsQuery) ([]graph.Insight, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries = append(p.queries, q)
	k := insightKey(q)
	if err := p.errs[k]; err != nil {
		return nil, err
	}
	return p.insights[k], nil
}

func (p *fakePlatform) Campaigns(context.Context, string, string) ([]graph.Campaign, error) {
	return p.campaigns, p.listErr["campaigns"]
}

func (p *fakePlatform) AdSets(context.Context, string, string) ([]graph.AdSet, error) {
	return p.adsets, p.listErr["adsets"]
}

func (p *fakePlatform) Ads(context.Context, string, string) ([]graph.Ad, error) {
	return p.ads, p.listErr["ads"]
}

// fakeEntities is an in-memory EntityStore keyed by id.
type fakeEntities[T any] struct {
	mu         sync.Mutex
	rows       map[string]T
	id         func(T) string
	fail       map[string]error
	existCalls int
	inFlight   int
	maxFlight  int
}

func newFakeEntities[T any](id func(T) string) *fakeEntities[T] {
	return &fakeEntities[T]{rows: map[string]T{}, id: id, fail: map[string]error{}}
}

func (s *fakeEntities[T]) Upsert(_ context.Context, v T) error {
	s.mu.Lock()
	s.inFlight++
	s.maxFlight = max(s.maxFlight, s.inFlight)
	s.mu.Unlock()
	time.Sleep(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	if err := s.fail[s.id(v)]; err != nil {
		return err
	}
	s.rows[s.id(v)] = v
	return nil
}

func (s *fakeEntities[T]) FindExistingIDs(_ context.Context, ids []string) (models.IDSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.existCalls++
	out := models.IDSet{}
	for _, id := range ids {
		if _, ok := s.rows[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (s *fakeEntities[T]) seed(vs ...T) {
	for _, v := range vs {
		s.rows[s.id(v)] = v
	}
}

// fakeAnalytics stores day rows keyed like the real unique constraints.
type fakeAnalytics struct {
	mu        sync.Mutex
	business  map[string]models.BusinessDay
	campaigns map[string]models.EntityDay
	adsets    map[string]models.EntityDay
	ads       map[string]models.EntityDay
	hourly    map[string]models.HourlyStat
	batches   int
	err       error
}

func newFakeAnalytics() *fakeAnalytics {
	return &fakeAnalytics{
		business:  map[string]models.BusinessDay{},
		campaigns: map[string]models.EntityDay{},
		adsets:    map[string]models.EntityDay{},
		ads:       map[string]models.EntityDay{},
		hourly:    map[string]models.HourlyStat{},
	}
}

func dayKey(id string, date time.Time) string {
	return id + "|" + date.Format("2006-01-02")
}

func (a *fakeAnalytics) UpsertBusinessDay(_ context.Context, d models.BusinessDay) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.business[dayKey(strconv.FormatInt(d.BusinessID, 10), d.Date)] = d
	return nil
}

func (a *fakeAnalytics) upsertEntity(m map[string]models.EntityDay, d models.EntityDay) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	m[dayKey(d.EntityID, d.Date)] = d
	return nil
}

func (a *fakeAnalytics) UpsertCampaignDay(_ context.Context, d models.EntityDay) error {
	return a.upsertEntity(a.campaigns, d)
}

func (a *fakeAnalytics) UpsertAdSetDay(_ context.Context, d models.EntityDay) error {
	return a.upsertEntity(a.adsets, d)
}

func (a *fakeAnalytics) UpsertAdDay(_ context.Context, d models.EntityDay) error {
	return a.upsertEntity(a.ads, d)
}

func (a *fakeAnalytics) UpsertHourlyStats(_ context.Context, stats []models.HourlyStat) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.batches++
	for _, s := range stats {
		a.hourly[dayKey(strconv.FormatInt(s.BusinessID, 10), s.Date)+"|"+strconv.Itoa(s.Hour)] = s
	}
	return nil
}

// fakeLeads records the ads it was asked to sync.
type fakeLeads struct {
	mu    sync.Mutex
	ads   []string
	count int
	errs  map[string]error
}

func (l *fakeLeads) SyncAd(_ context.Context, _ models.Business, adID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ads = append(l.ads, adID)
	if err := l.errs[adID]; err != nil {
		return 0, err
	}
	return l.count, nil
}

// fakeDays is a DaySyncer whose outcome per date is scripted.
type fakeDays struct {
	mu        sync.Mutex
	calls     []time.Time
	fail      map[string]error
	panicOn   string
	inFlight  int
	maxFlight int
	delay     time.Duration
}

func (d *fakeDays) result(b models.Business, date time.Time, phase Phase) DayResult {
	d.mu.Lock()
	d.calls = append(d.calls, date)
	d.inFlight++
	d.maxFlight = max(d.maxFlight, d.inFlight)
	d.mu.Unlock()

	if d.delay > 0 {
		time.Sleep(d.delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight--
	key := date.Format("2006-01-02")
	if key == d.panicOn {
		panic("boom")
	}
	return DayResult{
		BusinessID: b.ID,
		Date:       date,
		Phases:     []PhaseResult{{Phase: phase, Err: d.fail[key]}},
	}
}

func (d *fakeDays) SyncDay(_ context.Context, b models.Business, date time.Time) DayResult {
	return d.result(b, date, PhaseAccount)
}

func (d *fakeDays) SyncBusinessDay(_ context.Context, b models.Business, date time.Time) DayResult {
	return d.result(b, date, PhaseAccount)
}

func (d *fakeDays) sortedCalls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.calls))
	for _, c := range d.calls {
		out = append(out, c.Format("2006-01-02"))
	}
	sort.Strings(out)
	return out
}

// fakeLocker refuses keys listed in held.
type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	keys []string
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	busy := l.held[key]
	l.mu.Unlock()
	if busy {
		return db.ErrLockHeld
	}
	return fn(ctx)
}

type fakeBusinesses struct {
	list    []models.Business
	listErr error
}

func (f *fakeBusinesses) ListActive(context.Context) ([]models.Business, error) {
	return f.list, f.listErr
}

func (f *fakeBusinesses) Get(_ context.Context, id int64) (models.Business, error) {
	for _, b := range f.list {
		if b.ID == id {
			return b, nil
		}
	}
	return models.Business{}, db.ErrBusinessNotFound
}

// fakeStatus tracks Begin/Finish calls like the real register would.
type fakeStatus struct {
	mu       sync.Mutex
	state    status.State
	begins   int
	finishes []error
	auto     bool
	autoErr  error
}

func (s *fakeStatus) Begin(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins++
	s.state = status.StateSyncing
	return nil
}

func (s *fakeStatus) Finish(_ context.Context, runErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishes = append(s.finishes, runErr)
	s.state = status.StateSuccess
	if runErr != nil {
		s.state = status.StateFailed
	}
	return nil
}

func (s *fakeStatus) Current(context.Context) (status.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return status.Status{State: s.state, AutoSync: s.auto}, nil
}

func (s *fakeStatus) AutoSyncEnabled(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auto, s.autoErr
}

var errBoom = errors.New("boom")
