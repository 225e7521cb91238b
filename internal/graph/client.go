// Package graph is a client for the ads platform Graph API: paginated
// insight queries and entity listings for one ad account.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/observability"
	"github.com/patrickwarner/adsync/internal/ratelimit"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Level is the entity level an insight query aggregates at.
type Level string

const (
	LevelAccount  Level = "account"
	LevelCampaign Level = "campaign"
	LevelAdSet    Level = "adset"
	LevelAd       Level = "ad"
)

// Breakdown and action breakdown dimensions used by the sync pipeline.
const (
	BreakdownHourly            = "hourly_stats_aggregated_by_advertiser_time_zone"
	ActionBreakdownDestination = "action_destination"
)

const (
	defaultPageLimit = 500
	// maxPages bounds a single listing so a cursor loop on the platform side
	// cannot spin forever.
	maxPages = 1000
	// maxBodyBytes caps a single page read.
	maxBodyBytes = 32 << 20
)

var (
	insightFields = []string{
		"account_id", "campaign_id", "campaign_name", "adset_id", "adset_name", "ad_id", "ad_name",
		"spend", "impressions", "clicks", "reach", "frequency",
		"actions", "action_values", "video_thruplay_watched_actions",
		"date_start", "date_stop",
	}
	campaignFields = []string{"id", "name", "status", "effective_status", "objective"}
	adSetFields    = []string{"id", "name", "campaign_id", "status", "effective_status"}
	adFields       = []string{
		"id", "name", "adset_id", "campaign_id", "status", "effective_status",
		"creative{id,title,body,image_url,thumbnail_url,video_id,object_type,object_story_spec,asset_feed_spec}",
	}
	leadFields = []string{"id", "created_time", "ad_id", "ad_name", "form_id", "field_data"}

	// syncedStatuses are the lifecycle states the pipeline tracks.
	syncedStatuses = []string{"ACTIVE", "PAUSED"}
)

// Client talks to the ads platform.
type Client struct {
	baseURL   string
	http      HTTPDoer
	limiter   *ratelimit.AccountLimiter
	pageLimit int
	logger    *zap.Logger
	metrics   observability.MetricsRegistry
}

// NewClient creates a Client. baseURL includes the API version, for example
// https://graph.facebook.com/v19.0. limiter may be nil to disable throttling.
func NewClient(baseURL string, doer HTTPDoer, limiter *ratelimit.AccountLimiter, logger *zap.Logger, metrics observability.MetricsRegistry) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      doer,
		limiter:   limiter,
		pageLimit: defaultPageLimit,
		logger:    logger,
		metrics:   metrics,
	}
}

// SetPageLimit changes the page size requested from the platform.
func (c *Client) SetPageLimit(n int) {
	if n > 0 {
		c.pageLimit = n
	}
}

// AccountPath returns the platform path segment for an ad account id,
// adding the act_ prefix when missing.
func AccountPath(accountID string) string {
	if strings.HasPrefix(accountID, "act_") {
		return accountID
	}
	return "act_" + accountID
}

// InsightsQuery selects one day of insights at one level.
type InsightsQuery struct {
	AccountID        string
	AccessToken      string
	Date             time.Time
	Level            Level
	Breakdowns       []string
	ActionBreakdowns []string
}

// Insights fetches every insight record matching q, following pagination
// cursors until the platform reports no further page.
func (c *Client) Insights(ctx context.Context, q InsightsQuery) ([]Insight, error) {
	day := q.Date.Format("2006-01-02")
	timeRange, err := json.Marshal(map[string]string{"since": day, "until": day})
	if err != nil {
		return nil, fmt.Errorf("encode time range: %w", err)
	}
	level := q.Level
	if level == "" {
		level = LevelAccount
	}

	params := url.Values{}
	params.Set("access_token", q.AccessToken)
	params.Set("level", string(level))
	params.Set("time_range", string(timeRange))
	params.Set("fields", strings.Join(insightFields, ","))
	params.Set("limit", strconv.Itoa(c.pageLimit))
	if len(q.Breakdowns) > 0 {
		params.Set("breakdowns", strings.Join(q.Breakdowns, ","))
	}
	if len(q.ActionBreakdowns) > 0 {
		params.Set("action_breakdowns", strings.Join(q.ActionBreakdowns, ","))
	}

	account := AccountPath(q.AccountID)
	insights, err := getAll[Insight](ctx, c, "insights", account, c.endpoint(account, "insights", params))
	if err != nil {
		return nil, fmt.Errorf("fetch %s insights for %s on %s: %w", level, account, day, err)
	}
	return insights, nil
}

// Campaigns lists the account's active and paused campaigns.
func (c *Client) Campaigns(ctx context.Context, accountID, token string) ([]Campaign, error) {
	account := AccountPath(accountID)
	items, err := getAll[Campaign](ctx, c, "campaigns", account, c.endpoint(account, "campaigns", c.entityParams(token, campaignFields)))
	if err != nil {
		return nil, fmt.Errorf("list campaigns for %s: %w", account, err)
	}
	return filterStatus(items, func(v Campaign) string { return effective(v.EffectiveStatus, v.Status) }), nil
}

// AdSets lists the account's active and paused ad sets.
func (c *Client) AdSets(ctx context.Context, accountID, token string) ([]AdSet, error) {
	account := AccountPath(accountID)
	items, err := getAll[AdSet](ctx, c, "adsets", account, c.endpoint(account, "adsets", c.entityParams(token, adSetFields)))
	if err != nil {
		return nil, fmt.Errorf("list adsets for %s: %w", account, err)
	}
	return filterStatus(items, func(v AdSet) string { return effective(v.EffectiveStatus, v.Status) }), nil
}

// Ads lists the account's active and paused ads with their creatives.
func (c *Client) Ads(ctx context.Context, accountID, token string) ([]Ad, error) {
	account := AccountPath(accountID)
	items, err := getAll[Ad](ctx, c, "ads", account, c.endpoint(account, "ads", c.entityParams(token, adFields)))
	if err != nil {
		return nil, fmt.Errorf("list ads for %s: %w", account, err)
	}
	return filterStatus(items, func(v Ad) string { return effective(v.EffectiveStatus, v.Status) }), nil
}

// Leads lists the lead-form submissions of one ad. accountID is only used
// for throttling.
func (c *Client) Leads(ctx context.Context, accountID, adID, token string) ([]Lead, error) {
	params := url.Values{}
	params.Set("access_token", token)
	params.Set("fields", strings.Join(leadFields, ","))
	params.Set("limit", strconv.Itoa(c.pageLimit))

	leads, err := getAll[Lead](ctx, c, "leads", AccountPath(accountID), c.endpoint(adID, "leads", params))
	if err != nil {
		return nil, fmt.Errorf("list leads for ad %s: %w", adID, err)
	}
	return leads, nil
}

func (c *Client) endpoint(node, edge string, params url.Values) string {
	return fmt.Sprintf("%s/%s/%s?%s", c.baseURL, url.PathEscape(node), edge, params.Encode())
}

func (c *Client) entityParams(token string, fields []string) url.Values {
	filtering, _ := json.Marshal([]map[string]any{{
		"field":    "effective_status",
		"operator": "IN",
		"value":    syncedStatuses,
	}})
	params := url.Values{}
	params.Set("access_token", token)
	params.Set("fields", strings.Join(fields, ","))
	params.Set("filtering", string(filtering))
	params.Set("limit", strconv.Itoa(c.pageLimit))
	return params
}

// getAll walks a paginated listing starting at rawURL.
func getAll[T any](ctx context.Context, c *Client, endpoint, account, rawURL string) ([]T, error) {
	var out []T
	next := rawURL
	for pages := 0; next != ""; pages++ {
		if pages >= maxPages {
			return nil, fmt.Errorf("pagination exceeded %d pages", maxPages)
		}
		var p page[T]
		if err := c.getJSON(ctx, endpoint, account, next, &p); err != nil {
			return nil, err
		}
		out = append(out, p.Data...)

		next = ""
		if p.Paging != nil {
			next = p.Paging.Next
		}
		c.logger.Debug("graph page fetched",
			zap.String("endpoint", endpoint),
			zap.String("account", account),
			zap.Int("page", pages+1),
			zap.Int("rows", len(p.Data)),
			zap.Bool("more", next != ""))
	}
	return out, nil
}

// getJSON performs one throttled GET and decodes the body into out. A non-2xx
// status or an error object in the body becomes an *APIError.
func (c *Client) getJSON(ctx context.Context, endpoint, account, rawURL string, out any) error {
	if err := c.limiter.Wait(ctx, account); err != nil {
		return fmt.Errorf("throttle: %w", err)
	}

	start := time.Now()
	status := "error"
	defer func() {
		c.metrics.RecordGraphLatency(endpoint, time.Since(start))
		c.metrics.IncrementGraphRequests(endpoint, status)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()
	status = strconv.Itoa(resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var probe struct {
		Error *apiError `json:"error"`
	}
	_ = json.Unmarshal(body, &probe)
	if probe.Error != nil {
		return probe.Error.toAPIError(resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: truncate(string(body), 512)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func effective(effectiveStatus, status string) string {
	if effectiveStatus != "" {
		return effectiveStatus
	}
	return status
}

func filterStatus[T any](items []T, status func(T) string) []T {
	out := items[:0]
	for _, it := range items {
		s := strings.ToUpper(status(it))
		for _, want := range syncedStatuses {
			if s == want {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
