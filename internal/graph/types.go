package graph

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Number is a numeric field as the platform sends it. Most metrics arrive as
// JSON strings ("12.34"), a few as bare numbers. Both decode to the same text;
// parsing is left to the caller so malformed values can be treated as zero.
type Number string

// UnmarshalJSON accepts a JSON string, number or null.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Number(s)
		return nil
	}
	*n = Number(b)
	return nil
}

// Float parses the value. Empty or malformed input yields 0, and so do
// NaN and the infinities, which ParseFloat would otherwise accept.
func (n Number) Float() float64 {
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Int parses the value as a count, truncating any fraction. Values outside
// the int64 range yield 0 like any other malformed input.
func (n Number) Int() int64 {
	f := n.Float()
	if f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0
	}
	return int64(f)
}

// Action is one entry of an insight's actions or action_values list.
// Destination is only populated when the query used
// action_breakdowns=action_destination.
type Action struct {
	ActionType  string `json:"action_type"`
	Value       Number `json:"value"`
	Destination string `json:"action_destination,omitempty"`
}

// Insight is a platform performance record for one entity over one day, or
// one hour bucket when broken down by hour.
type Insight struct {
	AccountID    string `json:"account_id,omitempty"`
	CampaignID   string `json:"campaign_id,omitempty"`
	CampaignName string `json:"campaign_name,omitempty"`
	AdSetID      string `json:"adset_id,omitempty"`
	AdSetName    string `json:"adset_name,omitempty"`
	AdID         string `json:"ad_id,omitempty"`
	AdName       string `json:"ad_name,omitempty"`

	Spend       Number `json:"spend"`
	Impressions Number `json:"impressions"`
	Clicks      Number `json:"clicks"`
	Reach       Number `json:"reach,omitempty"`
	Frequency   Number `json:"frequency,omitempty"`

	Actions        []Action `json:"actions,omitempty"`
	ActionValues   []Action `json:"action_values,omitempty"`
	ThruPlays      []Action `json:"video_thruplay_watched_actions,omitempty"`
	HourlyInterval string   `json:"hourly_stats_aggregated_by_advertiser_time_zone,omitempty"`

	DateStart string `json:"date_start,omitempty"`
	DateStop  string `json:"date_stop,omitempty"`
}

// EntityID returns the id of the entity the record describes at level.
func (i Insight) EntityID(level Level) string {
	switch level {
	case LevelCampaign:
		return i.CampaignID
	case LevelAdSet:
		return i.AdSetID
	case LevelAd:
		return i.AdID
	default:
		return i.AccountID
	}
}

// Campaign is a campaign as listed by the platform.
type Campaign struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	EffectiveStatus string `json:"effective_status"`
	Objective       string `json:"objective,omitempty"`
}

// AdSet is an ad set as listed by the platform.
type AdSet struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	CampaignID      string `json:"campaign_id"`
	Status          string `json:"status"`
	EffectiveStatus string `json:"effective_status"`
}

// Ad is an ad as listed by the platform, with its nested creative.
type Ad struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	AdSetID         string      `json:"adset_id"`
	CampaignID      string      `json:"campaign_id"`
	Status          string      `json:"status"`
	EffectiveStatus string      `json:"effective_status"`
	Creative        *AdCreative `json:"creative,omitempty"`
}

// AdCreative is the variable-shape creative payload. Raw keeps the exact
// bytes received so unrecognised shapes are never lost.
type AdCreative struct {
	ID              string           `json:"id"`
	Title           string           `json:"title,omitempty"`
	Body            string           `json:"body,omitempty"`
	ImageURL        string           `json:"image_url,omitempty"`
	ThumbnailURL    string           `json:"thumbnail_url,omitempty"`
	VideoID         string           `json:"video_id,omitempty"`
	ObjectType      string           `json:"object_type,omitempty"`
	ObjectStorySpec *ObjectStorySpec `json:"object_story_spec,omitempty"`
	AssetFeedSpec   *AssetFeedSpec   `json:"asset_feed_spec,omitempty"`
	Raw             json.RawMessage  `json:"-"`
}

// UnmarshalJSON decodes the known fields and keeps a copy of the payload.
func (c *AdCreative) UnmarshalJSON(b []byte) error {
	type plain AdCreative
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*c = AdCreative(p)
	c.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// ObjectStorySpec is the page-post shape of a creative.
type ObjectStorySpec struct {
	PageID    string     `json:"page_id,omitempty"`
	LinkData  *LinkData  `json:"link_data,omitempty"`
	VideoData *VideoData `json:"video_data,omitempty"`
}

// LinkData is the link-ad variant of a story spec.
type LinkData struct {
	Message     string `json:"message,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Link        string `json:"link,omitempty"`
	Picture     string `json:"picture,omitempty"`
	ImageHash   string `json:"image_hash,omitempty"`
}

// VideoData is the video-ad variant of a story spec.
type VideoData struct {
	Message  string `json:"message,omitempty"`
	Title    string `json:"title,omitempty"`
	VideoID  string `json:"video_id,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// AssetFeedSpec is the dynamic-creative shape with several variants.
type AssetFeedSpec struct {
	Titles []TextAsset  `json:"titles,omitempty"`
	Bodies []TextAsset  `json:"bodies,omitempty"`
	Images []ImageAsset `json:"images,omitempty"`
	Videos []VideoAsset `json:"videos,omitempty"`
}

// TextAsset is a title or body variant.
type TextAsset struct {
	Text string `json:"text"`
}

// ImageAsset is an image variant.
type ImageAsset struct {
	URL  string `json:"url,omitempty"`
	Hash string `json:"hash,omitempty"`
}

// VideoAsset is a video variant.
type VideoAsset struct {
	VideoID      string `json:"video_id"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// Lead is one lead-form submission.
type Lead struct {
	ID          string      `json:"id"`
	CreatedTime string      `json:"created_time"`
	AdID        string      `json:"ad_id,omitempty"`
	AdName      string      `json:"ad_name,omitempty"`
	FormID      string      `json:"form_id,omitempty"`
	FieldData   []LeadField `json:"field_data"`
}

// LeadField is one question/answer pair of a lead form.
type LeadField struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Paging is the cursor block of a list response.
type Paging struct {
	Next string `json:"next,omitempty"`
}

// page is the envelope of every list response.
type page[T any] struct {
	Data   []T       `json:"data"`
	Paging *Paging   `json:"paging,omitempty"`
	Error  *apiError `json:"error,omitempty"`
}
