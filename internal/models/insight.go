package models

import "time"

// Grain names the entity level an aggregate row belongs to.
type Grain string

const (
	GrainBusiness Grain = "business"
	GrainCampaign Grain = "campaign"
	GrainAdSet    Grain = "adset"
	GrainAd       Grain = "ad"
	GrainHour     Grain = "hour"
)

// Metrics is the KPI set derived from one platform insight record.
// CTR and CVR are percentages (0-100). CPM is cost per thousand impressions.
type Metrics struct {
	Spend       float64 `json:"spend"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Leads       int64   `json:"leads"`
	Conversions int64   `json:"conversions"`
	Revenue     float64 `json:"revenue"`
	CTR         float64 `json:"ctr"`
	CPM         float64 `json:"cpm"`
	CPC         float64 `json:"cpc"`
	CPL         float64 `json:"cpl"`
	CVR         float64 `json:"cvr"`
	ROAS        float64 `json:"roas"`
}

// LeadChannels splits lead counts by messaging destination.
type LeadChannels struct {
	WhatsApp  int64 `json:"leads_whatsapp"`
	Instagram int64 `json:"leads_instagram"`
	Messenger int64 `json:"leads_messenger"`
}

// BusinessDay is one business-level aggregate row, unique on (BusinessID, Date).
// Reach, frequency and the video engagement rates only exist at this grain.
type BusinessDay struct {
	BusinessID int64     `json:"business_id"`
	Date       time.Time `json:"date"`
	Metrics
	Channels  LeadChannels `json:"channels"`
	Reach     int64        `json:"reach"`
	Frequency float64      `json:"frequency"`
	HookRate  float64      `json:"hook_rate"`
	HoldRate  float64      `json:"hold_rate"`
}

// EntityDay is one campaign, ad set or ad aggregate row, unique on
// (EntityID, Date) within its grain.
type EntityDay struct {
	EntityID   string    `json:"entity_id"`
	BusinessID int64     `json:"business_id"`
	Date       time.Time `json:"date"`
	Metrics
	Channels LeadChannels `json:"channels"`
}

// HourlyStat is one hour-of-day row, unique on (BusinessID, Date, Hour).
type HourlyStat struct {
	BusinessID             int64     `json:"business_id"`
	Date                   time.Time `json:"date"`
	Hour                   int       `json:"hour"` // 0-23 in the advertiser time zone
	Spend                  float64   `json:"spend"`
	Impressions            int64     `json:"impressions"`
	Clicks                 int64     `json:"clicks"`
	MessagingConversations int64     `json:"messaging_conversations"`
}

// DayStart truncates t to midnight in loc. Every aggregate row is keyed on
// the result so re-syncs at different times of day hit the same row.
func DayStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
