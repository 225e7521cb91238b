// Package kpi turns raw platform insight records into the KPI set stored
// per day and entity. Everything here is pure and total: malformed input
// degrades to zero instead of failing.
package kpi

import (
	"math"

	"github.com/patrickwarner/adsync/internal/graph"
	"github.com/patrickwarner/adsync/internal/models"
)

// Action types counted as leads, messaging conversations included.
var leadActions = newSet(
	"lead",
	"onsite_conversion.lead_grouped",
	"onsite_conversion.messaging_conversation_started_7d",
	"messaging_conversations",
)

// Action types counted as purchases, both for conversion counts and for
// revenue from action_values.
var purchaseActions = newSet(
	"purchase",
	"omni_purchase",
	"offsite_conversion.fb_pixel_purchase",
	"onsite_conversion.purchase",
)

const videoViewAction = "video_view"

// MessagingWelcomeAction counts conversations in the hourly breakdown.
const MessagingWelcomeAction = "onsite_conversion.messaging_welcome_message_view"

// Parse derives Metrics from a single insight record.
func Parse(in graph.Insight) models.Metrics {
	m := models.Metrics{
		Spend:       in.Spend.Float(),
		Impressions: in.Impressions.Int(),
		Clicks:      in.Clicks.Int(),
		Leads:       toCount(sumActions(in.Actions, leadActions)),
		Conversions: toCount(sumActions(in.Actions, purchaseActions)),
		Revenue:     sumActions(in.ActionValues, purchaseActions),
	}
	Derive(&m)
	return m
}

// Derive recomputes every rate in m from its base counts. Call it after
// summing several Metrics together; averaging rates would be wrong.
func Derive(m *models.Metrics) {
	impressions := float64(m.Impressions)
	clicks := float64(m.Clicks)

	m.CTR = safeDiv(clicks, impressions) * 100
	m.CPM = safeDiv(m.Spend, impressions) * 1000
	m.CPC = safeDiv(m.Spend, clicks)
	m.CPL = safeDiv(m.Spend, float64(m.Leads))
	m.CVR = safeDiv(float64(m.Conversions), clicks) * 100
	m.ROAS = safeDiv(m.Revenue, m.Spend)
}

// Engagement returns the video hook rate (3-second views per impression)
// and hold rate (thruplays per impression), both as percentages.
func Engagement(in graph.Insight) (hookRate, holdRate float64) {
	impressions := in.Impressions.Float()
	views := ActionCount(in.Actions, videoViewAction)
	var thruplays float64
	for _, a := range in.ThruPlays {
		thruplays += a.Value.Float()
	}
	return safeDiv(views, impressions) * 100, safeDiv(thruplays, impressions) * 100
}

// ActionCount sums the values of every action with the given type.
func ActionCount(actions []graph.Action, actionType string) float64 {
	var total float64
	for _, a := range actions {
		if a.ActionType == actionType {
			total += a.Value.Float()
		}
	}
	return total
}

// IsLeadAction reports whether actionType counts towards leads.
func IsLeadAction(actionType string) bool {
	return leadActions[actionType]
}

func sumActions(actions []graph.Action, types map[string]bool) float64 {
	var total float64
	for _, a := range actions {
		if types[a.ActionType] {
			total += a.Value.Float()
		}
	}
	return total
}

func newSet(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// toCount truncates a summed action value to a count, mapping anything
// outside the int64 range to 0.
func toCount(f float64) int64 {
	if math.IsNaN(f) || f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0
	}
	return int64(f)
}

// safeDiv returns 0 for a zero denominator and for any non-finite quotient.
func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	q := a / b
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return 0
	}
	return q
}
