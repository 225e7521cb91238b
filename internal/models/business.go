package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Business is an advertiser account tracked by the dashboard. Each business
// maps to exactly one ad account on the ads platform.
type Business struct {
	ID          int64     `json:"id"`            // Local identifier.
	Name        string    `json:"name"`          // Display name.
	AdAccountID string    `json:"ad_account_id"` // Ads platform account id, with or without the "act_" prefix.
	AccessToken string    `json:"-"`             // Platform credential. Never serialised in clear.
	Active      bool      `json:"active"`        // Inactive businesses are ignored by bulk syncs.
	Color       string    `json:"color"`         // UI color tag.
	CreatedAt   time.Time `json:"created_at"`
}

// MaskedToken returns the access token with everything but the last four
// characters replaced, suitable for display.
func (b Business) MaskedToken() string {
	if b.AccessToken == "" {
		return ""
	}
	if len(b.AccessToken) <= 4 {
		return strings.Repeat("*", len(b.AccessToken))
	}
	return strings.Repeat("*", len(b.AccessToken)-4) + b.AccessToken[len(b.AccessToken)-4:]
}

// MarshalJSON exposes the masked token alongside the public fields.
func (b Business) MarshalJSON() ([]byte, error) {
	type plain Business
	return json.Marshal(struct {
		plain
		AccessToken string `json:"access_token"`
	}{plain(b), b.MaskedToken()})
}

// Setting is one row of the generic system_settings key/value table.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
