package models

import "time"

// Lead workflow statuses. They are maintained by operators, never by sync.
const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusQualified = "qualified"
	LeadStatusConverted = "converted"
	LeadStatusJunk      = "junk"
)

// Lead is one lead-form submission. Contact fields are best-effort extractions
// and may be nil. Status and contact fields belong to operators once stored.
type Lead struct {
	ID         string    `json:"id"`
	BusinessID int64     `json:"business_id"`
	AdID       string    `json:"ad_id"`
	AdName     string    `json:"ad_name"`
	FormID     string    `json:"form_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Name       *string   `json:"name"`
	Email      *string   `json:"email"`
	Phone      *string   `json:"phone"`
	Status     string    `json:"status"`
}
