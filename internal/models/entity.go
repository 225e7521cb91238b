package models

// Campaign, AdSet and Ad mirror the ads platform hierarchy. Their ids are the
// platform ids; the platform is the source of truth for identity. Status is
// free text because the platform vocabulary keeps growing.

// Campaign is the top of the entity hierarchy.
type Campaign struct {
	ID         string `json:"id"`
	BusinessID int64  `json:"business_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Objective  string `json:"objective,omitempty"`
}

// AdSet belongs to a Campaign.
type AdSet struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	BusinessID int64  `json:"business_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
}

// Ad belongs to an AdSet and carries its resolved creative.
type Ad struct {
	ID         string   `json:"id"`
	AdSetID    string   `json:"adset_id"`
	CampaignID string   `json:"campaign_id"`
	BusinessID int64    `json:"business_id"`
	Name       string   `json:"name"`
	Status     string   `json:"status"`
	Creative   Creative `json:"creative"`
}

// IDSet is a set of entity ids returned by bulk existence checks.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set. A nil set contains nothing.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}
