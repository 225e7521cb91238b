// Package leads pulls lead-form submissions for ads and stores them with
// best-effort contact extraction.
package leads

import (
	"strings"
	"time"

	"github.com/patrickwarner/adsync/internal/graph"
	"github.com/patrickwarner/adsync/internal/models"
)

// Candidate field names per contact attribute, in priority order. Form
// builders let advertisers name questions freely, so matching is heuristic
// and lossy.
var (
	NameFields  = []string{"full_name", "name", "first_name", "nombre", "nombre_completo"}
	EmailFields = []string{"email", "correo", "correo_electronico", "e-mail"}
	PhoneFields = []string{"phone_number", "phone", "telefono", "celular", "whatsapp", "mobile"}
)

// Match returns the first value of the form field best matching candidates.
// The first pass looks for a case-insensitive exact name match, the second
// for a case-insensitive substring match. Within a pass the first field in
// form order wins, so of two fields that both only match by substring the
// earlier one is used.
func Match(fields []graph.LeadField, candidates []string) (string, bool) {
	if v, ok := matchPass(fields, candidates, func(name, cand string) bool { return name == cand }); ok {
		return v, true
	}
	return matchPass(fields, candidates, strings.Contains)
}

func matchPass(fields []graph.LeadField, candidates []string, match func(name, cand string) bool) (string, bool) {
	for _, f := range fields {
		name := strings.ToLower(strings.TrimSpace(f.Name))
		for _, cand := range candidates {
			if !match(name, strings.ToLower(cand)) {
				continue
			}
			for _, v := range f.Values {
				if v = strings.TrimSpace(v); v != "" {
					return v, true
				}
			}
		}
	}
	return "", false
}

// FromGraph converts a platform lead into the stored shape. Unmatched
// contact fields stay nil.
func FromGraph(l graph.Lead, businessID int64) models.Lead {
	out := models.Lead{
		ID:         l.ID,
		BusinessID: businessID,
		AdID:       l.AdID,
		AdName:     l.AdName,
		FormID:     l.FormID,
		Status:     models.LeadStatusNew,
	}
	if t, err := parseCreatedTime(l.CreatedTime); err == nil {
		out.CreatedAt = t
	}
	if v, ok := Match(l.FieldData, NameFields); ok {
		out.Name = &v
	}
	if v, ok := Match(l.FieldData, EmailFields); ok {
		out.Email = &v
	}
	if v, ok := Match(l.FieldData, PhoneFields); ok {
		out.Phone = &v
	}
	return out
}

// The platform sends created_time as 2024-03-05T14:03:11+0000.
func parseCreatedTime(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02T15:04:05-0700", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
