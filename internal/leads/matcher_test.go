package leads

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/adsync/internal/graph"
	"github.com/patrickwarner/adsync/internal/models"
)

func fields(kv ...string) []graph.LeadField {
	out := make([]graph.LeadField, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, graph.LeadField{Name: kv[i], Values: []string{kv[i+1]}})
	}
	return out
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name       string
		fields     []graph.LeadField
		candidates []string
		want       string
		wantOK     bool
	}{
		{
			name:       "exact match is case insensitive",
			fields:     fields("EMAIL", "a@b.co"),
			candidates: EmailFields,
			want:       "a@b.co", wantOK: true,
		},
		{
			name:       "exact match beats earlier substring match",
			fields:     fields("work_email_address", "work@b.co", "email", "home@b.co"),
			candidates: EmailFields,
			want:       "home@b.co", wantOK: true,
		},
		{
			name:       "substring fallback",
			fields:     fields("your_phone_number_please", "555-1234"),
			candidates: PhoneFields,
			want:       "555-1234", wantOK: true,
		},
		{
			name:       "first field in form order wins within a pass",
			fields:     fields("contact_first_name", "Ana", "contact_full_name", "Ana Ruiz"),
			candidates: NameFields,
			want:       "Ana", wantOK: true,
		},
		{
			name:       "blank values are skipped",
			fields:     fields("email", "  ", "correo", "c@d.co"),
			candidates: EmailFields,
			want:       "c@d.co", wantOK: true,
		},
		{
			name:       "no match",
			fields:     fields("city", "Lima"),
			candidates: PhoneFields,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Match(tt.fields, tt.candidates)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromGraph(t *testing.T) {
	l := FromGraph(graph.Lead{
		ID:          "l1",
		CreatedTime: "2024-03-05T14:03:11+0000",
		AdID:        "ad1",
		AdName:      "Promo",
		FormID:      "f1",
		FieldData:   fields("full_name", "Ana Ruiz", "phone_number", "+51 999"),
	}, 7)

	assert.Equal(t, "l1", l.ID)
	assert.Equal(t, int64(7), l.BusinessID)
	assert.Equal(t, models.LeadStatusNew, l.Status)
	assert.True(t, l.CreatedAt.Equal(time.Date(2024, 3, 5, 14, 3, 11, 0, time.UTC)))
	require.NotNil(t, l.Name)
	assert.Equal(t, "Ana Ruiz", *l.Name)
	require.NotNil(t, l.Phone)
	assert.Equal(t, "+51 999", *l.Phone)
	assert.Nil(t, l.Email)
}
