package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestLeadFromRow(t *testing.T) {
	t.Parallel()

	row := map[string]any{
		"id":                  "pql-1",
		"email":               "ana@acme.io",
		"company_name":        "Acme",
		"product_usage_score": 8.5,
		"last_active_date":    "2025-02-16",
		"status":              "pending",
		"raw_data":            map[string]any{"plan": "team"},
		"unrelated":           []any{1, 2},
	}

	l := LeadFromRow(row)
	assert.Equal(t, "pql-1", l.ID)
	assert.Equal(t, "ana@acme.io", l.Email)
	assert.Equal(t, "Acme", l.Company())
	require.NotNil(t, l.ProductUsageScore)
	assert.InDelta(t, 8.5, l.Usage(), 0.0001)
	assert.Equal(t, LeadStatusPending, l.Status)
	assert.Equal(t, "team", l.RawData["plan"])
}

func TestLeadFromRow_StringScoreAndBlanks(t *testing.T) {
	t.Parallel()

	l := LeadFromRow(map[string]any{
		"id":                  "pql-2",
		"product_usage_score": " 7 ",
		"company_name":        "   ",
	})
	assert.InDelta(t, 7.0, l.Usage(), 0.0001)
	assert.Nil(t, l.CompanyName)
	assert.Nil(t, l.LastActiveDate)
}

func TestLead_UsageDefaultsToZero(t *testing.T) {
	t.Parallel()
	assert.Zero(t, Lead{}.Usage())
}

func TestLead_Subject(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Acme", Lead{Email: "a@acme.io", CompanyName: strPtr("Acme")}.Subject())
	assert.Equal(t, "a@acme.io", Lead{Email: "a@acme.io", CompanyName: strPtr(" ")}.Subject())
}

func TestLead_LastActiveRaw(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		lead Lead
		want *string
	}{
		{"column only", Lead{LastActiveDate: strPtr("2025-02-16")}, strPtr("2025-02-16")},
		{"raw data wins", Lead{LastActiveDate: strPtr("2025-02-16"), RawData: map[string]any{"Last Active": "yesterday"}}, strPtr("yesterday")},
		{"raw key order", Lead{RawData: map[string]any{"last_active": "3 days ago", "Last Active": "yesterday"}}, strPtr("3 days ago")},
		{"empty raw falls back", Lead{LastActiveDate: strPtr("2025-01-01"), RawData: map[string]any{"last_active": ""}}, strPtr("2025-01-01")},
		{"nothing", Lead{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.lead.LastActiveRaw())
		})
	}
}

func TestFailedPage(t *testing.T) {
	t.Parallel()

	p := FailedPage("https://acme.io", RendererRequests, "boom")
	assert.False(t, p.OK)
	assert.Equal(t, "boom", p.Error)
	assert.Empty(t, p.Title)
	assert.Empty(t, p.Excerpt)
}
