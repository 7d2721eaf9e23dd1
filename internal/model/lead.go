package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// LeadStatus represents where a PQL sits in the review workflow.
type LeadStatus string

const (
	LeadStatusPending   LeadStatus = "pending"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusRejected  LeadStatus = "rejected"
)

// Lead is an immutable snapshot of a product-qualified lead row.
type Lead struct {
	ID                string         `json:"id"`
	Email             string         `json:"email"`
	CompanyName       *string        `json:"company_name,omitempty"`
	ProductUsageScore *float64       `json:"product_usage_score,omitempty"`
	LastActiveDate    *string        `json:"last_active_date,omitempty"`
	RawData           map[string]any `json:"raw_data,omitempty"`
	Status            LeadStatus     `json:"status"`
}

// Usage returns the product usage score, defaulting to 0 when absent.
func (l Lead) Usage() float64 {
	if l.ProductUsageScore == nil {
		return 0
	}
	return *l.ProductUsageScore
}

// Company returns the company name or "" when absent.
func (l Lead) Company() string {
	if l.CompanyName == nil {
		return ""
	}
	return *l.CompanyName
}

// Subject is the research subject for the lead: its company name, else its email.
func (l Lead) Subject() string {
	if c := strings.TrimSpace(l.Company()); c != "" {
		return c
	}
	return l.Email
}

// lastActiveKeys are checked in raw_data before the structured column. CSV
// uploads keep the original free-text "Last Active" header.
var lastActiveKeys = []string{"last_active_date", "last_active", "Last Active"}

// LastActiveRaw returns the free-text last-active value, preferring raw_data.
func (l Lead) LastActiveRaw() *string {
	for _, k := range lastActiveKeys {
		if s := nonEmptyString(l.RawData[k]); s != nil {
			return s
		}
	}
	if l.LastActiveDate != nil && *l.LastActiveDate != "" {
		return l.LastActiveDate
	}
	return nil
}

// LeadFromRow decodes the known lead columns from a datastore row. Unknown
// columns are ignored; raw_data carries pass-through fields.
func LeadFromRow(row map[string]any) Lead {
	l := Lead{
		ID:             stringOf(row["id"]),
		Email:          stringOf(row["email"]),
		CompanyName:    nonEmptyString(row["company_name"]),
		LastActiveDate: nonEmptyString(row["last_active_date"]),
		Status:         LeadStatus(stringOf(row["status"])),
	}
	if f, ok := floatOf(row["product_usage_score"]); ok {
		l.ProductUsageScore = &f
	}
	if raw, ok := row["raw_data"].(map[string]any); ok {
		l.RawData = raw
	}
	return l
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

func nonEmptyString(v any) *string {
	s := strings.TrimSpace(stringOf(v))
	if s == "" {
		return nil
	}
	return &s
}

func floatOf(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
