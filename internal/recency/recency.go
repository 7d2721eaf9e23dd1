// Package recency turns a free-text "last active" value into a whole number
// of days before a reference date.
package recency

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/pql-agent/internal/llm"
)

const systemPrompt = `You normalize a single, possibly unstructured last_active value for a product user.

You will be given JSON with:
{
  "last_active_raw": "<original last_active value>",
  "today": "<YYYY-MM-DD>"
}

Interpret how many whole days have passed between last_active_raw and today.
Examples of last_active_raw:
- "2025-02-16"
- "Feb 10, 2025"
- "yesterday"
- "3 days ago"

Respond ONLY in JSON with:
{
  "days_since_last_active": <integer or null>
}

Rules:
- If you can confidently resolve last_active_raw into an absolute date, compute the integer day difference.
- If you cannot, set days_since_last_active to null.
- Do not include any other keys or prose.`

const daysKey = "days_since_last_active"

// isoLayouts are tried in order by the deterministic fallback.
var isoLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Resolver resolves recency with an optional LLM step followed by a strict
// ISO-8601 parse.
type Resolver struct {
	completer llm.Completer
}

// New returns a Resolver. A nil completer disables the LLM step.
func New(c llm.Completer) *Resolver {
	return &Resolver{completer: c}
}

// DaysSince returns today minus the resolved date in whole days, or nil when
// raw is empty or cannot be resolved. Future dates yield negative values.
func (r *Resolver) DaysSince(ctx context.Context, raw *string, today time.Time) *int {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	value := strings.TrimSpace(*raw)

	if days := r.fromLLM(ctx, value, today); days != nil {
		return days
	}
	return FromISO(value, today)
}

func (r *Resolver) fromLLM(ctx context.Context, raw string, today time.Time) *int {
	if r == nil || r.completer == nil {
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"last_active_raw": raw,
		"today":           today.UTC().Format("2006-01-02"),
	})
	if err != nil {
		return nil
	}

	out, err := r.completer.Complete(ctx, systemPrompt, string(payload))
	if err != nil {
		zap.L().Warn("recency: llm resolution failed",
			zap.String("last_active_raw", raw),
			zap.Error(err),
		)
		return nil
	}

	parsed, ok := llm.ExtractJSON(out)
	if !ok {
		zap.L().Debug("recency: llm returned no json object", zap.String("output", out))
		return nil
	}
	return intOf(parsed[daysKey])
}

// FromISO parses value as an ISO-8601 date or datetime and returns the
// calendar-day difference to today in UTC.
func FromISO(value string, today time.Time) *int {
	value = strings.TrimSpace(value)
	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		days := daysBetween(t, today)
		return &days
	}
	return nil
}

// daysBetween counts calendar days between the dates as written. An offset
// on from keeps its own date rather than being shifted to UTC.
func daysBetween(from, to time.Time) int {
	fd := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	to = to.UTC()
	td := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Round(td.Sub(fd).Hours() / 24))
}

// intOf accepts only integral JSON numbers.
func intOf(v any) *int {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil
	}
	n := int(f)
	return &n
}
