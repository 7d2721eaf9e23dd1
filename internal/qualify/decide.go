// Package qualify scores a lead against the usage and recency policy and
// persists the outcome.
package qualify

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/pql-agent/internal/model"
)

const (
	// MinThreshold and MaxThreshold bound any effective threshold.
	MinThreshold = 1
	MaxThreshold = 10

	// DefaultThreshold applies when neither a request nor config sets one.
	DefaultThreshold = 7

	recentDays = 2
	staleDays  = 5
	cutoffGap  = 3
)

// NormalizeThreshold picks requested over fallback and clamps to [1, 10].
func NormalizeThreshold(requested *int, fallback int) int {
	t := fallback
	if requested != nil {
		t = *requested
	}
	return max(MinThreshold, min(MaxThreshold, t))
}

// LowUsageCutoff is the usage score at or below which a stale lead is unfit.
func LowUsageCutoff(threshold int) int {
	return max(1, threshold-cutoffGap)
}

// ParseThreshold coerces a loosely typed request value to an integer.
// Floats are truncated. Anything else yields nil.
func ParseThreshold(v any) *int {
	var n int
	switch t := v.(type) {
	case int:
		n = t
	case int32:
		n = int(t)
	case int64:
		n = int(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		n = int(t)
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil {
				return nil
			}
			i = int64(f)
		}
		n = int(i)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return nil
		}
		n = i
	default:
		return nil
	}
	return &n
}

// Decide applies the qualification rules. The first matching rule wins:
// high usage with recent or unknown activity qualifies; low usage with known
// stale activity is rejected; anything else keeps the current status, which
// defaults to pending.
func Decide(usage float64, days *int, requested *int, defaultThreshold int, current model.LeadStatus) model.QualificationOutcome {
	threshold := NormalizeThreshold(requested, defaultThreshold)
	cutoff := LowUsageCutoff(threshold)

	status := current
	if status == "" {
		status = model.LeadStatusPending
	}

	highUsageAndRecent := usage >= float64(threshold) && (days == nil || *days <= recentDays)
	lowUsageAndStale := usage <= float64(cutoff) && days != nil && *days > staleDays

	var rationale, reasoning string
	switch {
	case highUsageAndRecent:
		status = model.LeadStatusQualified
		rationale = fmt.Sprintf("Qualified: usage %s/10 meets threshold %d, last active %s.",
			formatUsage(usage), threshold, formatDays(days))
		reasoning = fmt.Sprintf("This lead is qualified because their usage score meets or exceeds the "+
			"threshold of %d/10 and their last active time is within %d days (or could not be "+
			"resolved but appears recent).", threshold, recentDays)
	case lowUsageAndStale:
		status = model.LeadStatusRejected
		rationale = fmt.Sprintf("Unfit: usage %s/10 at or below cutoff %d, last active %s.",
			formatUsage(usage), cutoff, formatDays(days))
		reasoning = fmt.Sprintf("This lead is considered unfit because their usage score is relatively "+
			"low (%d/10 or below) and they have not been active in more than %d days, which "+
			"together indicate low intent and recency.", cutoff, staleDays)
	default:
		rationale = fmt.Sprintf("Potential: usage %s/10 (threshold %d, cutoff %d), last active %s.",
			formatUsage(usage), threshold, cutoff, formatDays(days))
		reasoning = fmt.Sprintf("This lead is a potential fit but does not yet meet the automatic "+
			"qualification bar of usage >= %d/10 within the last %d days, and does not fall into "+
			"the low-usage-and-stale unfit bucket. A human may still choose to engage based on "+
			"other context.", threshold, recentDays)
	}

	var daysValue any
	if days != nil {
		daysValue = *days
	}

	return model.QualificationOutcome{
		Status:    status,
		Rationale: rationale,
		Metadata: map[string]any{
			model.MetaUsageScore:     usage,
			model.MetaThreshold:      threshold,
			model.MetaLowUsageCutoff: cutoff,
			model.MetaLastActiveRaw:  nil,
			model.MetaDaysSince:      daysValue,
			model.MetaReasoning:      reasoning,
		},
	}
}

func formatUsage(u float64) string {
	return strconv.FormatFloat(u, 'f', -1, 64)
}

func formatDays(days *int) string {
	if days == nil {
		return "unknown"
	}
	return fmt.Sprintf("%d day(s) ago", *days)
}
