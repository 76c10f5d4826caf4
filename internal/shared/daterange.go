package shared

import (
	"net/url"
	"strings"
	"time"
)

// DateRange is a half-open [From, To) window. Zero bounds are unbounded.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Presets understood by ParseDateRange.
var rangePresets = map[string]time.Duration{
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
	"1y":  365 * 24 * time.Hour,
}

// DefaultRange is applied by callers that require a bounded window.
const DefaultRange = "30d"

// ParseDateRange reads "range" (7d, 30d, 90d, 1y) or explicit "from"/"to"
// dates (YYYY-MM-DD, "to" inclusive) from query values. Explicit dates win.
func ParseDateRange(v url.Values, now time.Time) (DateRange, error) {
	var r DateRange
	from := strings.TrimSpace(v.Get("from"))
	to := strings.TrimSpace(v.Get("to"))
	if from != "" || to != "" {
		if from != "" {
			t, err := time.Parse("2006-01-02", from)
			if err != nil {
				return DateRange{}, NewValidationError("Invalid from date %q, expected YYYY-MM-DD.", from)
			}
			r.From = t
		}
		if to != "" {
			t, err := time.Parse("2006-01-02", to)
			if err != nil {
				return DateRange{}, NewValidationError("Invalid to date %q, expected YYYY-MM-DD.", to)
			}
			r.To = t.AddDate(0, 0, 1)
		}
		if !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To) {
			return DateRange{}, NewValidationError("The from date must not be after the to date.")
		}
		return r, nil
	}
	preset := strings.TrimSpace(v.Get("range"))
	if preset == "" {
		return r, nil
	}
	span, ok := rangePresets[preset]
	if !ok {
		return DateRange{}, NewValidationError("Invalid range %q: must be one of 7d 30d 90d 1y.", preset)
	}
	end := now.UTC().Truncate(24*time.Hour).AddDate(0, 0, 1)
	return DateRange{From: end.Add(-span), To: end}, nil
}

// Bounded returns r, or the default preset window when r has no lower bound.
func (r DateRange) Bounded(now time.Time) DateRange {
	if !r.From.IsZero() {
		if r.To.IsZero() {
			r.To = now.UTC().Truncate(24*time.Hour).AddDate(0, 0, 1)
		}
		return r
	}
	end := r.To
	if end.IsZero() {
		end = now.UTC().Truncate(24*time.Hour).AddDate(0, 0, 1)
	}
	return DateRange{From: end.Add(-rangePresets[DefaultRange]), To: end}
}
