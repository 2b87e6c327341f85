// Package analytics contains the pure aggregation core. Every function here
// operates on fully materialized course snapshots and never performs I/O;
// fetching and caching live in the service layer. Given identical input and
// reference time, output is deterministic.
package analytics

import (
	"math"
	"time"
)

const (
	dateKeyLayout = "2006-01-02"
	displayLayout = "Jan 2, 2006"
)

// parseTimestamp parses an upstream RFC3339 timestamp. Malformed values are
// reported via the boolean rather than an error: callers skip the event and
// keep aggregating.
func parseTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func displayDate(t time.Time) string {
	return t.Format(displayLayout)
}

// roundRate returns round(100 * num / den), or 0 when den is 0.
func roundRate(num, den int) int {
	if den == 0 {
		return 0
	}
	return int(math.Round(float64(num) / float64(den) * 100))
}
