package analytics

import (
	"sort"
	"time"

	"github.com/noah-isme/classroom-insights-api/internal/models"
)

// EngagementWindowDays is the length of the engagement time series,
// including the reference day itself.
const EngagementWindowDays = 30

// EngagementWindow accumulates submitted-submission events into a dense
// 30-day daily series ending on the reference day. Days are keyed by the
// local calendar date in the reference time's location. Events outside the
// window or with unparseable timestamps are dropped silently.
type EngagementWindow struct {
	loc    *time.Location
	dates  []string
	counts map[string]int
}

// NewEngagementWindow builds a window covering the 30 calendar days ending
// at now, every day pre-seeded with a zero count.
func NewEngagementWindow(now time.Time) *EngagementWindow {
	w := &EngagementWindow{
		loc:    now.Location(),
		dates:  make([]string, 0, EngagementWindowDays),
		counts: make(map[string]int, EngagementWindowDays),
	}
	for i := EngagementWindowDays - 1; i >= 0; i-- {
		date := now.AddDate(0, 0, -i).Format(dateKeyLayout)
		w.dates = append(w.dates, date)
		w.counts[date] = 0
	}
	return w
}

// Observe records a submission event. Only submitted work with a timestamp
// that parses and falls inside the window moves a counter.
func (w *EngagementWindow) Observe(sub models.Submission) {
	if !sub.State.Submitted() {
		return
	}
	ts, ok := parseTimestamp(sub.UpdateTime)
	if !ok {
		return
	}
	date := ts.In(w.loc).Format(dateKeyLayout)
	if _, tracked := w.counts[date]; tracked {
		w.counts[date]++
	}
}

// Points renders the window oldest-first with every day present.
func (w *EngagementWindow) Points() []models.EngagementDataPoint {
	points := make([]models.EngagementDataPoint, 0, len(w.dates))
	for _, date := range w.dates {
		day, _ := time.Parse(dateKeyLayout, date)
		points = append(points, models.EngagementDataPoint{
			Date:          date,
			Submissions:   w.counts[date],
			FormattedDate: day.Format("Jan 2"),
		})
	}
	return points
}

// MergeEngagement sums several engagement series day by day. The result is
// ordered by date ascending and contains the union of all input days.
func MergeEngagement(series ...[]models.EngagementDataPoint) []models.EngagementDataPoint {
	merged := make(map[string]models.EngagementDataPoint)
	for _, s := range series {
		for _, point := range s {
			existing, ok := merged[point.Date]
			if !ok {
				merged[point.Date] = point
				continue
			}
			existing.Submissions += point.Submissions
			merged[point.Date] = existing
		}
	}
	out := make([]models.EngagementDataPoint, 0, len(merged))
	for _, point := range merged {
		out = append(out, point)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
