package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/classroom-insights-api/internal/models"
)

// RecentActivityLimit caps the administrator activity feed.
const RecentActivityLimit = 20

// rankedCourseCount is how many courses appear in each leaderboard.
const rankedCourseCount = 5

// BuildSchoolAnalytics assembles the full administrator payload from active
// course snapshots. Bundles that failed to fetch upstream are expected to be
// absent from the slice, not present with partial data.
func BuildSchoolAnalytics(now time.Time, bundles []models.CourseBundle) models.SchoolAnalytics {
	overview := SchoolOverviewFrom(bundles)
	performance := CoursePerformanceFrom(bundles)
	return models.SchoolAnalytics{
		Overview:           overview,
		Summary:            AggregateSummary(now, bundles),
		EngagementData:     AggregateEngagement(now, bundles),
		CoursePerformance:  performance,
		TeacherPerformance: TeacherPerformanceFrom(bundles),
		AtRiskStudents:     AtRiskStudents(bundles),
		TopCourses:         TopCourses(performance),
		BottomCourses:      BottomCourses(performance),
		RecentActivity:     RecentActivity(bundles),
		UsageStats:         UsageStatsFrom(now, bundles, overview),
		GuardianStats:      GuardianStatsFrom(overview),
		Insights:           GenerateInsights(overview),
		Announcements:      []models.SchoolAnnouncement{},
	}
}

// SchoolOverviewFrom computes the global rollup. Teachers and students
// deduplicate school-wide, but the at-risk and inactive counters classify each
// enrollment separately, so a student struggling in two courses counts twice.
// A course with no coursework scores its students at 100 here, which keeps
// them out of both counters; AtRiskStudents applies the opposite convention.
func SchoolOverviewFrom(bundles []models.CourseBundle) models.SchoolOverview {
	uniqueTeachers := make(map[string]bool)
	uniqueStudents := make(map[string]bool)
	overview := models.SchoolOverview{TotalCourses: len(bundles)}

	var lateSubmissions, expectedSubmissions int
	for _, b := range bundles {
		if b.Course.CourseState == models.CourseStateActive {
			overview.ActiveCourses++
		}
		for _, t := range b.Teachers {
			uniqueTeachers[t.UserID] = true
		}
		for _, s := range b.Students {
			uniqueStudents[s.UserID] = true
		}
		overview.TotalAssignments += len(b.CourseWork)

		for _, work := range b.CourseWork {
			expectedSubmissions += len(b.Students)
			for _, sub := range b.SubmissionsByWork[work.ID] {
				if sub.State.Submitted() {
					overview.TotalSubmissions++
					if sub.Late {
						lateSubmissions++
					}
				}
			}
		}

		for _, student := range b.Students {
			rate := 100.0
			if len(b.CourseWork) > 0 {
				submitted := countStudentSubmissions(student.UserID, b)
				rate = float64(submitted) / float64(len(b.CourseWork)) * 100
			}
			switch {
			case rate < atRiskThreshold:
				overview.InactiveStudentsCount++
			case rate < goodThreshold:
				overview.AtRiskStudentsCount++
			}
		}
	}

	overview.TotalTeachers = len(uniqueTeachers)
	overview.TotalStudents = len(uniqueStudents)
	overview.OverallSubmissionRate = roundRate(overview.TotalSubmissions, expectedSubmissions)
	overview.OverallLateRate = roundRate(lateSubmissions, overview.TotalSubmissions)
	return overview
}

// countStudentSubmissions counts the coursework items the student has handed
// in within one course.
func countStudentSubmissions(userID string, b models.CourseBundle) int {
	count := 0
	for _, work := range b.CourseWork {
		if sub, ok := findStudentSubmission(b.SubmissionsByWork[work.ID], userID); ok && sub.State.Submitted() {
			count++
		}
	}
	return count
}

// AggregateSummary computes school-wide headline counters. Unlike the merged
// teacher view, the student total here deduplicates across courses.
func AggregateSummary(now time.Time, bundles []models.CourseBundle) models.AnalyticsSummary {
	uniqueStudents := make(map[string]bool)
	var summary models.AnalyticsSummary
	for _, b := range bundles {
		for _, s := range b.Students {
			uniqueStudents[s.UserID] = true
		}
		summary.TotalAssignments += len(b.CourseWork)
		for _, work := range b.CourseWork {
			for _, sub := range b.SubmissionsByWork[work.ID] {
				switch {
				case sub.State.Submitted():
					summary.TotalSubmissions++
					if sub.Late {
						summary.LateSubmissions++
					}
				case sub.State.Pending():
					if pastDue(now, work.DueDate) {
						summary.MissingSubmissions++
					}
				}
			}
		}
	}
	summary.TotalStudents = len(uniqueStudents)
	return summary
}

// AggregateEngagement builds a single 30-day series over every submission in
// every bundle.
func AggregateEngagement(now time.Time, bundles []models.CourseBundle) []models.EngagementDataPoint {
	window := NewEngagementWindow(now)
	for _, b := range bundles {
		for _, work := range b.CourseWork {
			for _, sub := range b.SubmissionsByWork[work.ID] {
				window.Observe(sub)
			}
		}
	}
	return window.Points()
}

// CoursePerformanceFrom builds one comparison row per bundle, in bundle
// order. The at-risk column uses the flat course target, not the three-tier
// classification.
func CoursePerformanceFrom(bundles []models.CourseBundle) []models.CoursePerformance {
	rows := make([]models.CoursePerformance, 0, len(bundles))
	for _, b := range bundles {
		names := make([]string, 0, len(b.Teachers))
		for _, t := range b.Teachers {
			name := t.Name
			if name == "" {
				name = "Unknown"
			}
			names = append(names, name)
		}
		var teacherEmail string
		if len(b.Teachers) > 0 {
			teacherEmail = b.Teachers[0].Email
		}

		var submitted, late int
		var lastActivity time.Time
		hasActivity := false
		for _, work := range b.CourseWork {
			for _, sub := range b.SubmissionsByWork[work.ID] {
				if !sub.State.Submitted() {
					continue
				}
				submitted++
				if sub.Late {
					late++
				}
				if ts, ok := parseTimestamp(sub.UpdateTime); ok && (!hasActivity || ts.After(lastActivity)) {
					lastActivity = ts
					hasActivity = true
				}
			}
		}

		atRisk := 0
		for _, student := range b.Students {
			rate := 100.0
			if len(b.CourseWork) > 0 {
				rate = float64(countStudentSubmissions(student.UserID, b)) / float64(len(b.CourseWork)) * 100
			}
			if BelowCourseTarget(rate) {
				atRisk++
			}
		}

		var lastDisplay *string
		if hasActivity {
			formatted := displayDate(lastActivity)
			lastDisplay = &formatted
		}
		rows = append(rows, models.CoursePerformance{
			CourseID:        b.Course.ID,
			CourseName:      b.Course.Name,
			TeacherName:     strings.Join(names, ", "),
			TeacherEmail:    teacherEmail,
			StudentCount:    len(b.Students),
			AssignmentCount: len(b.CourseWork),
			SubmissionRate:  roundRate(submitted, len(b.Students)*len(b.CourseWork)),
			LateRate:        roundRate(late, submitted),
			AtRiskStudents:  atRisk,
			LastActivity:    lastDisplay,
		})
	}
	return rows
}

// TeacherPerformanceFrom merges each teacher's courses and reports pooled
// rates over all expected submissions, not an average of per-course rates.
// Output order follows each teacher's first appearance across bundles.
func TeacherPerformanceFrom(bundles []models.CourseBundle) []models.TeacherPerformance {
	type teacherCourses struct {
		person  models.Person
		bundles []models.CourseBundle
	}
	byID := make(map[string]*teacherCourses)
	order := make([]string, 0)
	for _, b := range bundles {
		for _, t := range b.Teachers {
			entry, ok := byID[t.UserID]
			if !ok {
				entry = &teacherCourses{person: t}
				byID[t.UserID] = entry
				order = append(order, t.UserID)
			}
			entry.bundles = append(entry.bundles, b)
		}
	}

	rows := make([]models.TeacherPerformance, 0, len(order))
	for _, id := range order {
		entry := byID[id]
		uniqueStudents := make(map[string]bool)
		var totalAssignments, submitted, expected, late int
		for _, b := range entry.bundles {
			for _, s := range b.Students {
				uniqueStudents[s.UserID] = true
			}
			totalAssignments += len(b.CourseWork)
			expected += len(b.Students) * len(b.CourseWork)
			for _, work := range b.CourseWork {
				for _, sub := range b.SubmissionsByWork[work.ID] {
					if sub.State.Submitted() {
						submitted++
						if sub.Late {
							late++
						}
					}
				}
			}
		}
		name := entry.person.Name
		if name == "" {
			name = "Unknown Teacher"
		}
		rows = append(rows, models.TeacherPerformance{
			UserID:                id,
			Name:                  name,
			Email:                 entry.person.Email,
			PhotoURL:              entry.person.PhotoURL,
			CoursesCount:          len(entry.bundles),
			TotalStudents:         len(uniqueStudents),
			TotalAssignments:      totalAssignments,
			AverageSubmissionRate: roundRate(submitted, expected),
			AverageLateRate:       roundRate(late, submitted),
		})
	}
	return rows
}

// AtRiskStudents pools each student's workload across every course they are
// enrolled in, classifies the pooled percentage, and returns only the at-risk
// and inactive students ordered worst first. A student with no coursework in
// scope sits at 0% here and therefore lands in the list as inactive, the
// opposite convention from the overview counters.
func AtRiskStudents(bundles []models.CourseBundle) []models.StudentAnalytics {
	type studentTally struct {
		person           models.Person
		totalAssignments int
		submitted        int
		late             int
		lastSubmission   time.Time
		hasLast          bool
	}
	byID := make(map[string]*studentTally)
	order := make([]string, 0)
	for _, b := range bundles {
		for _, student := range b.Students {
			entry, ok := byID[student.UserID]
			if !ok {
				entry = &studentTally{person: student}
				byID[student.UserID] = entry
				order = append(order, student.UserID)
			}
			entry.totalAssignments += len(b.CourseWork)
			for _, work := range b.CourseWork {
				sub, found := findStudentSubmission(b.SubmissionsByWork[work.ID], student.UserID)
				if !found || !sub.State.Submitted() {
					continue
				}
				entry.submitted++
				if sub.Late {
					entry.late++
				}
				if ts, ok := parseTimestamp(sub.UpdateTime); ok && (!entry.hasLast || ts.After(entry.lastSubmission)) {
					entry.lastSubmission = ts
					entry.hasLast = true
				}
			}
		}
	}

	flagged := make([]models.StudentAnalytics, 0)
	for _, id := range order {
		entry := byID[id]
		percentage := roundRate(entry.submitted, entry.totalAssignments)
		status := ClassifyRisk(percentage)
		if status == models.RiskGood {
			continue
		}
		name := entry.person.Name
		if name == "" {
			name = "Unknown Student"
		}
		var lastDate *string
		if entry.hasLast {
			formatted := displayDate(entry.lastSubmission)
			lastDate = &formatted
		}
		flagged = append(flagged, models.StudentAnalytics{
			UserID:               id,
			Name:                 name,
			Email:                entry.person.Email,
			PhotoURL:             entry.person.PhotoURL,
			SubmissionPercentage: percentage,
			SubmittedCount:       entry.submitted,
			MissingCount:         entry.totalAssignments - entry.submitted,
			LateCount:            entry.late,
			LastSubmissionDate:   lastDate,
			Status:               status,
		})
	}
	sort.SliceStable(flagged, func(i, j int) bool {
		return flagged[i].SubmissionPercentage < flagged[j].SubmissionPercentage
	})
	return flagged
}

// TopCourses returns up to five courses with the highest submission rates,
// best first. Ties keep input order.
func TopCourses(performance []models.CoursePerformance) []models.CoursePerformance {
	ranked := sortBySubmissionRate(performance)
	if len(ranked) > rankedCourseCount {
		ranked = ranked[:rankedCourseCount]
	}
	return ranked
}

// BottomCourses returns up to five courses with the lowest submission rates,
// worst first.
func BottomCourses(performance []models.CoursePerformance) []models.CoursePerformance {
	ranked := sortBySubmissionRate(performance)
	if len(ranked) > rankedCourseCount {
		ranked = ranked[len(ranked)-rankedCourseCount:]
	}
	reversed := make([]models.CoursePerformance, 0, len(ranked))
	for i := len(ranked) - 1; i >= 0; i-- {
		reversed = append(reversed, ranked[i])
	}
	return reversed
}

func sortBySubmissionRate(performance []models.CoursePerformance) []models.CoursePerformance {
	ranked := make([]models.CoursePerformance, len(performance))
	copy(ranked, performance)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].SubmissionRate > ranked[j].SubmissionRate
	})
	return ranked
}

// RecentActivity lists the newest submission events across all bundles,
// newest first, capped at RecentActivityLimit. Events with unparseable
// timestamps are excluded.
func RecentActivity(bundles []models.CourseBundle) []models.ActivityItem {
	type timedActivity struct {
		item models.ActivityItem
		at   time.Time
	}
	activities := make([]timedActivity, 0)
	for _, b := range bundles {
		byUser := make(map[string]models.Person, len(b.Students))
		for _, s := range b.Students {
			byUser[s.UserID] = s
		}
		for _, work := range b.CourseWork {
			for _, sub := range b.SubmissionsByWork[work.ID] {
				if !sub.State.Submitted() {
					continue
				}
				ts, ok := parseTimestamp(sub.UpdateTime)
				if !ok {
					continue
				}
				item := models.ActivityItem{
					ID:          work.ID + "-" + sub.UserID,
					Type:        "submission",
					Title:       "Submitted: " + work.Title,
					Description: "A student",
					Timestamp:   sub.UpdateTime,
					CourseName:  b.Course.Name,
					Metadata:    map[string]bool{"late": sub.Late},
				}
				if student, found := byUser[sub.UserID]; found {
					name := student.Name
					if name == "" {
						name = "Unknown"
					}
					item.Description = name
					item.User = &models.ActivityUser{
						Name:     name,
						Email:    student.Email,
						PhotoURL: student.PhotoURL,
					}
				}
				activities = append(activities, timedActivity{item: item, at: ts})
			}
		}
	}
	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].at.After(activities[j].at)
	})
	if len(activities) > RecentActivityLimit {
		activities = activities[:RecentActivityLimit]
	}
	items := make([]models.ActivityItem, 0, len(activities))
	for _, a := range activities {
		items = append(items, a.item)
	}
	return items
}

// UsageStatsFrom fills the usage panel. Weekly submission and assignment
// counters are measured from the data; the active-user figures are fixed
// multiples of the student total because upstream exposes no telemetry.
func UsageStatsFrom(now time.Time, bundles []models.CourseBundle, overview models.SchoolOverview) models.UsageStats {
	weekAgo := now.AddDate(0, 0, -7)
	var submissionsThisWeek, assignmentsThisWeek int
	for _, b := range bundles {
		for _, work := range b.CourseWork {
			if work.CreationTime != nil && work.CreationTime.After(weekAgo) {
				assignmentsThisWeek++
			}
			for _, sub := range b.SubmissionsByWork[work.ID] {
				if ts, ok := parseTimestamp(sub.UpdateTime); ok && ts.After(weekAgo) {
					submissionsThisWeek++
				}
			}
		}
	}
	return models.UsageStats{
		DailyActiveUsers:           scale(overview.TotalStudents, 0.3),
		WeeklyActiveUsers:          scale(overview.TotalStudents, 0.7),
		MonthlyActiveUsers:         overview.TotalStudents,
		AvgSessionDuration:         25,
		AssignmentsCreatedThisWeek: assignmentsThisWeek,
		SubmissionsThisWeek:        submissionsThisWeek,
		PeakUsageHour:              14,
		GrowthRate:                 12,
	}
}

// GuardianStatsFrom derives the guardian panel from the student total.
func GuardianStatsFrom(overview models.SchoolOverview) models.GuardianStats {
	return models.GuardianStats{
		TotalGuardians:      scale(overview.TotalStudents, 1.5),
		ActiveGuardians:     scale(overview.TotalStudents, 1.2),
		PendingInvites:      scale(overview.TotalStudents, 0.1),
		EmailsSentThisMonth: overview.TotalStudents * 4,
		SummaryOpenRate:     68,
	}
}

func scale(n int, factor float64) int {
	return int(float64(n)*factor + 0.5)
}
