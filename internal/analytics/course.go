package analytics

import (
	"time"

	"github.com/noah-isme/classroom-insights-api/internal/models"
)

// MergedCourseID labels the synthetic course produced by MergeCourseAnalytics.
const MergedCourseID = "all"

// BuildCourseAnalytics derives the complete analytics payload for one course
// snapshot. The reference time anchors the engagement window and decides
// whether unsubmitted work counts as missing.
func BuildCourseAnalytics(now time.Time, bundle models.CourseBundle) models.CourseAnalytics {
	window := NewEngagementWindow(now)
	for _, work := range bundle.CourseWork {
		for _, sub := range bundle.SubmissionsByWork[work.ID] {
			window.Observe(sub)
		}
	}
	return models.CourseAnalytics{
		CourseID:        bundle.Course.ID,
		CourseName:      bundle.Course.Name,
		Summary:         SummarizeCourse(now, bundle),
		EngagementData:  window.Points(),
		AssignmentStats: AssignmentStats(bundle),
		StudentProgress: StudentProgress(bundle),
	}
}

// SummarizeCourse computes the headline counters for one course. A submission
// is missing when it is still pending and the coursework's due date, taken as
// local midnight, has already passed.
func SummarizeCourse(now time.Time, bundle models.CourseBundle) models.AnalyticsSummary {
	summary := models.AnalyticsSummary{
		TotalStudents:    len(bundle.Students),
		TotalAssignments: len(bundle.CourseWork),
	}
	for _, work := range bundle.CourseWork {
		for _, sub := range bundle.SubmissionsByWork[work.ID] {
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
	return summary
}

// findStudentSubmission returns the first submission belonging to the user.
// Upstream returns at most one submission per student per coursework.
func findStudentSubmission(subs []models.Submission, userID string) (models.Submission, bool) {
	for _, sub := range subs {
		if sub.UserID == userID {
			return sub, true
		}
	}
	return models.Submission{}, false
}

func pastDue(now time.Time, due *models.DueDate) bool {
	if due == nil || due.IsZero() {
		return false
	}
	return now.After(due.Midnight(now.Location()))
}

// AssignmentStats breaks submission progress down per coursework item, in the
// upstream coursework order. The submission rate stays fractional here; the
// admin roll-ups round theirs.
func AssignmentStats(bundle models.CourseBundle) []models.AssignmentAnalytics {
	totalStudents := len(bundle.Students)
	stats := make([]models.AssignmentAnalytics, 0, len(bundle.CourseWork))
	for _, work := range bundle.CourseWork {
		var submitted, late int
		for _, sub := range bundle.SubmissionsByWork[work.ID] {
			if sub.State.Submitted() {
				submitted++
				if sub.Late {
					late++
				}
			}
		}
		var rate float64
		if totalStudents > 0 {
			rate = float64(submitted) / float64(totalStudents) * 100
		}
		var dueDisplay *string
		if work.DueDate != nil && !work.DueDate.IsZero() {
			formatted := displayDate(work.DueDate.Midnight(time.UTC))
			dueDisplay = &formatted
		}
		stats = append(stats, models.AssignmentAnalytics{
			ID:             work.ID,
			Title:          work.Title,
			DueDate:        dueDisplay,
			MaxPoints:      work.MaxPoints,
			SubmittedCount: submitted,
			MissingCount:   totalStudents - submitted,
			LateCount:      late,
			TotalStudents:  totalStudents,
			SubmissionRate: rate,
		})
	}
	return stats
}

// StudentProgress computes per-student counters and risk status for one
// course, in roster order. A student with no coursework in scope sits at 0%
// and classifies as inactive.
func StudentProgress(bundle models.CourseBundle) []models.StudentAnalytics {
	totalAssignments := len(bundle.CourseWork)
	progress := make([]models.StudentAnalytics, 0, len(bundle.Students))
	for _, student := range bundle.Students {
		var submitted, late int
		var lastSubmission time.Time
		hasLast := false
		for _, work := range bundle.CourseWork {
			sub, ok := findStudentSubmission(bundle.SubmissionsByWork[work.ID], student.UserID)
			if !ok || !sub.State.Submitted() {
				continue
			}
			submitted++
			if sub.Late {
				late++
			}
			if ts, ok := parseTimestamp(sub.UpdateTime); ok && (!hasLast || ts.After(lastSubmission)) {
				lastSubmission = ts
				hasLast = true
			}
		}
		percentage := roundRate(submitted, totalAssignments)
		var lastDate *string
		if hasLast {
			formatted := displayDate(lastSubmission)
			lastDate = &formatted
		}
		progress = append(progress, models.StudentAnalytics{
			UserID:               student.UserID,
			Name:                 student.Name,
			Email:                student.Email,
			PhotoURL:             student.PhotoURL,
			SubmissionPercentage: percentage,
			SubmittedCount:       submitted,
			MissingCount:         totalAssignments - submitted,
			LateCount:            late,
			LastSubmissionDate:   lastDate,
			Status:               ClassifyRisk(percentage),
		})
	}
	return progress
}

// MergeCourseAnalytics folds per-course payloads into a single cross-course
// view. Summaries sum field-wise, engagement series merge day by day,
// assignment stats concatenate, and students deduplicate by user ID keeping
// the first occurrence.
func MergeCourseAnalytics(items []models.CourseAnalytics) models.CourseAnalytics {
	merged := models.CourseAnalytics{
		CourseID:   MergedCourseID,
		CourseName: "All Courses",
	}
	engagement := make([][]models.EngagementDataPoint, 0, len(items))
	seen := make(map[string]bool)
	for _, item := range items {
		merged.Summary.TotalStudents += item.Summary.TotalStudents
		merged.Summary.TotalAssignments += item.Summary.TotalAssignments
		merged.Summary.TotalSubmissions += item.Summary.TotalSubmissions
		merged.Summary.LateSubmissions += item.Summary.LateSubmissions
		merged.Summary.MissingSubmissions += item.Summary.MissingSubmissions
		engagement = append(engagement, item.EngagementData)
		merged.AssignmentStats = append(merged.AssignmentStats, item.AssignmentStats...)
		for _, student := range item.StudentProgress {
			if seen[student.UserID] {
				continue
			}
			seen[student.UserID] = true
			merged.StudentProgress = append(merged.StudentProgress, student)
		}
	}
	merged.EngagementData = MergeEngagement(engagement...)
	if merged.AssignmentStats == nil {
		merged.AssignmentStats = []models.AssignmentAnalytics{}
	}
	if merged.StudentProgress == nil {
		merged.StudentProgress = []models.StudentAnalytics{}
	}
	return merged
}
