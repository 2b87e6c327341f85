package analytics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-insights-api/internal/models"
)

func twoStudentBundle() models.CourseBundle {
	return models.CourseBundle{
		Course: models.Course{ID: "c1", Name: "Algebra", CourseState: models.CourseStateActive},
		CourseWork: []models.CourseWork{
			{ID: "w1", CourseID: "c1", Title: "Worksheet 1"},
			{ID: "w2", CourseID: "c1", Title: "Worksheet 2"},
		},
		Students: []models.Person{
			{UserID: "sA", Name: "Ada Lovelace"},
			{UserID: "sB", Name: "Blaise Pascal"},
		},
		Teachers: []models.Person{{UserID: "t1", Name: "Grace Hopper", Email: "grace@school.edu"}},
		SubmissionsByWork: map[string][]models.Submission{
			"w1": {
				{ID: "s1", CourseWorkID: "w1", UserID: "sA", State: models.SubmissionStateTurnedIn, UpdateTime: "2024-03-10T09:00:00Z"},
				{ID: "s2", CourseWorkID: "w1", UserID: "sB", State: models.SubmissionStateNew},
			},
			"w2": {
				{ID: "s3", CourseWorkID: "w2", UserID: "sA", State: models.SubmissionStateTurnedIn, Late: true, UpdateTime: "2024-03-12T15:00:00Z"},
				{ID: "s4", CourseWorkID: "w2", UserID: "sB", State: models.SubmissionStateCreated},
			},
		},
	}
}

func TestBuildCourseAnalyticsTwoStudents(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	got := BuildCourseAnalytics(now, twoStudentBundle())

	assert.Equal(t, "c1", got.CourseID)
	assert.Equal(t, "Algebra", got.CourseName)

	assert.Equal(t, 2, got.Summary.TotalStudents)
	assert.Equal(t, 2, got.Summary.TotalAssignments)
	assert.Equal(t, 2, got.Summary.TotalSubmissions)
	assert.Equal(t, 1, got.Summary.LateSubmissions)
	// Neither worksheet has a due date, so nothing counts as missing.
	assert.Equal(t, 0, got.Summary.MissingSubmissions)

	require.Len(t, got.StudentProgress, 2)
	ada := got.StudentProgress[0]
	assert.Equal(t, "sA", ada.UserID)
	assert.Equal(t, 2, ada.SubmittedCount)
	assert.Equal(t, 0, ada.MissingCount)
	assert.Equal(t, 1, ada.LateCount)
	assert.Equal(t, 100, ada.SubmissionPercentage)
	assert.Equal(t, models.RiskGood, ada.Status)
	require.NotNil(t, ada.LastSubmissionDate)
	assert.Equal(t, "Mar 12, 2024", *ada.LastSubmissionDate)

	blaise := got.StudentProgress[1]
	assert.Equal(t, "sB", blaise.UserID)
	assert.Equal(t, 0, blaise.SubmittedCount)
	assert.Equal(t, 2, blaise.MissingCount)
	assert.Equal(t, 0, blaise.LateCount)
	assert.Equal(t, 0, blaise.SubmissionPercentage)
	assert.Equal(t, models.RiskInactive, blaise.Status)
	assert.Nil(t, blaise.LastSubmissionDate)

	require.Len(t, got.AssignmentStats, 2)
	for _, stat := range got.AssignmentStats {
		assert.Equal(t, 1, stat.SubmittedCount)
		assert.Equal(t, 1, stat.MissingCount)
		assert.Equal(t, 2, stat.TotalStudents)
		assert.InDelta(t, 50, stat.SubmissionRate, 0.001)
		assert.LessOrEqual(t, stat.LateCount, stat.SubmittedCount)
	}
}

func TestSummarizeCourseMissingPastDue(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	bundle := models.CourseBundle{
		Course:     models.Course{ID: "c1", Name: "History"},
		CourseWork: []models.CourseWork{{ID: "w1", CourseID: "c1", Title: "Essay", DueDate: &models.DueDate{Year: 2024, Month: 3, Day: 10}}},
		Students:   []models.Person{{UserID: "s1", Name: "Student"}},
		SubmissionsByWork: map[string][]models.Submission{
			"w1": {{ID: "sub1", CourseWorkID: "w1", UserID: "s1", State: models.SubmissionStateNew}},
		},
	}

	summary := SummarizeCourse(now, bundle)
	assert.Equal(t, 1, summary.MissingSubmissions)
	assert.Equal(t, 0, summary.TotalSubmissions)
}

func TestSummarizeCourseDueDateNotPassed(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		due  *models.DueDate
	}{
		{name: "future due date", due: &models.DueDate{Year: 2024, Month: 4, Day: 1}},
		{name: "due today counts from next midnight", due: &models.DueDate{Year: 2024, Month: 3, Day: 16}},
		{name: "no due date", due: nil},
		{name: "zero due date", due: &models.DueDate{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bundle := models.CourseBundle{
				CourseWork: []models.CourseWork{{ID: "w1", Title: "Quiz", DueDate: tc.due}},
				Students:   []models.Person{{UserID: "s1"}},
				SubmissionsByWork: map[string][]models.Submission{
					"w1": {{UserID: "s1", State: models.SubmissionStateNew}},
				},
			}
			assert.Equal(t, 0, SummarizeCourse(now, bundle).MissingSubmissions)
		})
	}
}

func TestAssignmentStatsEmptyRoster(t *testing.T) {
	bundle := models.CourseBundle{
		CourseWork:        []models.CourseWork{{ID: "w1", Title: "Quiz"}},
		SubmissionsByWork: map[string][]models.Submission{},
	}
	stats := AssignmentStats(bundle)
	require.Len(t, stats, 1)
	assert.Zero(t, stats[0].SubmissionRate)
	assert.Zero(t, stats[0].TotalStudents)
}

func TestMergeCourseAnalyticsDeduplicatesStudents(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	first := BuildCourseAnalytics(now, twoStudentBundle())

	second := twoStudentBundle()
	second.Course = models.Course{ID: "c2", Name: "Geometry"}

	merged := MergeCourseAnalytics([]models.CourseAnalytics{first, BuildCourseAnalytics(now, second)})

	assert.Equal(t, MergedCourseID, merged.CourseID)
	assert.Equal(t, "All Courses", merged.CourseName)
	// Summary counters sum per enrollment.
	assert.Equal(t, 4, merged.Summary.TotalStudents)
	assert.Equal(t, 4, merged.Summary.TotalAssignments)
	assert.Equal(t, 4, merged.Summary.TotalSubmissions)
	// Students deduplicate keeping the first occurrence.
	require.Len(t, merged.StudentProgress, 2)
	assert.Equal(t, "sA", merged.StudentProgress[0].UserID)
	assert.Equal(t, "sB", merged.StudentProgress[1].UserID)
	assert.Len(t, merged.AssignmentStats, 4)

	require.Len(t, merged.EngagementData, EngagementWindowDays)
	counts := make(map[string]int)
	for _, p := range merged.EngagementData {
		counts[p.Date] = p.Submissions
	}
	assert.Equal(t, 2, counts["2024-03-10"])
	assert.Equal(t, 2, counts["2024-03-12"])
}

func TestMergeCourseAnalyticsEmptyInput(t *testing.T) {
	merged := MergeCourseAnalytics(nil)
	assert.Equal(t, MergedCourseID, merged.CourseID)
	assert.Empty(t, merged.EngagementData)
	assert.NotNil(t, merged.AssignmentStats)
	assert.NotNil(t, merged.StudentProgress)
}

func TestBuildCourseAnalyticsIdempotent(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	first, err := json.Marshal(BuildCourseAnalytics(now, twoStudentBundle()))
	require.NoError(t, err)
	second, err := json.Marshal(BuildCourseAnalytics(now, twoStudentBundle()))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
