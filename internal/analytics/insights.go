package analytics

import (
	"fmt"

	"github.com/noah-isme/classroom-insights-api/internal/models"
)

// lowSubmissionRateThreshold triggers the low-rate warning insight.
const lowSubmissionRateThreshold = 60

// GenerateInsights turns overview aggregates into qualitative findings.
// Output is deterministic: IDs are stable slugs, rules fire in a fixed order,
// and the info summary is always present. The high-rate and low-rate rules
// are mutually exclusive.
func GenerateInsights(overview models.SchoolOverview) []models.ClassroomInsight {
	insights := make([]models.ClassroomInsight, 0, 4)

	if overview.OverallSubmissionRate >= goodThreshold {
		change := 5
		insights = append(insights, models.ClassroomInsight{
			ID:          "submission-rate-high",
			Type:        models.InsightPositive,
			Title:       "Excellent Submission Rate",
			Description: "Your school maintains a high submission rate across all courses.",
			Metric:      fmt.Sprintf("%d%% completion", overview.OverallSubmissionRate),
			Change:      &change,
		})
	} else if overview.OverallSubmissionRate < lowSubmissionRateThreshold {
		change := -8
		insights = append(insights, models.ClassroomInsight{
			ID:          "submission-rate-low",
			Type:        models.InsightWarning,
			Title:       "Low Submission Rate",
			Description: "Consider implementing engagement strategies to improve assignment completion.",
			Metric:      fmt.Sprintf("%d%% completion", overview.OverallSubmissionRate),
			Change:      &change,
		})
	}

	if float64(overview.AtRiskStudentsCount) > float64(overview.TotalStudents)*0.2 {
		insights = append(insights, models.ClassroomInsight{
			ID:          "at-risk-count",
			Type:        models.InsightWarning,
			Title:       "High At-Risk Student Count",
			Description: fmt.Sprintf("%d students need additional support to stay on track.", overview.AtRiskStudentsCount),
		})
	}

	insights = append(insights, models.ClassroomInsight{
		ID:          "community-summary",
		Type:        models.InsightInfo,
		Title:       "Active Learning Community",
		Description: fmt.Sprintf("%d teachers actively managing %d courses.", overview.TotalTeachers, overview.TotalCourses),
	})

	return insights
}
