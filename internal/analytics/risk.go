package analytics

import "github.com/noah-isme/classroom-insights-api/internal/models"

// Risk thresholds on a student's submission percentage.
const (
	goodThreshold   = 80
	atRiskThreshold = 50
)

// courseTargetRate is the per-course bar used by the admin course table.
// That table uses a two-tier policy (under 80 counts as at risk, no
// inactive tier), distinct from the three-tier ClassifyRisk below. Both
// policies are intentional and consumed by different views.
const courseTargetRate = 80

// ClassifyRisk maps a submission percentage to a risk status: 80 and above
// is good, 50 to 79 is at risk, everything below is inactive.
func ClassifyRisk(submissionPercentage int) models.RiskStatus {
	switch {
	case submissionPercentage >= goodThreshold:
		return models.RiskGood
	case submissionPercentage >= atRiskThreshold:
		return models.RiskAtRisk
	default:
		return models.RiskInactive
	}
}

// BelowCourseTarget reports whether a per-course submission rate falls under
// the course target used by the admin performance table.
func BelowCourseTarget(rate float64) bool {
	return rate < courseTargetRate
}
