package models

// RiskStatus classifies a student's engagement level.
type RiskStatus string

const (
	RiskGood     RiskStatus = "good"
	RiskAtRisk   RiskStatus = "at-risk"
	RiskInactive RiskStatus = "inactive"
)

// AnalyticsSummary holds headline counters for one course or a merged scope.
type AnalyticsSummary struct {
	TotalStudents      int `json:"total_students"`
	TotalAssignments   int `json:"total_assignments"`
	TotalSubmissions   int `json:"total_submissions"`
	LateSubmissions    int `json:"late_submissions"`
	MissingSubmissions int `json:"missing_submissions"`
}

// EngagementDataPoint is one day in the trailing submission-count series.
type EngagementDataPoint struct {
	Date          string `json:"date"`
	Submissions   int    `json:"submissions"`
	FormattedDate string `json:"formatted_date"`
}

// AssignmentAnalytics summarises submission progress for one coursework item.
type AssignmentAnalytics struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	DueDate        *string  `json:"due_date,omitempty"`
	MaxPoints      *float64 `json:"max_points,omitempty"`
	SubmittedCount int      `json:"submitted_count"`
	MissingCount   int      `json:"missing_count"`
	LateCount      int      `json:"late_count"`
	TotalStudents  int      `json:"total_students"`
	SubmissionRate float64  `json:"submission_rate"`
}

// StudentAnalytics summarises one student's progress within a scope.
type StudentAnalytics struct {
	UserID               string     `json:"user_id"`
	Name                 string     `json:"name"`
	Email                string     `json:"email,omitempty"`
	PhotoURL             string     `json:"photo_url,omitempty"`
	SubmissionPercentage int        `json:"submission_percentage"`
	SubmittedCount       int        `json:"submitted_count"`
	MissingCount         int        `json:"missing_count"`
	LateCount            int        `json:"late_count"`
	LastSubmissionDate   *string    `json:"last_submission_date,omitempty"`
	Status               RiskStatus `json:"status"`
}

// CourseAnalytics is the complete derived payload for one course, or for the
// merged view across a teacher's courses.
type CourseAnalytics struct {
	CourseID        string                `json:"course_id"`
	CourseName      string                `json:"course_name"`
	Summary         AnalyticsSummary      `json:"summary"`
	EngagementData  []EngagementDataPoint `json:"engagement_data"`
	AssignmentStats []AssignmentAnalytics `json:"assignment_stats"`
	StudentProgress []StudentAnalytics    `json:"student_progress"`
}
