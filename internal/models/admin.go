package models

import "time"

// SchoolOverview is the global rollup across all active courses.
type SchoolOverview struct {
	TotalCourses          int `json:"total_courses"`
	ActiveCourses         int `json:"active_courses"`
	TotalTeachers         int `json:"total_teachers"`
	TotalStudents         int `json:"total_students"`
	TotalAssignments      int `json:"total_assignments"`
	TotalSubmissions      int `json:"total_submissions"`
	OverallSubmissionRate int `json:"overall_submission_rate"`
	OverallLateRate       int `json:"overall_late_rate"`
	AtRiskStudentsCount   int `json:"at_risk_students_count"`
	InactiveStudentsCount int `json:"inactive_students_count"`
}

// CoursePerformance is one row in the per-course comparison table.
type CoursePerformance struct {
	CourseID        string  `json:"course_id"`
	CourseName      string  `json:"course_name"`
	TeacherName     string  `json:"teacher_name"`
	TeacherEmail    string  `json:"teacher_email,omitempty"`
	StudentCount    int     `json:"student_count"`
	AssignmentCount int     `json:"assignment_count"`
	SubmissionRate  int     `json:"submission_rate"`
	LateRate        int     `json:"late_rate"`
	AtRiskStudents  int     `json:"at_risk_students"`
	LastActivity    *string `json:"last_activity,omitempty"`
}

// TeacherPerformance merges every course a teacher appears in.
type TeacherPerformance struct {
	UserID                string `json:"user_id"`
	Name                  string `json:"name"`
	Email                 string `json:"email,omitempty"`
	PhotoURL              string `json:"photo_url,omitempty"`
	CoursesCount          int    `json:"courses_count"`
	TotalStudents         int    `json:"total_students"`
	TotalAssignments      int    `json:"total_assignments"`
	AverageSubmissionRate int    `json:"average_submission_rate"`
	AverageLateRate       int    `json:"average_late_rate"`
}

// ActivityItem is one entry in the recent submission activity feed.
type ActivityItem struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Timestamp   string          `json:"timestamp"`
	User        *ActivityUser   `json:"user,omitempty"`
	CourseName  string          `json:"course_name,omitempty"`
	Metadata    map[string]bool `json:"metadata,omitempty"`
}

// ActivityUser identifies the person behind an activity item.
type ActivityUser struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// UsageStats carries placeholder platform-usage figures. Active-user counts
// and session numbers are fixed multiples of real roster counts because the
// upstream API exposes no usage telemetry; only the weekly submission and
// assignment counters are measured.
type UsageStats struct {
	DailyActiveUsers           int `json:"daily_active_users"`
	WeeklyActiveUsers          int `json:"weekly_active_users"`
	MonthlyActiveUsers         int `json:"monthly_active_users"`
	AvgSessionDuration         int `json:"avg_session_duration"`
	AssignmentsCreatedThisWeek int `json:"assignments_created_this_week"`
	SubmissionsThisWeek        int `json:"submissions_this_week"`
	PeakUsageHour              int `json:"peak_usage_hour"`
	GrowthRate                 int `json:"growth_rate"`
}

// GuardianStats carries placeholder guardian-engagement figures derived from
// roster counts; the upstream API does not expose guardian data.
type GuardianStats struct {
	TotalGuardians      int `json:"total_guardians"`
	ActiveGuardians     int `json:"active_guardians"`
	PendingInvites      int `json:"pending_invites"`
	EmailsSentThisMonth int `json:"emails_sent_this_month"`
	SummaryOpenRate     int `json:"summary_open_rate"`
}

// InsightType labels the severity of a generated insight.
type InsightType string

const (
	InsightPositive InsightType = "positive"
	InsightWarning  InsightType = "warning"
	InsightInfo     InsightType = "info"
)

// ClassroomInsight is a qualitative finding derived from school aggregates.
type ClassroomInsight struct {
	ID          string      `json:"id"`
	Type        InsightType `json:"type"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Metric      string      `json:"metric,omitempty"`
	Change      *int        `json:"change,omitempty"`
}

// SchoolAnnouncement is a school-wide broadcast record. The upstream API has
// no storage for these, so the payload carries an empty list.
type SchoolAnnouncement struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by"`
	ViewCount   int       `json:"view_count"`
	CourseCount int       `json:"course_count"`
	IsActive    bool      `json:"is_active"`
}

// SchoolAnalytics is the full administrator dashboard payload.
type SchoolAnalytics struct {
	Overview           SchoolOverview        `json:"overview"`
	Summary            AnalyticsSummary      `json:"summary"`
	EngagementData     []EngagementDataPoint `json:"engagement_data"`
	CoursePerformance  []CoursePerformance   `json:"course_performance"`
	TeacherPerformance []TeacherPerformance  `json:"teacher_performance"`
	AtRiskStudents     []StudentAnalytics    `json:"at_risk_students"`
	TopCourses         []CoursePerformance   `json:"top_courses"`
	BottomCourses      []CoursePerformance   `json:"bottom_courses"`
	RecentActivity     []ActivityItem        `json:"recent_activity"`
	UsageStats         UsageStats            `json:"usage_stats"`
	GuardianStats      GuardianStats         `json:"guardian_stats"`
	Insights           []ClassroomInsight    `json:"insights"`
	Announcements      []SchoolAnnouncement  `json:"announcements"`
}

// AnalyticsSystemMetrics is a lightweight instrumentation snapshot served to
// dashboard diagnostics panels.
type AnalyticsSystemMetrics struct {
	CacheHitRatio             float64   `json:"cache_hit_ratio"`
	CacheHits                 uint64    `json:"cache_hits"`
	CacheMisses               uint64    `json:"cache_misses"`
	RequestsTotal             uint64    `json:"requests_total"`
	AverageRequestDurationMs  float64   `json:"average_request_duration_ms"`
	UpstreamCallCount         uint64    `json:"upstream_call_count"`
	AverageUpstreamDurationMs float64   `json:"average_upstream_duration_ms"`
	Goroutines                int       `json:"goroutines"`
	GeneratedAt               time.Time `json:"generated_at"`
}
