package models

import "time"

// CourseState mirrors the lifecycle states exposed by the Classroom API.
type CourseState string

const (
	CourseStateActive      CourseState = "ACTIVE"
	CourseStateArchived    CourseState = "ARCHIVED"
	CourseStateProvisioned CourseState = "PROVISIONED"
	CourseStateDeclined    CourseState = "DECLINED"
	CourseStateSuspended   CourseState = "SUSPENDED"
)

// CourseRole describes the caller's relationship to a course.
type CourseRole string

const (
	CourseRoleTeacher CourseRole = "teacher"
	CourseRoleStudent CourseRole = "student"
	CourseRoleNone    CourseRole = "none"
)

// Course is a read-only view of an upstream Classroom course.
type Course struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Section      string      `json:"section,omitempty"`
	CourseState  CourseState `json:"course_state"`
	CreationTime *time.Time  `json:"creation_time,omitempty"`
}

// Person is a flattened roster member (teacher or student). Identity is the
// upstream user ID; the same person may appear in many course rosters.
type Person struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// DueDate is a calendar date without a time component.
type DueDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// IsZero reports whether no due date was set.
func (d DueDate) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Midnight interprets the due date as local calendar midnight in loc.
func (d DueDate) Midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, loc)
}

// CourseWork is an assignment owned by exactly one course.
type CourseWork struct {
	ID           string     `json:"id"`
	CourseID     string     `json:"course_id"`
	Title        string     `json:"title"`
	DueDate      *DueDate   `json:"due_date,omitempty"`
	MaxPoints    *float64   `json:"max_points,omitempty"`
	CreationTime *time.Time `json:"creation_time,omitempty"`
}

// SubmissionState enumerates upstream submission lifecycle states.
type SubmissionState string

const (
	SubmissionStateNew       SubmissionState = "NEW"
	SubmissionStateCreated   SubmissionState = "CREATED"
	SubmissionStateTurnedIn  SubmissionState = "TURNED_IN"
	SubmissionStateReturned  SubmissionState = "RETURNED"
	SubmissionStateReclaimed SubmissionState = "RECLAIMED_BY_STUDENT"
)

// Submitted reports whether the state counts as a completed submission.
func (s SubmissionState) Submitted() bool {
	return s == SubmissionStateTurnedIn || s == SubmissionStateReturned
}

// Pending reports whether the work was never handed in.
func (s SubmissionState) Pending() bool {
	return s == SubmissionStateNew || s == SubmissionStateCreated
}

// Submission is one student's record for a piece of coursework. UpdateTime is
// kept as the raw upstream timestamp; parsing happens during aggregation where
// malformed values are skipped rather than propagated.
type Submission struct {
	ID            string          `json:"id"`
	CourseWorkID  string          `json:"course_work_id"`
	UserID        string          `json:"user_id"`
	State         SubmissionState `json:"state"`
	Late          bool            `json:"late"`
	UpdateTime    string          `json:"update_time,omitempty"`
	AssignedGrade *float64        `json:"assigned_grade,omitempty"`
}

// CourseBundle is the fully materialized snapshot for one course: roster,
// coursework and submissions keyed by coursework ID. Aggregation operates on
// bundles only after every fetch has resolved.
type CourseBundle struct {
	Course            Course
	CourseWork        []CourseWork
	Students          []Person
	Teachers          []Person
	SubmissionsByWork map[string][]Submission
}
