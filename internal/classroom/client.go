// Package classroom wraps the Google Classroom REST API. Every call takes the
// caller's OAuth bearer token explicitly; the client holds no credential
// state of its own.
package classroom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/classroom-insights-api/internal/models"
	appErrors "github.com/noah-isme/classroom-insights-api/pkg/errors"
)

// defaultPageSize is sent when the configuration does not set one. The API
// caps page sizes well above this.
const defaultPageSize = 100

// maxErrorBodyBytes bounds how much of an upstream error body gets read.
const maxErrorBodyBytes = 4 << 10

// Observer receives one measurement per upstream round trip.
type Observer interface {
	ObserveUpstreamCall(endpoint string, status int, duration time.Duration)
}

// Params configures a Client.
type Params struct {
	BaseURL    string
	HTTPClient *http.Client
	PageSize   int
	Logger     *zap.Logger
	Observer   Observer
}

// Client is a paginated, read-only Classroom API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	pageSize   int
	logger     *zap.Logger
	observer   Observer
}

// NewClient builds a Client. A nil HTTP client falls back to a 10 second
// default and a nil logger to a no-op one.
func NewClient(params Params) *Client {
	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    params.BaseURL,
		httpClient: httpClient,
		pageSize:   pageSize,
		logger:     logger,
		observer:   params.Observer,
	}
}

type wireName struct {
	FullName string `json:"fullName"`
}

type wireProfile struct {
	ID           string   `json:"id"`
	Name         wireName `json:"name"`
	EmailAddress string   `json:"emailAddress"`
	PhotoURL     string   `json:"photoUrl"`
}

type wireCourse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Section      string `json:"section"`
	CourseState  string `json:"courseState"`
	CreationTime string `json:"creationTime"`
}

type wireMember struct {
	CourseID string      `json:"courseId"`
	UserID   string      `json:"userId"`
	Profile  wireProfile `json:"profile"`
}

type wireDueDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

type wireCourseWork struct {
	ID           string       `json:"id"`
	CourseID     string       `json:"courseId"`
	Title        string       `json:"title"`
	DueDate      *wireDueDate `json:"dueDate"`
	MaxPoints    *float64     `json:"maxPoints"`
	CreationTime string       `json:"creationTime"`
}

type wireSubmission struct {
	ID            string   `json:"id"`
	CourseWorkID  string   `json:"courseWorkId"`
	UserID        string   `json:"userId"`
	State         string   `json:"state"`
	Late          bool     `json:"late"`
	UpdateTime    string   `json:"updateTime"`
	AssignedGrade *float64 `json:"assignedGrade"`
}

// ListCourses returns every course visible to the token's user, across all
// result pages.
func (c *Client) ListCourses(ctx context.Context, token string) ([]models.Course, error) {
	var courses []models.Course
	err := c.paginate(ctx, token, "/courses", nil, func(payload []byte) (string, error) {
		var page struct {
			Courses       []wireCourse `json:"courses"`
			NextPageToken string       `json:"nextPageToken"`
		}
		if err := json.Unmarshal(payload, &page); err != nil {
			return "", err
		}
		for _, wc := range page.Courses {
			courses = append(courses, toCourse(wc))
		}
		return page.NextPageToken, nil
	})
	if err != nil {
		return nil, err
	}
	return courses, nil
}

// GetCourse fetches a single course by ID.
func (c *Client) GetCourse(ctx context.Context, token, courseID string) (models.Course, error) {
	payload, status, err := c.get(ctx, token, "/courses/"+url.PathEscape(courseID), nil)
	if err != nil {
		return models.Course{}, err
	}
	if status != http.StatusOK {
		return models.Course{}, c.statusError(status, payload)
	}
	var wc wireCourse
	if err := json.Unmarshal(payload, &wc); err != nil {
		return models.Course{}, appErrors.ErrUpstream.Wrap(err)
	}
	return toCourse(wc), nil
}

// CourseRole probes the caller's relationship to a course by looking up the
// "me" alias in the teacher roster first, then the student roster. A missing
// entry answers 404, which maps to the next probe rather than an error.
func (c *Client) CourseRole(ctx context.Context, token, courseID string) (models.CourseRole, error) {
	escaped := url.PathEscape(courseID)
	_, status, err := c.get(ctx, token, "/courses/"+escaped+"/teachers/me", nil)
	if err != nil {
		return models.CourseRoleNone, err
	}
	switch status {
	case http.StatusOK:
		return models.CourseRoleTeacher, nil
	case http.StatusNotFound, http.StatusForbidden:
	default:
		return models.CourseRoleNone, c.statusError(status, nil)
	}

	_, status, err = c.get(ctx, token, "/courses/"+escaped+"/students/me", nil)
	if err != nil {
		return models.CourseRoleNone, err
	}
	switch status {
	case http.StatusOK:
		return models.CourseRoleStudent, nil
	case http.StatusNotFound, http.StatusForbidden:
		return models.CourseRoleNone, nil
	default:
		return models.CourseRoleNone, c.statusError(status, nil)
	}
}

// ListCourseWork returns all coursework for a course.
func (c *Client) ListCourseWork(ctx context.Context, token, courseID string) ([]models.CourseWork, error) {
	var work []models.CourseWork
	path := "/courses/" + url.PathEscape(courseID) + "/courseWork"
	err := c.paginate(ctx, token, path, nil, func(payload []byte) (string, error) {
		var page struct {
			CourseWork    []wireCourseWork `json:"courseWork"`
			NextPageToken string           `json:"nextPageToken"`
		}
		if err := json.Unmarshal(payload, &page); err != nil {
			return "", err
		}
		for _, ww := range page.CourseWork {
			work = append(work, toCourseWork(ww))
		}
		return page.NextPageToken, nil
	})
	if err != nil {
		return nil, err
	}
	return work, nil
}

// ListStudents returns the student roster for a course.
func (c *Client) ListStudents(ctx context.Context, token, courseID string) ([]models.Person, error) {
	return c.listMembers(ctx, token, courseID, "students")
}

// ListTeachers returns the teacher roster for a course.
func (c *Client) ListTeachers(ctx context.Context, token, courseID string) ([]models.Person, error) {
	return c.listMembers(ctx, token, courseID, "teachers")
}

func (c *Client) listMembers(ctx context.Context, token, courseID, kind string) ([]models.Person, error) {
	var people []models.Person
	path := "/courses/" + url.PathEscape(courseID) + "/" + kind
	err := c.paginate(ctx, token, path, nil, func(payload []byte) (string, error) {
		var page struct {
			Students      []wireMember `json:"students"`
			Teachers      []wireMember `json:"teachers"`
			NextPageToken string       `json:"nextPageToken"`
		}
		if err := json.Unmarshal(payload, &page); err != nil {
			return "", err
		}
		members := page.Students
		if kind == "teachers" {
			members = page.Teachers
		}
		for _, m := range members {
			people = append(people, toPerson(m))
		}
		return page.NextPageToken, nil
	})
	if err != nil {
		return nil, err
	}
	return people, nil
}

// ListSubmissions returns every student submission for one coursework item.
func (c *Client) ListSubmissions(ctx context.Context, token, courseID, courseWorkID string) ([]models.Submission, error) {
	var subs []models.Submission
	path := "/courses/" + url.PathEscape(courseID) + "/courseWork/" + url.PathEscape(courseWorkID) + "/studentSubmissions"
	err := c.paginate(ctx, token, path, nil, func(payload []byte) (string, error) {
		var page struct {
			StudentSubmissions []wireSubmission `json:"studentSubmissions"`
			NextPageToken      string           `json:"nextPageToken"`
		}
		if err := json.Unmarshal(payload, &page); err != nil {
			return "", err
		}
		for _, ws := range page.StudentSubmissions {
			subs = append(subs, toSubmission(ws))
		}
		return page.NextPageToken, nil
	})
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// paginate walks every page of a list endpoint, handing each raw payload to
// next, which returns the following page token or empty when done.
func (c *Client) paginate(ctx context.Context, token, path string, query url.Values, next func(payload []byte) (string, error)) error {
	pageToken := ""
	for {
		q := url.Values{}
		for k, vs := range query {
			q[k] = vs
		}
		q.Set("pageSize", strconv.Itoa(c.pageSize))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		payload, status, err := c.get(ctx, token, path, q)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return c.statusError(status, payload)
		}
		pageToken, err = next(payload)
		if err != nil {
			return appErrors.ErrUpstream.Wrap(err)
		}
		if pageToken == "" {
			return nil
		}
	}
}

func (c *Client) get(ctx context.Context, token, path string, query url.Values) ([]byte, int, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, appErrors.ErrUpstream.Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		if c.observer != nil {
			c.observer.ObserveUpstreamCall(path, 0, duration)
		}
		c.logger.Warn("classroom request failed", zap.String("path", path), zap.Error(err))
		return nil, 0, appErrors.ErrUpstream.Wrap(err)
	}
	defer resp.Body.Close()
	if c.observer != nil {
		c.observer.ObserveUpstreamCall(path, resp.StatusCode, duration)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, resp.StatusCode, appErrors.ErrUpstream.Wrap(err)
	}
	return payload, resp.StatusCode, nil
}

// statusError maps an upstream HTTP status to an application error.
func (c *Client) statusError(status int, body []byte) error {
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	err := fmt.Errorf("classroom API status %d: %s", status, string(body))
	switch status {
	case http.StatusUnauthorized:
		return appErrors.ErrUnauthorized.Wrap(err)
	case http.StatusForbidden:
		return appErrors.ErrForbidden.Wrap(err)
	case http.StatusNotFound:
		return appErrors.ErrNotFound.Wrap(err)
	default:
		return appErrors.ErrUpstream.Wrap(err)
	}
}

func toCourse(wc wireCourse) models.Course {
	course := models.Course{
		ID:          wc.ID,
		Name:        wc.Name,
		Section:     wc.Section,
		CourseState: models.CourseState(wc.CourseState),
	}
	if ts, err := time.Parse(time.RFC3339, wc.CreationTime); err == nil {
		course.CreationTime = &ts
	}
	return course
}

func toPerson(m wireMember) models.Person {
	return models.Person{
		UserID:   m.UserID,
		Name:     m.Profile.Name.FullName,
		Email:    m.Profile.EmailAddress,
		PhotoURL: m.Profile.PhotoURL,
	}
}

func toCourseWork(w wireCourseWork) models.CourseWork {
	work := models.CourseWork{
		ID:        w.ID,
		CourseID:  w.CourseID,
		Title:     w.Title,
		MaxPoints: w.MaxPoints,
	}
	if w.DueDate != nil {
		work.DueDate = &models.DueDate{Year: w.DueDate.Year, Month: w.DueDate.Month, Day: w.DueDate.Day}
	}
	if ts, err := time.Parse(time.RFC3339, w.CreationTime); err == nil {
		work.CreationTime = &ts
	}
	return work
}

func toSubmission(ws wireSubmission) models.Submission {
	return models.Submission{
		ID:            ws.ID,
		CourseWorkID:  ws.CourseWorkID,
		UserID:        ws.UserID,
		State:         models.SubmissionState(ws.State),
		Late:          ws.Late,
		UpdateTime:    ws.UpdateTime,
		AssignedGrade: ws.AssignedGrade,
	}
}
