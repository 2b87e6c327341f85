package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-insights-api/internal/models"
	appErrors "github.com/noah-isme/classroom-insights-api/pkg/errors"
)

type fakeProvider struct {
	courses     []models.Course
	coursesErr  error
	course      map[string]models.Course
	courseErr   map[string]error
	roles       map[string]models.CourseRole
	roleErr     map[string]error
	work        map[string][]models.CourseWork
	workErr     map[string]error
	students    map[string][]models.Person
	studentsErr map[string]error
	teachers    map[string][]models.Person
	subs        map[string][]models.Submission
	subsErr     map[string]error
}

func (f *fakeProvider) ListCourses(_ context.Context, _ string) ([]models.Course, error) {
	return f.courses, f.coursesErr
}

func (f *fakeProvider) GetCourse(_ context.Context, _, courseID string) (models.Course, error) {
	if err := f.courseErr[courseID]; err != nil {
		return models.Course{}, err
	}
	return f.course[courseID], nil
}

func (f *fakeProvider) CourseRole(_ context.Context, _, courseID string) (models.CourseRole, error) {
	if err := f.roleErr[courseID]; err != nil {
		return models.CourseRoleNone, err
	}
	return f.roles[courseID], nil
}

func (f *fakeProvider) ListCourseWork(_ context.Context, _, courseID string) ([]models.CourseWork, error) {
	if err := f.workErr[courseID]; err != nil {
		return nil, err
	}
	return f.work[courseID], nil
}

func (f *fakeProvider) ListStudents(_ context.Context, _, courseID string) ([]models.Person, error) {
	if err := f.studentsErr[courseID]; err != nil {
		return nil, err
	}
	return f.students[courseID], nil
}

func (f *fakeProvider) ListTeachers(_ context.Context, _, courseID string) ([]models.Person, error) {
	return f.teachers[courseID], nil
}

func (f *fakeProvider) ListSubmissions(_ context.Context, _, courseID, workID string) ([]models.Submission, error) {
	key := courseID + "/" + workID
	if err := f.subsErr[key]; err != nil {
		return nil, err
	}
	return f.subs[key], nil
}

type stubCacheRepo struct {
	store map[string][]byte
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, _ string) error {
	s.store = map[string][]byte{}
	return nil
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
}

func newCourseService(provider *fakeProvider, cacheRepo *stubCacheRepo) *CourseAnalyticsService {
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, cacheRepo != nil)
	return NewCourseAnalyticsService(CourseAnalyticsServiceParams{
		Provider:    provider,
		Cache:       cache,
		Now:         fixedNow,
		CacheTTL:    time.Minute,
		Concurrency: 2,
	})
}

func TestTeacherCoursesFiltersByRole(t *testing.T) {
	provider := &fakeProvider{
		courses: []models.Course{
			{ID: "c1", Name: "Algebra"},
			{ID: "c2", Name: "History"},
			{ID: "c3", Name: "Physics"},
		},
		roles: map[string]models.CourseRole{
			"c1": models.CourseRoleTeacher,
			"c2": models.CourseRoleStudent,
			"c3": models.CourseRoleTeacher,
		},
	}
	svc := newCourseService(provider, &stubCacheRepo{})

	courses, err := svc.TeacherCourses(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, "c1", courses[0].ID)
	assert.Equal(t, "c3", courses[1].ID)
}

func TestTeacherCoursesRoleProbeFailureSkipsCourse(t *testing.T) {
	provider := &fakeProvider{
		courses: []models.Course{{ID: "c1"}, {ID: "c2"}},
		roles:   map[string]models.CourseRole{"c2": models.CourseRoleTeacher},
		roleErr: map[string]error{"c1": errors.New("boom")},
	}
	svc := newCourseService(provider, &stubCacheRepo{})

	courses, err := svc.TeacherCourses(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "c2", courses[0].ID)
}

func TestTeacherCoursesListFailurePropagates(t *testing.T) {
	provider := &fakeProvider{coursesErr: appErrors.ErrUpstream}
	svc := newCourseService(provider, &stubCacheRepo{})

	_, err := svc.TeacherCourses(context.Background(), "tok")
	assert.ErrorIs(t, err, appErrors.ErrUpstream)
}

func TestCourseAnalyticsComputesAndCaches(t *testing.T) {
	provider := &fakeProvider{
		course: map[string]models.Course{"c1": {ID: "c1", Name: "Algebra"}},
		work:   map[string][]models.CourseWork{"c1": {{ID: "w1", CourseID: "c1", Title: "Quiz"}}},
		students: map[string][]models.Person{"c1": {
			{UserID: "s1", Name: "Ada"},
		}},
		subs: map[string][]models.Submission{"c1/w1": {
			{UserID: "s1", State: models.SubmissionStateTurnedIn, UpdateTime: "2024-03-10T09:00:00Z"},
		}},
	}
	cacheRepo := &stubCacheRepo{}
	svc := newCourseService(provider, cacheRepo)

	got, cached, err := svc.CourseAnalytics(context.Background(), "tok", "c1")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "Algebra", got.CourseName)
	assert.Equal(t, 1, got.Summary.TotalSubmissions)

	// Second call is served from cache without touching the provider again.
	provider.courseErr = map[string]error{"c1": errors.New("should not be called")}
	again, cached, err := svc.CourseAnalytics(context.Background(), "tok", "c1")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, got.CourseID, again.CourseID)
}

func TestCourseAnalyticsCacheScopedToToken(t *testing.T) {
	provider := &fakeProvider{
		course: map[string]models.Course{"c1": {ID: "c1", Name: "Algebra"}},
	}
	cacheRepo := &stubCacheRepo{}
	svc := newCourseService(provider, cacheRepo)

	_, _, err := svc.CourseAnalytics(context.Background(), "token-a", "c1")
	require.NoError(t, err)

	// A different token misses the first token's entry.
	_, cached, err := svc.CourseAnalytics(context.Background(), "token-b", "c1")
	require.NoError(t, err)
	assert.False(t, cached)
}

func TestCourseAnalyticsCourseLookupFailurePropagates(t *testing.T) {
	provider := &fakeProvider{
		courseErr: map[string]error{"c1": appErrors.ErrNotFound},
	}
	svc := newCourseService(provider, &stubCacheRepo{})

	_, _, err := svc.CourseAnalytics(context.Background(), "tok", "c1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCourseAnalyticsPartialFetchFailureDegrades(t *testing.T) {
	provider := &fakeProvider{
		course:      map[string]models.Course{"c1": {ID: "c1", Name: "Algebra"}},
		work:        map[string][]models.CourseWork{"c1": {{ID: "w1", Title: "Quiz"}}},
		studentsErr: map[string]error{"c1": errors.New("roster down")},
		subsErr:     map[string]error{"c1/w1": errors.New("subs down")},
	}
	svc := newCourseService(provider, &stubCacheRepo{})

	got, _, err := svc.CourseAnalytics(context.Background(), "tok", "c1")
	require.NoError(t, err)
	assert.Zero(t, got.Summary.TotalStudents)
	assert.Equal(t, 1, got.Summary.TotalAssignments)
	assert.Zero(t, got.Summary.TotalSubmissions)
	assert.Empty(t, got.StudentProgress)
}

func TestAggregatedMergesTeacherCourses(t *testing.T) {
	provider := &fakeProvider{
		courses: []models.Course{{ID: "c1", Name: "Algebra"}, {ID: "c2", Name: "History"}},
		roles: map[string]models.CourseRole{
			"c1": models.CourseRoleTeacher,
			"c2": models.CourseRoleTeacher,
		},
		work: map[string][]models.CourseWork{
			"c1": {{ID: "w1", Title: "Quiz"}},
			"c2": {{ID: "w2", Title: "Essay"}},
		},
		students: map[string][]models.Person{
			"c1": {{UserID: "s1", Name: "Ada"}},
			"c2": {{UserID: "s1", Name: "Ada"}},
		},
		subs: map[string][]models.Submission{
			"c1/w1": {{UserID: "s1", State: models.SubmissionStateTurnedIn, UpdateTime: "2024-03-10T09:00:00Z"}},
			"c2/w2": {},
		},
	}
	svc := newCourseService(provider, &stubCacheRepo{})

	merged, cached, err := svc.Aggregated(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, cached)
	require.NotNil(t, merged)
	assert.Equal(t, "all", merged.CourseID)
	assert.Equal(t, 2, merged.Summary.TotalStudents)
	require.Len(t, merged.StudentProgress, 1)
	assert.Equal(t, "s1", merged.StudentProgress[0].UserID)
}

func TestAggregatedNoTaughtCoursesReturnsNil(t *testing.T) {
	provider := &fakeProvider{
		courses: []models.Course{{ID: "c1", Name: "History"}},
		roles:   map[string]models.CourseRole{"c1": models.CourseRoleStudent},
	}
	cacheRepo := &stubCacheRepo{}
	svc := newCourseService(provider, cacheRepo)

	merged, cached, err := svc.Aggregated(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Nil(t, merged)
	assert.Empty(t, cacheRepo.store)
}
