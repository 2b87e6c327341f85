package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-insights-api/internal/models"
	appErrors "github.com/noah-isme/classroom-insights-api/pkg/errors"
)

func newSchoolService(provider *fakeProvider, cacheRepo *stubCacheRepo) *SchoolAnalyticsService {
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, cacheRepo != nil)
	return NewSchoolAnalyticsService(SchoolAnalyticsServiceParams{
		Provider:    provider,
		Cache:       cache,
		Metrics:     NewMetricsService(),
		Now:         fixedNow,
		CacheTTL:    time.Minute,
		Concurrency: 2,
	})
}

func TestActiveCourseBundlesFiltersInactiveCourses(t *testing.T) {
	provider := &fakeProvider{
		courses: []models.Course{
			{ID: "c1", Name: "Algebra", CourseState: models.CourseStateActive},
			{ID: "c2", Name: "Archived", CourseState: "ARCHIVED"},
			{ID: "c3", Name: "History", CourseState: models.CourseStateActive},
		},
		teachers: map[string][]models.Person{
			"c1": {{UserID: "t1", Name: "Grace"}},
		},
	}
	svc := newSchoolService(provider, &stubCacheRepo{})

	bundles, err := svc.ActiveCourseBundles(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, bundles, 2)
	assert.Equal(t, "c1", bundles[0].Course.ID)
	assert.Equal(t, "c3", bundles[1].Course.ID)
	require.Len(t, bundles[0].Teachers, 1)
	assert.Equal(t, "Grace", bundles[0].Teachers[0].Name)
}

func TestSchoolAnalyticsComposesAndCaches(t *testing.T) {
	provider := &fakeProvider{
		courses: []models.Course{
			{ID: "c1", Name: "Algebra", CourseState: models.CourseStateActive},
		},
		work: map[string][]models.CourseWork{"c1": {{ID: "w1", Title: "Quiz"}}},
		students: map[string][]models.Person{"c1": {
			{UserID: "s1", Name: "Ada"},
			{UserID: "s2", Name: "Bob"},
		}},
		teachers: map[string][]models.Person{"c1": {{UserID: "t1", Name: "Grace"}}},
		subs: map[string][]models.Submission{"c1/w1": {
			{ID: "sub1", UserID: "s1", CourseWorkID: "w1", State: models.SubmissionStateTurnedIn, UpdateTime: "2024-03-10T09:00:00Z"},
		}},
	}
	cacheRepo := &stubCacheRepo{}
	svc := newSchoolService(provider, cacheRepo)

	got, cached, err := svc.SchoolAnalytics(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, got.Overview.TotalCourses)
	assert.Equal(t, 2, got.Overview.TotalStudents)
	assert.Equal(t, 1, got.Overview.TotalTeachers)
	assert.Equal(t, 50, got.Overview.OverallSubmissionRate)
	require.Len(t, got.CoursePerformance, 1)
	assert.Equal(t, "Grace", got.CoursePerformance[0].TeacherName)

	provider.coursesErr = appErrors.ErrUpstream
	again, cached, err := svc.SchoolAnalytics(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, got.Overview, again.Overview)
}

func TestSchoolAnalyticsListFailurePropagates(t *testing.T) {
	provider := &fakeProvider{coursesErr: appErrors.ErrUpstream}
	svc := newSchoolService(provider, &stubCacheRepo{})

	_, _, err := svc.SchoolAnalytics(context.Background(), "tok")
	assert.ErrorIs(t, err, appErrors.ErrUpstream)
}

func TestSystemMetricsReportsUpstreamCalls(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewSchoolAnalyticsService(SchoolAnalyticsServiceParams{
		Provider: &fakeProvider{},
		Cache:    NewCacheService(nil, nil, 0, nil, false),
		Metrics:  metrics,
	})

	metrics.ObserveUpstreamCall("/courses", 200, 40*time.Millisecond)
	metrics.ObserveUpstreamCall("/courses", 200, 60*time.Millisecond)

	snapshot := svc.SystemMetrics()
	assert.Equal(t, uint64(2), snapshot.UpstreamCallCount)
	assert.InDelta(t, 50, snapshot.AverageUpstreamDurationMs, 0.01)
}
