package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/classroom-insights-api/internal/analytics"
	"github.com/noah-isme/classroom-insights-api/internal/models"
)

// CourseAnalyticsServiceParams bundles the constructor dependencies.
type CourseAnalyticsServiceParams struct {
	Provider    ClassroomProvider
	Cache       *CacheService
	Logger      *zap.Logger
	Now         func() time.Time
	CacheTTL    time.Duration
	Concurrency int
}

// CourseAnalyticsService derives per-course and merged cross-course analytics
// for the requesting teacher. Aggregation itself is pure; this service owns
// fetching, concurrency and the cache-aside layer.
type CourseAnalyticsService struct {
	provider    ClassroomProvider
	cache       *CacheService
	logger      *zap.Logger
	now         func() time.Time
	cacheTTL    time.Duration
	concurrency int
}

// NewCourseAnalyticsService constructs the service.
func NewCourseAnalyticsService(params CourseAnalyticsServiceParams) *CourseAnalyticsService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	return &CourseAnalyticsService{
		provider:    params.Provider,
		cache:       params.Cache,
		logger:      logger,
		now:         now,
		cacheTTL:    params.CacheTTL,
		concurrency: concurrency,
	}
}

// TeacherCourses lists the courses where the token's user is a teacher, in
// upstream course order. A failing role probe skips that course; a failing
// course list is the one error that propagates.
func (s *CourseAnalyticsService) TeacherCourses(ctx context.Context, token string) ([]models.Course, error) {
	courses, err := s.provider.ListCourses(ctx, token)
	if err != nil {
		return nil, err
	}

	roles := make([]models.CourseRole, len(courses))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for i, course := range courses {
		i, course := i, course
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			role, err := s.provider.CourseRole(ctx, token, course.ID)
			if err != nil {
				s.logger.Warn("role probe failed", zap.String("course_id", course.ID), zap.Error(err))
				role = models.CourseRoleNone
			}
			roles[i] = role
		}()
	}
	wg.Wait()

	taught := make([]models.Course, 0, len(courses))
	for i, course := range courses {
		if roles[i] == models.CourseRoleTeacher {
			taught = append(taught, course)
		}
	}
	return taught, nil
}

// CourseAnalytics computes the full analytics payload for one course,
// serving from cache when possible.
func (s *CourseAnalyticsService) CourseAnalytics(ctx context.Context, token, courseID string) (models.CourseAnalytics, bool, error) {
	key := fmt.Sprintf("analytics:course:%s:%s", courseID, tokenDigest(token))
	var cached models.CourseAnalytics
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, true, nil
	}

	course, err := s.provider.GetCourse(ctx, token, courseID)
	if err != nil {
		return models.CourseAnalytics{}, false, err
	}

	bundle := fetchBundle(ctx, s.provider, token, course, s.concurrency, false, s.logger)
	result := analytics.BuildCourseAnalytics(s.now(), bundle)

	if err := s.cache.Set(ctx, key, result, s.cacheTTL); err != nil {
		s.logger.Warn("course analytics cache write failed", zap.String("course_id", courseID), zap.Error(err))
	}
	return result, false, nil
}

// Aggregated merges analytics across every course the user teaches. Courses
// whose data cannot be fetched drop out of the merge with a warning. A caller
// who teaches no courses gets a nil payload, not a synthetic empty merge.
func (s *CourseAnalyticsService) Aggregated(ctx context.Context, token string) (*models.CourseAnalytics, bool, error) {
	key := "analytics:aggregate:" + tokenDigest(token)
	var cached models.CourseAnalytics
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, true, nil
	}

	courses, err := s.TeacherCourses(ctx, token)
	if err != nil {
		return nil, false, err
	}
	if len(courses) == 0 {
		return nil, false, nil
	}

	now := s.now()
	perCourse := make([]models.CourseAnalytics, len(courses))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for i, course := range courses {
		i, course := i, course
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			bundle := fetchBundle(ctx, s.provider, token, course, 1, false, s.logger)
			perCourse[i] = analytics.BuildCourseAnalytics(now, bundle)
		}()
	}
	wg.Wait()

	merged := analytics.MergeCourseAnalytics(perCourse)
	if err := s.cache.Set(ctx, key, merged, s.cacheTTL); err != nil {
		s.logger.Warn("aggregate analytics cache write failed", zap.Error(err))
	}
	return &merged, false, nil
}
