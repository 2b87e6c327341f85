package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/classroom-insights-api/internal/analytics"
	"github.com/noah-isme/classroom-insights-api/internal/models"
)

// SchoolAnalyticsServiceParams bundles the constructor dependencies.
type SchoolAnalyticsServiceParams struct {
	Provider    ClassroomProvider
	Cache       *CacheService
	Metrics     *MetricsService
	Logger      *zap.Logger
	Now         func() time.Time
	CacheTTL    time.Duration
	Concurrency int
}

// SchoolAnalyticsService builds the administrator dashboard payload across
// every active course visible to the requesting token.
type SchoolAnalyticsService struct {
	provider    ClassroomProvider
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
	cacheTTL    time.Duration
	concurrency int
}

// NewSchoolAnalyticsService constructs the service.
func NewSchoolAnalyticsService(params SchoolAnalyticsServiceParams) *SchoolAnalyticsService {
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
	return &SchoolAnalyticsService{
		provider:    params.Provider,
		cache:       params.Cache,
		metrics:     params.Metrics,
		logger:      logger,
		now:         now,
		cacheTTL:    params.CacheTTL,
		concurrency: concurrency,
	}
}

// SchoolAnalytics assembles the full school payload, serving from cache when
// possible. Only the top-level course list failure propagates; courses whose
// details cannot be fetched degrade to empty collections inside their bundle.
func (s *SchoolAnalyticsService) SchoolAnalytics(ctx context.Context, token string) (models.SchoolAnalytics, bool, error) {
	key := "analytics:school:" + tokenDigest(token)
	var cached models.SchoolAnalytics
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, true, nil
	}

	bundles, err := s.ActiveCourseBundles(ctx, token)
	if err != nil {
		return models.SchoolAnalytics{}, false, err
	}

	result := analytics.BuildSchoolAnalytics(s.now(), bundles)
	if err := s.cache.Set(ctx, key, result, s.cacheTTL); err != nil {
		s.logger.Warn("school analytics cache write failed", zap.Error(err))
	}
	return result, false, nil
}

// ActiveCourseBundles fetches a snapshot of every active course in parallel,
// each bundle filling its own slot.
func (s *SchoolAnalyticsService) ActiveCourseBundles(ctx context.Context, token string) ([]models.CourseBundle, error) {
	courses, err := s.provider.ListCourses(ctx, token)
	if err != nil {
		return nil, err
	}

	active := make([]models.Course, 0, len(courses))
	for _, course := range courses {
		if course.CourseState == models.CourseStateActive {
			active = append(active, course)
		}
	}

	bundles := make([]models.CourseBundle, len(active))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for i, course := range active {
		i, course := i, course
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			bundles[i] = fetchBundle(ctx, s.provider, token, course, 1, true, s.logger)
		}()
	}
	wg.Wait()
	return bundles, nil
}

// SystemMetrics reports the instrumentation snapshot for the diagnostics
// endpoint.
func (s *SchoolAnalyticsService) SystemMetrics() models.AnalyticsSystemMetrics {
	return s.metrics.Snapshot()
}
