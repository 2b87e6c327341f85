package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/classroom-insights-api/internal/models"
)

// ClassroomProvider is the read-only surface the analytics services need
// from the Classroom API client. Every call carries the requester's token.
type ClassroomProvider interface {
	ListCourses(ctx context.Context, token string) ([]models.Course, error)
	GetCourse(ctx context.Context, token, courseID string) (models.Course, error)
	CourseRole(ctx context.Context, token, courseID string) (models.CourseRole, error)
	ListCourseWork(ctx context.Context, token, courseID string) ([]models.CourseWork, error)
	ListStudents(ctx context.Context, token, courseID string) ([]models.Person, error)
	ListTeachers(ctx context.Context, token, courseID string) ([]models.Person, error)
	ListSubmissions(ctx context.Context, token, courseID, courseWorkID string) ([]models.Submission, error)
}

// tokenDigest derives a short cache-key component from a bearer token so
// cached aggregates stay scoped to the requesting user without the raw
// token ever reaching Redis.
func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

// fetchBundle materializes one course snapshot. Roster and coursework lists
// load in parallel; submissions fan out afterwards with at most concurrency
// in-flight calls, each writing to its own slot. Any failing fetch degrades
// to an empty collection so one bad call never sinks the aggregate.
func fetchBundle(ctx context.Context, provider ClassroomProvider, token string, course models.Course, concurrency int, withTeachers bool, logger *zap.Logger) models.CourseBundle {
	if concurrency <= 0 {
		concurrency = 1
	}

	bundle := models.CourseBundle{Course: course}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		work, err := provider.ListCourseWork(ctx, token, course.ID)
		if err != nil {
			logger.Warn("coursework fetch failed", zap.String("course_id", course.ID), zap.Error(err))
			return
		}
		bundle.CourseWork = work
	}()
	go func() {
		defer wg.Done()
		students, err := provider.ListStudents(ctx, token, course.ID)
		if err != nil {
			logger.Warn("student roster fetch failed", zap.String("course_id", course.ID), zap.Error(err))
			return
		}
		bundle.Students = students
	}()
	if withTeachers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			teachers, err := provider.ListTeachers(ctx, token, course.ID)
			if err != nil {
				logger.Warn("teacher roster fetch failed", zap.String("course_id", course.ID), zap.Error(err))
				return
			}
			bundle.Teachers = teachers
		}()
	}
	wg.Wait()

	bundle.SubmissionsByWork = make(map[string][]models.Submission, len(bundle.CourseWork))
	slots := make([][]models.Submission, len(bundle.CourseWork))
	sem := make(chan struct{}, concurrency)
	var subWG sync.WaitGroup
	for i, work := range bundle.CourseWork {
		i, work := i, work
		subWG.Add(1)
		sem <- struct{}{}
		go func() {
			defer subWG.Done()
			defer func() { <-sem }()
			subs, err := provider.ListSubmissions(ctx, token, course.ID, work.ID)
			if err != nil {
				logger.Warn("submissions fetch failed",
					zap.String("course_id", course.ID),
					zap.String("course_work_id", work.ID),
					zap.Error(err))
				return
			}
			slots[i] = subs
		}()
	}
	subWG.Wait()

	for i, work := range bundle.CourseWork {
		if slots[i] == nil {
			bundle.SubmissionsByWork[work.ID] = []models.Submission{}
			continue
		}
		bundle.SubmissionsByWork[work.ID] = slots[i]
	}
	return bundle
}
