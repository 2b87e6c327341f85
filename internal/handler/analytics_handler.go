package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classroom-insights-api/internal/middleware"
	"github.com/noah-isme/classroom-insights-api/internal/models"
	appErrors "github.com/noah-isme/classroom-insights-api/pkg/errors"
	"github.com/noah-isme/classroom-insights-api/pkg/response"
)

type courseAnalyticsService interface {
	TeacherCourses(ctx context.Context, token string) ([]models.Course, error)
	CourseAnalytics(ctx context.Context, token, courseID string) (models.CourseAnalytics, bool, error)
	Aggregated(ctx context.Context, token string) (*models.CourseAnalytics, bool, error)
}

// AnalyticsHandler wires the teacher-facing analytics endpoints.
type AnalyticsHandler struct {
	service courseAnalyticsService
}

// NewAnalyticsHandler constructs the handler.
func NewAnalyticsHandler(service courseAnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

// Courses godoc
// @Summary List courses taught by the caller
// @Tags Analytics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *AnalyticsHandler) Courses(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	token := middleware.TokenFromContext(c)
	courses, err := h.service.TeacherCourses(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses)
}

// CourseAnalytics godoc
// @Summary Analytics for a single course
// @Tags Analytics
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/analytics [get]
func (h *AnalyticsHandler) CourseAnalytics(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	courseID := strings.TrimSpace(c.Param("courseId"))
	if courseID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "courseId is required"))
		return
	}
	token := middleware.TokenFromContext(c)
	analytics, cacheHit, err := h.service.CourseAnalytics(c.Request.Context(), token, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, analytics, middleware.ExtractMeta(c))
}

// Aggregate godoc
// @Summary Merged analytics across all taught courses
// @Tags Analytics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /analytics/aggregate [get]
func (h *AnalyticsHandler) Aggregate(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	token := middleware.TokenFromContext(c)
	merged, cacheHit, err := h.service.Aggregated(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	if merged == nil {
		// No taught courses: explicit null data tells the dashboard to
		// render its empty state. The typed nil keeps the data field in
		// the envelope.
		response.JSON(c, http.StatusOK, merged)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, merged, middleware.ExtractMeta(c))
}
