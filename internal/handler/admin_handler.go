package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classroom-insights-api/internal/middleware"
	"github.com/noah-isme/classroom-insights-api/internal/models"
	appErrors "github.com/noah-isme/classroom-insights-api/pkg/errors"
	"github.com/noah-isme/classroom-insights-api/pkg/response"
)

type schoolAnalyticsService interface {
	SchoolAnalytics(ctx context.Context, token string) (models.SchoolAnalytics, bool, error)
	SystemMetrics() models.AnalyticsSystemMetrics
}

// AdminHandler wires the administrator dashboard endpoints.
type AdminHandler struct {
	service schoolAnalyticsService
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(service schoolAnalyticsService) *AdminHandler {
	return &AdminHandler{service: service}
}

// School godoc
// @Summary School-wide analytics dashboard
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/school [get]
func (h *AdminHandler) School(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	token := middleware.TokenFromContext(c)
	school, cacheHit, err := h.service.SchoolAnalytics(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, school, middleware.ExtractMeta(c))
}

// SystemMetrics godoc
// @Summary Service instrumentation snapshot
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /analytics/system [get]
func (h *AdminHandler) SystemMetrics(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	response.JSON(c, http.StatusOK, h.service.SystemMetrics())
}
