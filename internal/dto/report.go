// Package dto holds request and response shapes for the HTTP layer.
package dto

import "github.com/noah-isme/classroom-insights-api/internal/models"

// ReportRequest asks for an asynchronous report export.
type ReportRequest struct {
	Type   models.ReportType   `json:"type" binding:"required,oneof=school_overview course_performance teacher_performance at_risk_students"`
	Format models.ReportFormat `json:"format" binding:"required,oneof=csv pdf"`
}

// ReportJobResponse acknowledges an accepted report job.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse describes a job's current lifecycle state.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
