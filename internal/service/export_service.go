package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/classroom-insights-api/internal/models"
	"github.com/noah-isme/classroom-insights-api/pkg/export"
	"github.com/noah-isme/classroom-insights-api/pkg/storage"
)

type schoolAnalyticsSource interface {
	SchoolAnalytics(ctx context.Context, token string) (models.SchoolAnalytics, bool, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService renders school analytics into downloadable report files. The
// dataset is recomputed from the requester's own Classroom view at generation
// time, so the file never outlives what its requester was allowed to see.
type ExportService struct {
	analytics schoolAnalyticsSource
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(analytics schoolAnalyticsSource, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		analytics: analytics,
		storage:   store,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
	}
}

// Generate builds the dataset for the job and stores the rendered file. The
// token is the requester's bearer token carried in memory by the queue.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob, token string) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	school, _, err := s.analytics.SchoolAnalytics(ctx, token)
	if err != nil {
		return nil, err
	}
	dataset, title, err := buildDataset(job.Type, school)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	downloadToken, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        downloadToken,
		URL:          fmt.Sprintf("%s/export/%s", prefix, downloadToken),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl, defaulting to the configured result
// TTL.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s.%s", strings.ToLower(string(job.Type)), timestamp, job.Params.Format)
}

func buildDataset(reportType models.ReportType, school models.SchoolAnalytics) (export.Dataset, string, error) {
	switch reportType {
	case models.ReportTypeSchoolOverview:
		return overviewDataset(school.Overview), "School Overview", nil
	case models.ReportTypeCoursePerformance:
		return coursePerformanceDataset(school.CoursePerformance), "Course Performance", nil
	case models.ReportTypeTeacherPerformance:
		return teacherPerformanceDataset(school.TeacherPerformance), "Teacher Performance", nil
	case models.ReportTypeAtRiskStudents:
		return atRiskDataset(school.AtRiskStudents), "At-Risk Students", nil
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", reportType)
	}
}

func overviewDataset(overview models.SchoolOverview) export.Dataset {
	headers := []string{"Metric", "Value"}
	rows := []map[string]string{
		{"Metric": "Total Courses", "Value": fmt.Sprintf("%d", overview.TotalCourses)},
		{"Metric": "Active Courses", "Value": fmt.Sprintf("%d", overview.ActiveCourses)},
		{"Metric": "Total Teachers", "Value": fmt.Sprintf("%d", overview.TotalTeachers)},
		{"Metric": "Total Students", "Value": fmt.Sprintf("%d", overview.TotalStudents)},
		{"Metric": "Total Assignments", "Value": fmt.Sprintf("%d", overview.TotalAssignments)},
		{"Metric": "Total Submissions", "Value": fmt.Sprintf("%d", overview.TotalSubmissions)},
		{"Metric": "Overall Submission Rate (%)", "Value": fmt.Sprintf("%d", overview.OverallSubmissionRate)},
		{"Metric": "Overall Late Rate (%)", "Value": fmt.Sprintf("%d", overview.OverallLateRate)},
		{"Metric": "At-Risk Students", "Value": fmt.Sprintf("%d", overview.AtRiskStudentsCount)},
		{"Metric": "Inactive Students", "Value": fmt.Sprintf("%d", overview.InactiveStudentsCount)},
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func coursePerformanceDataset(rows []models.CoursePerformance) export.Dataset {
	headers := []string{"Course", "Teacher", "Students", "Assignments", "Submission Rate (%)", "Late Rate (%)", "At-Risk Students", "Last Activity"}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		lastActivity := ""
		if row.LastActivity != nil {
			lastActivity = *row.LastActivity
		}
		dataRows = append(dataRows, map[string]string{
			"Course":              row.CourseName,
			"Teacher":             row.TeacherName,
			"Students":            fmt.Sprintf("%d", row.StudentCount),
			"Assignments":         fmt.Sprintf("%d", row.AssignmentCount),
			"Submission Rate (%)": fmt.Sprintf("%d", row.SubmissionRate),
			"Late Rate (%)":       fmt.Sprintf("%d", row.LateRate),
			"At-Risk Students":    fmt.Sprintf("%d", row.AtRiskStudents),
			"Last Activity":       lastActivity,
		})
	}
	return export.Dataset{Headers: headers, Rows: dataRows}
}

func teacherPerformanceDataset(rows []models.TeacherPerformance) export.Dataset {
	headers := []string{"Teacher", "Email", "Courses", "Students", "Assignments", "Submission Rate (%)", "Late Rate (%)"}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		dataRows = append(dataRows, map[string]string{
			"Teacher":             row.Name,
			"Email":               row.Email,
			"Courses":             fmt.Sprintf("%d", row.CoursesCount),
			"Students":            fmt.Sprintf("%d", row.TotalStudents),
			"Assignments":         fmt.Sprintf("%d", row.TotalAssignments),
			"Submission Rate (%)": fmt.Sprintf("%d", row.AverageSubmissionRate),
			"Late Rate (%)":       fmt.Sprintf("%d", row.AverageLateRate),
		})
	}
	return export.Dataset{Headers: headers, Rows: dataRows}
}

func atRiskDataset(rows []models.StudentAnalytics) export.Dataset {
	headers := []string{"Student", "Email", "Submission Rate (%)", "Submitted", "Missing", "Late", "Last Submission", "Status"}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		lastSubmission := ""
		if row.LastSubmissionDate != nil {
			lastSubmission = *row.LastSubmissionDate
		}
		dataRows = append(dataRows, map[string]string{
			"Student":             row.Name,
			"Email":               row.Email,
			"Submission Rate (%)": fmt.Sprintf("%d", row.SubmissionPercentage),
			"Submitted":           fmt.Sprintf("%d", row.SubmittedCount),
			"Missing":             fmt.Sprintf("%d", row.MissingCount),
			"Late":                fmt.Sprintf("%d", row.LateCount),
			"Last Submission":     lastSubmission,
			"Status":              string(row.Status),
		})
	}
	return export.Dataset{Headers: headers, Rows: dataRows}
}
