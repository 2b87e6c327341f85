package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/classroom-insights-api/internal/dto"
	"github.com/noah-isme/classroom-insights-api/internal/models"
	"github.com/noah-isme/classroom-insights-api/internal/repository"
	appErrors "github.com/noah-isme/classroom-insights-api/pkg/errors"
	"github.com/noah-isme/classroom-insights-api/pkg/jobs"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	MarkStaleQueuedFailed(ctx context.Context, cutoff time.Time, message string) (int64, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ReportJob, token string) (*ExportResult, error)
}

// ReportServiceConfig governs recovery and cleanup behaviour.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// ReportService orchestrates report job lifecycle management. The requester's
// access token rides along in the in-memory queue payload only; the persisted
// row carries a token digest for ownership checks and nothing reusable.
type ReportService struct {
	repo     reportJobStore
	queue    jobDispatcher
	exporter *ExportService
	validate *validator.Validate
	logger   *zap.Logger
	cfg      ReportServiceConfig
}

// NewReportService constructs the report service.
func NewReportService(repo reportJobStore, queue jobDispatcher, exporter *ExportService, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	validate := validator.New()
	validate.SetTagName("binding")
	return &ReportService{
		repo:     repo,
		queue:    queue,
		exporter: exporter,
		validate: validate,
		logger:   logger,
		cfg:      cfg,
	}
}

// CreateJob validates the request, persists job metadata and enqueues
// processing with the requester's token attached in memory.
func (s *ReportService) CreateJob(ctx context.Context, req dto.ReportRequest, token string) (*dto.ReportJobResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report type or format")
	}
	job := &models.ReportJob{
		Type:      req.Type,
		Params:    models.ReportJobParams{Format: req.Format},
		Status:    models.ReportStatusQueued,
		Progress:  0,
		CreatedBy: tokenDigest(token),
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type), Payload: token}); err != nil {
		status := models.ReportStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		progress := 100
		_ = s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
			Status:       &status,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata to its requester. The check rests on the
// token digest because upstream identities never reach this service.
func (s *ReportService) GetStatus(ctx context.Context, id, token string) (*dto.ReportStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Code == appErrors.ErrNotFound.Code {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.CreatedBy != tokenDigest(token) {
		return nil, appErrors.ErrForbidden
	}
	resp := &dto.ReportStatusResponse{
		ID:       job.ID,
		Status:   job.Status,
		Progress: job.Progress,
	}
	if job.ResultURL != nil {
		resp.ResultURL = job.ResultURL
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates the signed token and opens the stored file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Code == appErrors.ErrNotFound.Code {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// FailStaleJobs marks jobs still queued from before startup as failed. The
// access token a queued job needs only ever lived in the previous process,
// so replaying them is impossible.
func (s *ReportService) FailStaleJobs(ctx context.Context, startedAt time.Time) {
	affected, err := s.repo.MarkStaleQueuedFailed(ctx, startedAt, "interrupted by restart")
	if err != nil {
		s.logger.Warn("failed to mark stale report jobs", zap.Error(err))
		return
	}
	if affected > 0 {
		s.logger.Info("marked stale report jobs as failed", zap.Int64("count", affected))
	}
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ReportService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	for ctx.Err() == nil {
		finished, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
		if err != nil {
			s.logger.Warn("cleanup list failed", zap.Error(err))
			return
		}
		if len(finished) == 0 {
			break
		}
		cleared := 0
		for _, job := range finished {
			if ctx.Err() != nil {
				return
			}
			if s.removeExpiredResult(ctx, job) {
				cleared++
			}
		}
		// A batch that cleared nothing would repeat forever.
		if len(finished) < 100 || cleared == 0 {
			break
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("filesystem cleanup failed", zap.Error(err))
	}
}

// removeExpiredResult deletes the stored file for one expired job and clears
// its result URL so the row leaves the cleanup listing. The URL is cleared
// even when the file delete fails; the filesystem sweep picks up any file
// this pass could not remove. It reports whether the row was cleared.
func (s *ReportService) removeExpiredResult(ctx context.Context, job models.ReportJob) bool {
	if job.ResultURL != nil {
		if token := extractToken(*job.ResultURL); token != "" {
			if _, relPath, _, err := s.exporter.ParseToken(token, true); err == nil {
				if err := s.exporter.Delete(relPath); err != nil {
					s.logger.Warn("cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
				}
			}
		}
	}
	cleared := ""
	if err := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{ResultURL: &cleared}); err != nil {
		s.logger.Warn("cleanup update failed", zap.String("job_id", job.ID), zap.Error(err))
		return false
	}
	return true
}

func extractToken(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

// ReportWorker bridges queue jobs to the export service.
type ReportWorker struct {
	repo       reportJobStore
	exporter   exportGenerator
	logger     *zap.Logger
	maxRetries int
}

// NewReportWorker constructs a worker.
func NewReportWorker(repo reportJobStore, exporter exportGenerator, maxRetries int, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ReportWorker{
		repo:       repo,
		exporter:   exporter,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes one queue job. The requester's token arrives through the
// in-memory payload; a job without one cannot reach upstream and fails
// terminally.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	token, _ := job.Payload.(string)
	if token == "" {
		w.failJob(ctx, job.ID, "no access token available for job")
		return fmt.Errorf("report job %s has no token payload", job.ID)
	}

	processing := models.ReportStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, record, token)
	if err != nil {
		msg := err.Error()
		if job.Attempt >= w.maxRetries {
			w.failJob(ctx, job.ID, msg)
		} else {
			queued := models.ReportStatusQueued
			reset := 0
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
				Status:       &queued,
				Progress:     &reset,
				ErrorMessage: &msg,
			}); updateErr != nil {
				w.logger.Warn("failed to mark job queued", zap.String("job_id", job.ID), zap.Error(updateErr))
			}
		}
		return err
	}

	finished := models.ReportStatusFinished
	progress = 100
	now := time.Now().UTC()
	url := result.URL
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:       &finished,
		Progress:     &progress,
		ResultURL:    &url,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	return nil
}

func (w *ReportWorker) failJob(ctx context.Context, jobID, message string) {
	failed := models.ReportStatusFailed
	progress := 100
	now := time.Now().UTC()
	if err := w.repo.Update(ctx, jobID, repository.UpdateReportJobParams{
		Status:       &failed,
		Progress:     &progress,
		ErrorMessage: &message,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}
