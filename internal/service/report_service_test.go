package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-insights-api/internal/dto"
	"github.com/noah-isme/classroom-insights-api/internal/models"
	"github.com/noah-isme/classroom-insights-api/internal/repository"
	appErrors "github.com/noah-isme/classroom-insights-api/pkg/errors"
	"github.com/noah-isme/classroom-insights-api/pkg/jobs"
)

type memoryJobStore struct {
	jobs        map[string]*models.ReportJob
	createErr   error
	staleCutoff time.Time
	staleCount  int64
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: make(map[string]*models.ReportJob)}
}

func (m *memoryJobStore) Create(_ context.Context, job *models.ReportJob) error {
	if m.createErr != nil {
		return m.createErr
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memoryJobStore) GetByID(_ context.Context, id string) (*models.ReportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, appErrors.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *memoryJobStore) Update(_ context.Context, id string, params repository.UpdateReportJobParams) error {
	job, ok := m.jobs[id]
	if !ok {
		return appErrors.ErrNotFound
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (m *memoryJobStore) MarkStaleQueuedFailed(_ context.Context, cutoff time.Time, message string) (int64, error) {
	m.staleCutoff = cutoff
	var affected int64
	for _, job := range m.jobs {
		if job.Status == models.ReportStatusQueued && job.CreatedAt.Before(cutoff) {
			job.Status = models.ReportStatusFailed
			job.ErrorMessage = &message
			affected++
		}
	}
	m.staleCount = affected
	return affected, nil
}

func (m *memoryJobStore) ListFinishedBefore(_ context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	matched := make([]models.ReportJob, 0, limit)
	for _, job := range m.jobs {
		if job.Status != models.ReportStatusFinished || job.FinishedAt == nil || !job.FinishedAt.Before(cutoff) {
			continue
		}
		if job.ResultURL == nil || *job.ResultURL == "" {
			continue
		}
		matched = append(matched, *job)
		if len(matched) == limit {
			break
		}
	}
	return matched, nil
}

type recordingDispatcher struct {
	enqueued []jobs.Job
	err      error
}

func (r *recordingDispatcher) Enqueue(job jobs.Job) error {
	if r.err != nil {
		return r.err
	}
	r.enqueued = append(r.enqueued, job)
	return nil
}

type stubExporter struct {
	result *ExportResult
	err    error
	tokens []string
}

func (s *stubExporter) Generate(_ context.Context, _ *models.ReportJob, token string) (*ExportResult, error) {
	s.tokens = append(s.tokens, token)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func validRequest() dto.ReportRequest {
	return dto.ReportRequest{
		Type:   models.ReportTypeSchoolOverview,
		Format: models.ReportFormatCSV,
	}
}

func TestCreateJobPersistsAndEnqueuesTokenPayload(t *testing.T) {
	store := newMemoryJobStore()
	queue := &recordingDispatcher{}
	svc := NewReportService(store, queue, nil, nil, ReportServiceConfig{})

	resp, err := svc.CreateJob(context.Background(), validRequest(), "bearer-token")
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, resp.Status)
	assert.Zero(t, resp.Progress)

	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, resp.ID, queue.enqueued[0].ID)
	assert.Equal(t, "bearer-token", queue.enqueued[0].Payload)

	stored := store.jobs[resp.ID]
	require.NotNil(t, stored)
	assert.Equal(t, tokenDigest("bearer-token"), stored.CreatedBy)
	assert.NotContains(t, stored.CreatedBy, "bearer-token")
}

func TestCreateJobRejectsUnknownTypeAndFormat(t *testing.T) {
	svc := NewReportService(newMemoryJobStore(), &recordingDispatcher{}, nil, nil, ReportServiceConfig{})

	req := validRequest()
	req.Type = models.ReportType("weekly_digest")
	_, err := svc.CreateJob(context.Background(), req, "tok")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	req = validRequest()
	req.Format = models.ReportFormat("xlsx")
	_, err = svc.CreateJob(context.Background(), req, "tok")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestCreateJobEnqueueFailureMarksJobFailed(t *testing.T) {
	store := newMemoryJobStore()
	queue := &recordingDispatcher{err: errors.New("queue full")}
	svc := NewReportService(store, queue, nil, nil, ReportServiceConfig{})

	_, err := svc.CreateJob(context.Background(), validRequest(), "tok")
	require.Error(t, err)

	require.Len(t, store.jobs, 1)
	for _, job := range store.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
		require.NotNil(t, job.ErrorMessage)
	}
}

func TestGetStatusEnforcesOwnership(t *testing.T) {
	store := newMemoryJobStore()
	svc := NewReportService(store, &recordingDispatcher{}, nil, nil, ReportServiceConfig{})

	resp, err := svc.CreateJob(context.Background(), validRequest(), "owner-token")
	require.NoError(t, err)

	status, err := svc.GetStatus(context.Background(), resp.ID, "owner-token")
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, status.Status)

	_, err = svc.GetStatus(context.Background(), resp.ID, "other-token")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestGetStatusUnknownJob(t *testing.T) {
	svc := NewReportService(newMemoryJobStore(), &recordingDispatcher{}, nil, nil, ReportServiceConfig{})

	_, err := svc.GetStatus(context.Background(), "missing", "tok")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestFailStaleJobsUsesStartupCutoff(t *testing.T) {
	store := newMemoryJobStore()
	stale := &models.ReportJob{
		ID:        "stale",
		Type:      models.ReportTypeSchoolOverview,
		Status:    models.ReportStatusQueued,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	store.jobs[stale.ID] = stale
	svc := NewReportService(store, &recordingDispatcher{}, nil, nil, ReportServiceConfig{})

	svc.FailStaleJobs(context.Background(), time.Now())

	assert.Equal(t, int64(1), store.staleCount)
	assert.Equal(t, models.ReportStatusFailed, store.jobs["stale"].Status)
}

func TestWorkerHandleSuccess(t *testing.T) {
	store := newMemoryJobStore()
	job := &models.ReportJob{
		ID:     "job-1",
		Type:   models.ReportTypeSchoolOverview,
		Params: models.ReportJobParams{Format: models.ReportFormatCSV},
		Status: models.ReportStatusQueued,
	}
	store.jobs[job.ID] = job
	exporter := &stubExporter{result: &ExportResult{URL: "/api/v1/export/tok123"}}
	worker := NewReportWorker(store, exporter, 3, nil)

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Payload: "bearer-token"})
	require.NoError(t, err)

	assert.Equal(t, []string{"bearer-token"}, exporter.tokens)
	updated := store.jobs["job-1"]
	assert.Equal(t, models.ReportStatusFinished, updated.Status)
	assert.Equal(t, 100, updated.Progress)
	require.NotNil(t, updated.ResultURL)
	assert.Equal(t, "/api/v1/export/tok123", *updated.ResultURL)
	require.NotNil(t, updated.FinishedAt)
}

func TestWorkerHandleMissingTokenFailsTerminally(t *testing.T) {
	store := newMemoryJobStore()
	store.jobs["job-1"] = &models.ReportJob{ID: "job-1", Status: models.ReportStatusQueued}
	worker := NewReportWorker(store, &stubExporter{}, 3, nil)

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1"})
	require.Error(t, err)
	assert.Equal(t, models.ReportStatusFailed, store.jobs["job-1"].Status)
}

func TestWorkerHandleRetriesBeforeFailing(t *testing.T) {
	store := newMemoryJobStore()
	store.jobs["job-1"] = &models.ReportJob{ID: "job-1", Status: models.ReportStatusQueued}
	exporter := &stubExporter{err: errors.New("upstream down")}
	worker := NewReportWorker(store, exporter, 2, nil)

	// First attempt is below the retry ceiling, so the job goes back to queued.
	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Payload: "tok", Attempt: 1})
	require.Error(t, err)
	assert.Equal(t, models.ReportStatusQueued, store.jobs["job-1"].Status)
	require.NotNil(t, store.jobs["job-1"].ErrorMessage)

	// At the ceiling the failure is terminal.
	err = worker.Handle(context.Background(), jobs.Job{ID: "job-1", Payload: "tok", Attempt: 2})
	require.Error(t, err)
	assert.Equal(t, models.ReportStatusFailed, store.jobs["job-1"].Status)
	assert.Equal(t, 100, store.jobs["job-1"].Progress)
}

func TestCleanupExpiredDrainsBacklogLargerThanOneBatch(t *testing.T) {
	store := newMemoryJobStore()
	finishedAt := time.Now().Add(-48 * time.Hour)
	for i := 0; i < 150; i++ {
		url := fmt.Sprintf("/api/v1/export/token-%d", i)
		id := fmt.Sprintf("job-%d", i)
		store.jobs[id] = &models.ReportJob{
			ID:         id,
			Type:       models.ReportTypeSchoolOverview,
			Status:     models.ReportStatusFinished,
			ResultURL:  &url,
			FinishedAt: &finishedAt,
		}
	}
	exporter := newExportService(t, &fakeSchoolSource{school: sampleSchool()})
	svc := NewReportService(store, &recordingDispatcher{}, exporter, nil, ReportServiceConfig{
		ResultTTL: 24 * time.Hour,
	})

	svc.cleanupExpired(context.Background())

	for id, job := range store.jobs {
		require.NotNil(t, job.ResultURL, id)
		assert.Empty(t, *job.ResultURL, id)
	}
}

func TestCleanupExpiredRemovesStoredFile(t *testing.T) {
	store := newMemoryJobStore()
	exporter := newExportService(t, &fakeSchoolSource{school: sampleSchool()})
	svc := NewReportService(store, &recordingDispatcher{}, exporter, nil, ReportServiceConfig{
		ResultTTL: time.Hour,
	})
	worker := NewReportWorker(store, exporter, 3, nil)

	job := &models.ReportJob{
		ID:     "job-old",
		Type:   models.ReportTypeSchoolOverview,
		Params: models.ReportJobParams{Format: models.ReportFormatCSV},
		Status: models.ReportStatusQueued,
	}
	store.jobs[job.ID] = job
	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-old", Payload: "tok"}))

	url := *store.jobs["job-old"].ResultURL
	_, relPath, _, err := exporter.ParseToken(extractToken(url), true)
	require.NoError(t, err)
	finishedAt := time.Now().Add(-2 * time.Hour)
	store.jobs["job-old"].FinishedAt = &finishedAt

	svc.cleanupExpired(context.Background())

	assert.Empty(t, *store.jobs["job-old"].ResultURL)
	_, err = exporter.Open(relPath)
	assert.Error(t, err)
}

func TestResolveDownloadRejectsBadToken(t *testing.T) {
	store := newMemoryJobStore()
	exporter := newExportService(t, &fakeSchoolSource{school: sampleSchool()})
	svc := NewReportService(store, &recordingDispatcher{}, exporter, nil, ReportServiceConfig{})

	_, err := svc.ResolveDownload(context.Background(), "garbage")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestResolveDownloadRoundTrip(t *testing.T) {
	store := newMemoryJobStore()
	exporter := newExportService(t, &fakeSchoolSource{school: sampleSchool()})
	svc := NewReportService(store, &recordingDispatcher{}, exporter, nil, ReportServiceConfig{})
	worker := NewReportWorker(store, exporter, 3, nil)

	job := &models.ReportJob{
		ID:     "job-dl",
		Type:   models.ReportTypeSchoolOverview,
		Params: models.ReportJobParams{Format: models.ReportFormatCSV},
		Status: models.ReportStatusQueued,
	}
	store.jobs[job.ID] = job

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-dl", Payload: "tok"}))

	url := *store.jobs["job-dl"].ResultURL
	token := extractToken(url)
	require.NotEmpty(t, token)

	download, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, models.ReportFormatCSV, download.Format)
	assert.Contains(t, download.Filename, "school_overview")
}
