package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-insights-api/internal/dto"
	"github.com/noah-isme/classroom-insights-api/internal/middleware"
	"github.com/noah-isme/classroom-insights-api/internal/models"
	"github.com/noah-isme/classroom-insights-api/internal/service"
	appErrors "github.com/noah-isme/classroom-insights-api/pkg/errors"
)

type fakeReportSrv struct {
	created   *dto.ReportJobResponse
	createErr error
	status    *dto.ReportStatusResponse
	statusErr error
	download  *service.ReportDownload
	dlErr     error
	lastReq   dto.ReportRequest
	lastToken string
}

func (f *fakeReportSrv) CreateJob(_ context.Context, req dto.ReportRequest, token string) (*dto.ReportJobResponse, error) {
	f.lastReq = req
	f.lastToken = token
	return f.created, f.createErr
}

func (f *fakeReportSrv) GetStatus(_ context.Context, _, token string) (*dto.ReportStatusResponse, error) {
	f.lastToken = token
	return f.status, f.statusErr
}

func (f *fakeReportSrv) ResolveDownload(context.Context, string) (*service.ReportDownload, error) {
	return f.download, f.dlErr
}

func newReportContext(t *testing.T, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/reports", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.ContextTokenKey, "test-token")
	return c, rec
}

func TestReportHandlerCreateAccepted(t *testing.T) {
	service := &fakeReportSrv{
		created: &dto.ReportJobResponse{ID: "job-1", Status: models.ReportStatusQueued},
	}
	handler := NewReportHandler(service)

	c, rec := newReportContext(t, `{"type":"school_overview","format":"csv"}`)
	handler.Create(c)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, models.ReportTypeSchoolOverview, service.lastReq.Type)
	assert.Equal(t, "test-token", service.lastToken)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	var job dto.ReportJobResponse
	require.NoError(t, json.Unmarshal(envelope.Data, &job))
	assert.Equal(t, "job-1", job.ID)
}

func TestReportHandlerCreateRejectsBadBody(t *testing.T) {
	handler := NewReportHandler(&fakeReportSrv{})

	c, rec := newReportContext(t, `{"type":"school_overview","format":"xlsx"}`)
	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportHandlerStatus(t *testing.T) {
	url := "/api/v1/export/tok123"
	service := &fakeReportSrv{
		status: &dto.ReportStatusResponse{
			ID:        "job-1",
			Status:    models.ReportStatusFinished,
			Progress:  100,
			ResultURL: &url,
		},
	}
	handler := NewReportHandler(service)

	c, rec := newAuthedContext(t, http.MethodGet, "/reports/job-1")
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	handler.Status(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	var status dto.ReportStatusResponse
	require.NoError(t, json.Unmarshal(envelope.Data, &status))
	require.NotNil(t, status.ResultURL)
	assert.Equal(t, url, *status.ResultURL)
}

func TestReportHandlerStatusForbidden(t *testing.T) {
	handler := NewReportHandler(&fakeReportSrv{statusErr: appErrors.ErrForbidden})

	c, rec := newAuthedContext(t, http.MethodGet, "/reports/job-1")
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	handler.Status(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReportHandlerDownload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "school_overview_20240315_120000.csv")
	require.NoError(t, os.WriteFile(path, []byte("Metric,Value\n"), 0o644))
	file, err := os.Open(path)
	require.NoError(t, err)

	handler := NewReportHandler(&fakeReportSrv{
		download: &service.ReportDownload{
			File:      file,
			Filename:  filepath.Base(path),
			Format:    models.ReportFormatCSV,
			ExpiresAt: time.Now().Add(time.Hour),
		},
	})

	c, rec := newAuthedContext(t, http.MethodGet, "/export/tok123")
	c.Params = gin.Params{{Key: "token", Value: "tok123"}}
	handler.Download(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "school_overview")
	assert.Contains(t, rec.Body.String(), "Metric,Value")
}

func TestReportHandlerDownloadInvalidToken(t *testing.T) {
	handler := NewReportHandler(&fakeReportSrv{dlErr: appErrors.ErrForbidden})

	c, rec := newAuthedContext(t, http.MethodGet, "/export/bad")
	c.Params = gin.Params{{Key: "token", Value: "bad"}}
	handler.Download(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
