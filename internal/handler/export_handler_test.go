package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/dto"
	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/internal/service"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type exportServiceMock struct {
	lastReq    models.CreateExportRequest
	lastCourse string
	status     *dto.ExportStatusResponse
	download   *service.ExportDownload
	err        error
}

func (m *exportServiceMock) Request(_ context.Context, _ *models.JWTClaims, courseID string, req models.CreateExportRequest) (*dto.ExportJobResponse, error) {
	m.lastCourse, m.lastReq = courseID, req
	if m.err != nil {
		return nil, m.err
	}
	return &dto.ExportJobResponse{ID: "job-1", Status: models.ExportStatusQueued}, nil
}

func (m *exportServiceMock) Status(context.Context, *models.JWTClaims, string) (*dto.ExportStatusResponse, error) {
	return m.status, m.err
}

func (m *exportServiceMock) Download(context.Context, string) (*service.ExportDownload, error) {
	return m.download, m.err
}

func TestExportHandlerCreateAccepted(t *testing.T) {
	mock := &exportServiceMock{}
	handler := NewExportHandler(mock)

	c, w := newGinContext(http.MethodPost, "/courses/c1/gradebook/exports", mustJSON(t, map[string]interface{}{"format": "xlsx", "includeDropped": true}))
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	withUser(c, "inst-1", models.RoleInstructor)
	handler.Create(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "c1", mock.lastCourse)
	assert.Equal(t, models.ExportFormatXLSX, mock.lastReq.Format)
	assert.True(t, mock.lastReq.IncludeDropped)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"status":"QUEUED"`)
}

func TestExportHandlerDisabled(t *testing.T) {
	handler := NewExportHandler(nil)

	c, w := newGinContext(http.MethodGet, "/exports/job-1", nil)
	withUser(c, "inst-1", models.RoleInstructor)
	handler.Status(c)

	require.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Equal(t, "exports are disabled", decodeEnvelope(t, w).Error.Message)
}

func TestExportHandlerStatusForbidden(t *testing.T) {
	handler := NewExportHandler(&exportServiceMock{err: appErrors.ErrForbidden})

	c, w := newGinContext(http.MethodGet, "/exports/job-1", nil)
	withUser(c, "inst-2", models.RoleInstructor)
	handler.Status(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestExportHandlerDownloadStreamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gradebook.csv")
	require.NoError(t, os.WriteFile(path, []byte("Student,Email\n"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	handler := NewExportHandler(&exportServiceMock{download: &service.ExportDownload{
		File:        file,
		Filename:    "gradebook.csv",
		ContentType: "text/csv",
		Size:        14,
	}})

	c, w := newGinContext(http.MethodGet, "/exports/download/token", nil)
	c.Params = gin.Params{{Key: "token", Value: "token"}}
	handler.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "gradebook.csv")
	assert.Equal(t, "Student,Email\n", w.Body.String())
}
