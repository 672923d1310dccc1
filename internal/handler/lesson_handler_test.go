package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/internal/service"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type lessonServiceMock struct {
	lessons      []models.LessonView
	err          error
	lastActor    *models.JWTClaims
	lastUpload   service.AttachmentUpload
	uploadBody   []byte
	download     *service.AttachmentDownload
	lastToken    string
	lastCourseID string
}

func (m *lessonServiceMock) ListForCourse(_ context.Context, actor *models.JWTClaims, courseID string) ([]models.LessonView, error) {
	m.lastActor = actor
	m.lastCourseID = courseID
	return m.lessons, m.err
}

func (m *lessonServiceMock) Get(_ context.Context, actor *models.JWTClaims, lessonID string) (*models.LessonView, error) {
	m.lastActor = actor
	if m.err != nil {
		return nil, m.err
	}
	return &models.LessonView{ID: lessonID}, nil
}

func (m *lessonServiceMock) Create(_ context.Context, _ *models.JWTClaims, courseID string, req models.CreateLessonRequest) (*models.LessonView, error) {
	return &models.LessonView{ID: "l1", CourseID: courseID, Title: req.Title}, m.err
}

func (m *lessonServiceMock) Update(context.Context, *models.JWTClaims, string, models.UpdateLessonRequest) (*models.LessonView, error) {
	return &models.LessonView{ID: "l1"}, m.err
}

func (m *lessonServiceMock) Delete(context.Context, *models.JWTClaims, string) error {
	return m.err
}

func (m *lessonServiceMock) UploadAttachment(_ context.Context, _ *models.JWTClaims, lessonID string, upload service.AttachmentUpload) (*models.LessonView, error) {
	m.lastUpload = upload
	body, err := io.ReadAll(upload.Content)
	if err != nil {
		return nil, err
	}
	m.uploadBody = body
	return &models.LessonView{ID: lessonID}, m.err
}

func (m *lessonServiceMock) OpenAttachment(_ context.Context, token string) (*service.AttachmentDownload, error) {
	m.lastToken = token
	if m.err != nil {
		return nil, m.err
	}
	return m.download, nil
}

func TestLessonHandlerListPassesOptionalUser(t *testing.T) {
	mock := &lessonServiceMock{lessons: []models.LessonView{{ID: "l1", Title: "Intro"}, {ID: "l2", Title: "Next", Locked: true}}}
	handler := NewLessonHandler(mock)

	c, w := newGinContext(http.MethodGet, "/courses/c1/lessons", nil)
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, mock.lastActor)
	assert.Equal(t, "c1", mock.lastCourseID)
	assert.Contains(t, w.Body.String(), `"locked":true`)
}

func TestLessonHandlerGetLocked(t *testing.T) {
	handler := NewLessonHandler(&lessonServiceMock{err: appErrors.ErrLessonLocked})

	c, w := newGinContext(http.MethodGet, "/lessons/l2", nil)
	withUser(c, "s1", models.RoleStudent)
	handler.Get(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "LESSON_LOCKED", decodeEnvelope(t, w).Error.Code)
}

func TestLessonHandlerUploadAttachment(t *testing.T) {
	mock := &lessonServiceMock{}
	handler := NewLessonHandler(mock)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "notes.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 lesson notes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	c, w := newGinContext(http.MethodPost, "/lessons/l1/attachment", body.Bytes())
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())
	c.Params = gin.Params{{Key: "id", Value: "l1"}}
	withUser(c, "inst-1", models.RoleInstructor)
	handler.UploadAttachment(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "notes.pdf", mock.lastUpload.Filename)
	assert.Equal(t, int64(len("%PDF-1.4 lesson notes")), mock.lastUpload.Size)
	assert.Equal(t, "%PDF-1.4 lesson notes", string(mock.uploadBody))
}

func TestLessonHandlerUploadRequiresFile(t *testing.T) {
	handler := NewLessonHandler(&lessonServiceMock{})

	c, w := newGinContext(http.MethodPost, "/lessons/l1/attachment", nil)
	withUser(c, "inst-1", models.RoleInstructor)
	handler.UploadAttachment(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLessonHandlerDownloadStreamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(path, []byte("pdf-bytes"), 0o644))
	file, err := os.Open(path)
	require.NoError(t, err)

	mock := &lessonServiceMock{download: &service.AttachmentDownload{File: file, Filename: "notes.pdf", MimeType: "application/pdf", Size: 9}}
	handler := NewLessonHandler(mock)

	c, w := newGinContext(http.MethodGet, "/files/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}
	handler.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok", mock.lastToken)
	assert.Equal(t, "pdf-bytes", w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "notes.pdf")
}

func TestLessonHandlerDownloadRejectsBadToken(t *testing.T) {
	handler := NewLessonHandler(&lessonServiceMock{err: appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")})

	c, w := newGinContext(http.MethodGet, "/files/bad", nil)
	handler.Download(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
