package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/dto"
	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type courseServiceMock struct {
	lastQuery  dto.CourseListQuery
	lastActor  *models.JWTClaims
	lastReject models.RejectCourseRequest
	course     *models.Course
	err        error
}

func (m *courseServiceMock) ListCatalog(_ context.Context, query dto.CourseListQuery) ([]models.CourseSummary, *models.Pagination, error) {
	m.lastQuery = query
	return []models.CourseSummary{{Course: models.Course{ID: "c1"}}}, models.NewPagination(query.Page, query.Limit, 1), nil
}

func (m *courseServiceMock) ListByInstructor(_ context.Context, actor *models.JWTClaims, query dto.CourseListQuery) ([]models.CourseSummary, *models.Pagination, error) {
	m.lastActor = actor
	return nil, models.NewPagination(1, 20, 0), nil
}

func (m *courseServiceMock) ListPending(context.Context, dto.CourseListQuery) ([]models.CourseSummary, *models.Pagination, error) {
	return nil, models.NewPagination(1, 20, 0), nil
}

func (m *courseServiceMock) Get(_ context.Context, actor *models.JWTClaims, id string) (*models.CourseSummary, error) {
	m.lastActor = actor
	if m.err != nil {
		return nil, m.err
	}
	return &models.CourseSummary{Course: models.Course{ID: id}}, nil
}

func (m *courseServiceMock) Create(_ context.Context, actor *models.JWTClaims, req models.CreateCourseRequest) (*models.Course, error) {
	m.lastActor = actor
	return &models.Course{ID: "c1", Title: req.Title, Status: models.CourseStatusDraft}, m.err
}

func (m *courseServiceMock) Update(context.Context, *models.JWTClaims, string, models.UpdateCourseRequest) (*models.Course, error) {
	return m.course, m.err
}

func (m *courseServiceMock) Delete(context.Context, *models.JWTClaims, string) error {
	return m.err
}

func (m *courseServiceMock) Submit(context.Context, *models.JWTClaims, string) (*models.Course, error) {
	return m.course, m.err
}

func (m *courseServiceMock) Approve(context.Context, string) (*models.Course, error) {
	return m.course, m.err
}

func (m *courseServiceMock) Reject(_ context.Context, _ string, req models.RejectCourseRequest) (*models.Course, error) {
	m.lastReject = req
	return m.course, m.err
}

func TestCourseHandlerCatalogBindsQuery(t *testing.T) {
	mock := &courseServiceMock{}
	handler := NewCourseHandler(mock)

	c, w := newGinContext(http.MethodGet, "/courses?search=go&page=2&limit=5", nil)
	handler.Catalog(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.CourseListQuery{Search: "go", Page: 2, Limit: 5}, mock.lastQuery)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 2, env.Pagination.Page)
}

func TestCourseHandlerGetAllowsAnonymous(t *testing.T) {
	mock := &courseServiceMock{}
	handler := NewCourseHandler(mock)

	c, w := newGinContext(http.MethodGet, "/courses/c1", nil)
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	handler.Get(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, mock.lastActor)
}

func TestCourseHandlerCreate(t *testing.T) {
	mock := &courseServiceMock{}
	handler := NewCourseHandler(mock)

	c, w := newGinContext(http.MethodPost, "/courses", mustJSON(t, models.CreateCourseRequest{Title: "Go Basics"}))
	withUser(c, "inst-1", models.RoleInstructor)
	handler.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, mock.lastActor)
	assert.Equal(t, "inst-1", mock.lastActor.UserID)

	c, w = newGinContext(http.MethodPost, "/courses", []byte("{"))
	withUser(c, "inst-1", models.RoleInstructor)
	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCourseHandlerSubmitSurfacesPrecondition(t *testing.T) {
	handler := NewCourseHandler(&courseServiceMock{err: appErrors.Clone(appErrors.ErrPreconditionFailed, "course needs at least one lesson")})

	c, w := newGinContext(http.MethodPost, "/courses/c1/submit", nil)
	withUser(c, "inst-1", models.RoleInstructor)
	handler.Submit(c)

	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "PRECONDITION_FAILED", env.Error.Code)
}

func TestCourseHandlerRejectPassesReason(t *testing.T) {
	mock := &courseServiceMock{course: &models.Course{ID: "c1", Status: models.CourseStatusRejected}}
	handler := NewCourseHandler(mock)

	c, w := newGinContext(http.MethodPost, "/admin/courses/c1/reject", mustJSON(t, models.RejectCourseRequest{Reason: "needs more lessons"}))
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	handler.Reject(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "needs more lessons", mock.lastReject.Reason)
}

func TestCourseHandlerDelete(t *testing.T) {
	handler := NewCourseHandler(&courseServiceMock{})

	c, w := newGinContext(http.MethodDelete, "/courses/c1", nil)
	withUser(c, "admin-1", models.RoleAdmin)
	handler.Delete(c)

	assert.Equal(t, http.StatusNoContent, w.Code)
}
