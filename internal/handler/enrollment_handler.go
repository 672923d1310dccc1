package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	Drop(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	Ban(ctx context.Context, courseID, studentID string) (*models.Enrollment, error)
	Rate(ctx context.Context, studentID, courseID string, req models.RateCourseRequest) (*models.Enrollment, error)
	ListMine(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	Roster(ctx context.Context, actor *models.JWTClaims, courseID string) ([]models.RosterEntry, error)
}

// EnrollmentHandler exposes enrollment lifecycle endpoints.
type EnrollmentHandler struct {
	service enrollmentService
}

// NewEnrollmentHandler constructs the handler.
func NewEnrollmentHandler(svc enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// Enroll godoc
// @Summary Enroll in a published course
// @Description A dropped enrollment is reactivated with its progress intact
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/enroll [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	enrollment, err := h.service.Enroll(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Drop godoc
// @Summary Drop an active enrollment
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/drop [post]
func (h *EnrollmentHandler) Drop(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	enrollment, err := h.service.Drop(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, enrollment)
}

// Rate godoc
// @Summary Rate a course
// @Description Requires at least 50% progress
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body models.RateCourseRequest true "Rating"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /courses/{id}/rating [post]
func (h *EnrollmentHandler) Rate(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req models.RateCourseRequest
	if !bindJSON(c, &req, "invalid rating payload") {
		return
	}
	enrollment, err := h.service.Rate(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, enrollment)
}

// Mine godoc
// @Summary Caller's enrollments with progress
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /me/enrollments [get]
func (h *EnrollmentHandler) Mine(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	enrollments, err := h.service.ListMine(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, enrollments)
}

// Roster godoc
// @Summary Students of a course
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /courses/{id}/students [get]
func (h *EnrollmentHandler) Roster(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	roster, err := h.service.Roster(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, roster)
}

// Ban godoc
// @Summary Ban a student from a course
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/courses/{id}/students/{studentId}/ban [post]
func (h *EnrollmentHandler) Ban(c *gin.Context) {
	enrollment, err := h.service.Ban(c.Request.Context(), c.Param("id"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, enrollment)
}
