package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/pkg/response"
)

type progressService interface {
	CompleteLesson(ctx context.Context, studentID, lessonID string) (*models.CompletionResult, error)
	CourseProgress(ctx context.Context, studentID, courseID string) (*models.CourseProgress, error)
}

type badgeService interface {
	ListMine(ctx context.Context, studentID string) ([]models.BadgeDetail, error)
	Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error)
}

// ProgressHandler records lesson completion and reports badges and rankings.
type ProgressHandler struct {
	progress progressService
	badges   badgeService
}

// NewProgressHandler constructs the handler.
func NewProgressHandler(progress progressService, badges badgeService) *ProgressHandler {
	return &ProgressHandler{progress: progress, badges: badges}
}

// Complete godoc
// @Summary Mark a lesson completed
// @Description Idempotent. Awards any newly reached badge tiers.
// @Tags Progress
// @Produce json
// @Security BearerAuth
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id}/complete [post]
func (h *ProgressHandler) Complete(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	result, err := h.progress.CompleteLesson(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// CourseProgress godoc
// @Summary Caller's progress in a course
// @Tags Progress
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /courses/{id}/progress [get]
func (h *ProgressHandler) CourseProgress(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	progress, err := h.progress.CourseProgress(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, progress)
}

// MyBadges godoc
// @Summary Caller's badges
// @Tags Badges
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /me/badges [get]
func (h *ProgressHandler) MyBadges(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	badges, err := h.badges.ListMine(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, badges)
}

// Leaderboard godoc
// @Summary Top students by badge points
// @Tags Badges
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /leaderboard [get]
func (h *ProgressHandler) Leaderboard(c *gin.Context) {
	entries, err := h.badges.Leaderboard(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entries)
}
