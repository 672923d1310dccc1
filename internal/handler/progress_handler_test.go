package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/gamification"
	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type progressServiceMock struct {
	result      *models.CompletionResult
	err         error
	lastStudent string
	lastLesson  string
}

func (m *progressServiceMock) CompleteLesson(_ context.Context, studentID, lessonID string) (*models.CompletionResult, error) {
	m.lastStudent, m.lastLesson = studentID, lessonID
	return m.result, m.err
}

func (m *progressServiceMock) CourseProgress(_ context.Context, studentID, courseID string) (*models.CourseProgress, error) {
	return &models.CourseProgress{CourseID: courseID, CompletedLessons: 1, TotalLessons: 4, ProgressPercent: 25}, m.err
}

type badgeServiceMock struct {
	entries []models.LeaderboardEntry
}

func (m *badgeServiceMock) ListMine(context.Context, string) ([]models.BadgeDetail, error) {
	return []models.BadgeDetail{}, nil
}

func (m *badgeServiceMock) Leaderboard(context.Context) ([]models.LeaderboardEntry, error) {
	return m.entries, nil
}

func TestProgressHandlerCompleteReturnsNewBadges(t *testing.T) {
	mock := &progressServiceMock{result: &models.CompletionResult{
		Progress:        models.LessonProgress{LessonID: "l1", StudentID: "s1"},
		NewBadges:       []gamification.Tier{gamification.TierBronze},
		ProgressPercent: 25,
	}}
	handler := NewProgressHandler(mock, &badgeServiceMock{})

	c, w := newGinContext(http.MethodPost, "/lessons/l1/complete", nil)
	c.Params = gin.Params{{Key: "id", Value: "l1"}}
	withUser(c, "s1", models.RoleStudent)
	handler.Complete(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", mock.lastStudent)
	assert.Equal(t, "l1", mock.lastLesson)

	var result struct {
		NewBadges       []string `json:"newBadges"`
		ProgressPercent int      `json:"progressPercent"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &result))
	assert.Equal(t, []string{"BRONZE"}, result.NewBadges)
	assert.Equal(t, 25, result.ProgressPercent)
}

func TestProgressHandlerCompleteLocked(t *testing.T) {
	handler := NewProgressHandler(&progressServiceMock{err: appErrors.ErrLessonLocked}, &badgeServiceMock{})

	c, w := newGinContext(http.MethodPost, "/lessons/l2/complete", nil)
	withUser(c, "s1", models.RoleStudent)
	handler.Complete(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestProgressHandlerLeaderboard(t *testing.T) {
	handler := NewProgressHandler(&progressServiceMock{}, &badgeServiceMock{entries: []models.LeaderboardEntry{
		{ID: "s1", Name: "Ada", BadgeCount: 2, TotalPoints: 75},
	}})

	c, w := newGinContext(http.MethodGet, "/leaderboard", nil)
	handler.Leaderboard(c)

	require.Equal(t, http.StatusOK, w.Code)
	var entries []models.LeaderboardEntry
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 75, entries[0].TotalPoints)
}

func TestProgressHandlerCourseProgress(t *testing.T) {
	handler := NewProgressHandler(&progressServiceMock{}, &badgeServiceMock{})

	c, w := newGinContext(http.MethodGet, "/courses/c1/progress", nil)
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	withUser(c, "s1", models.RoleStudent)
	handler.CourseProgress(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"progressPercent":25`)
}
