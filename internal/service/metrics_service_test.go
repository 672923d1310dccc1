package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/gamification"
	"github.com/noah-isme/lms-api/internal/models"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/courses", 200, 20*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/courses", 200, 40*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.LessonCompleted()
	m.BadgeAwarded(gamification.TierBronze)

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap.RequestsTotal)
	assert.InDelta(t, 30, snap.AverageRequestDurationMs, 0.01)
	assert.EqualValues(t, 2, snap.CacheHits)
	assert.EqualValues(t, 1, snap.CacheMisses)
	assert.InDelta(t, 2.0/3.0, snap.CacheHitRatio, 0.001)
	assert.EqualValues(t, 1, snap.LessonsCompleted)
	assert.EqualValues(t, 1, snap.BadgesAwarded)
}

func TestMetricsServiceExposesLearningCounters(t *testing.T) {
	m := NewMetricsService()
	m.BadgeAwarded(gamification.TierGold)
	m.EnrollmentChanged(models.EnrollmentStatusBanned)
	m.ExportFinished(models.ExportStatusFailed)
	m.CourseTransitioned(models.CourseStatusPublished)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `lms_badges_awarded_total{tier="GOLD"} 1`)
	assert.Contains(t, body, `lms_enrollments_total{status="BANNED"} 1`)
	assert.Contains(t, body, `lms_export_jobs_total{status="FAILED"} 1`)
	assert.Contains(t, body, `lms_course_transitions_total{status="PUBLISHED"} 1`)
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.LessonCompleted()
	m.ObserveHTTPRequest(http.MethodGet, "/", 200, time.Millisecond)
	assert.Zero(t, m.Snapshot().RequestsTotal)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
