package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/dto"
	"github.com/noah-isme/lms-api/internal/gamification"
	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

// memoryCache stores JSON payloads the way the Redis repository does.
type memoryCache struct {
	entries map[string][]byte
	getErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	for key := range m.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.entries, key)
		}
	}
	return nil
}

type stubDashboardRepo struct {
	calls  int
	rating float64
	err    error
}

func (s *stubDashboardRepo) InstructorCourseCounts(context.Context, string) ([]dto.CountRow, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []dto.CountRow{{Key: "DRAFT", Count: 2}, {Key: "PUBLISHED", Count: 3}}, nil
}

func (s *stubDashboardRepo) InstructorStudentCount(context.Context, string) (int, error) {
	return 12, nil
}

func (s *stubDashboardRepo) InstructorPendingGrading(context.Context, string) (int, error) {
	return 4, nil
}

func (s *stubDashboardRepo) InstructorAverageRating(context.Context, string) (*float64, error) {
	return &s.rating, nil
}

func (s *stubDashboardRepo) InstructorTopCourses(context.Context, string, int) ([]dto.CourseHighlight, error) {
	return nil, nil
}

func (s *stubDashboardRepo) UsersByRole(context.Context) ([]dto.CountRow, error) {
	s.calls++
	return []dto.CountRow{{Key: "STUDENT", Count: 10}, {Key: "INSTRUCTOR", Count: 2}}, nil
}

func (s *stubDashboardRepo) CoursesByStatus(context.Context) ([]dto.CountRow, error) {
	return []dto.CountRow{{Key: "PUBLISHED", Count: 5}}, nil
}

func (s *stubDashboardRepo) EnrollmentsByStatus(context.Context) ([]dto.CountRow, error) {
	return []dto.CountRow{{Key: "ACTIVE", Count: 7}, {Key: "DROPPED", Count: 1}}, nil
}

func (s *stubDashboardRepo) BadgesByTier(context.Context) ([]dto.CountRow, error) {
	return []dto.CountRow{{Key: "BRONZE", Count: 6}, {Key: "MASTER", Count: 1}}, nil
}

func (s *stubDashboardRepo) LessonsCompleted(context.Context) (int, error) {
	return 40, nil
}

func TestInstructorDashboardUsesCache(t *testing.T) {
	repo := &stubDashboardRepo{rating: 4.5}
	store := newMemoryCache()
	cache := NewCacheService(store, NewMetricsService(), time.Minute, zap.NewNop(), true)
	svc := NewDashboardService(repo, cache, nil, zap.NewNop(), DashboardServiceConfig{})
	ctx := context.Background()

	first, hit, err := svc.Instructor(ctx, "inst-1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 5, first.TotalCourses)
	assert.Equal(t, 3, first.CoursesByStatus[models.CourseStatusPublished])
	assert.Equal(t, 12, first.TotalStudents)
	assert.Equal(t, 4, first.PendingGrading)
	assert.NotNil(t, first.TopCourses)
	assert.Contains(t, store.entries, "dashboard:instructor:inst-1")

	second, hit, err := svc.Instructor(ctx, "inst-1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first.TotalCourses, second.TotalCourses)
	assert.Equal(t, 1, repo.calls)

	cache.InvalidateDashboards(ctx, "inst-1")
	_, hit, err = svc.Instructor(ctx, "inst-1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, repo.calls)
}

func TestInstructorDashboardSurvivesCacheFailure(t *testing.T) {
	repo := &stubDashboardRepo{}
	store := newMemoryCache()
	store.getErr = errors.New("redis down")
	svc := NewDashboardService(repo, NewCacheService(store, nil, time.Minute, zap.NewNop(), true), nil, zap.NewNop(), DashboardServiceConfig{})

	summary, hit, err := svc.Instructor(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 5, summary.TotalCourses)
}

func TestInstructorDashboardPropagatesRepoErrors(t *testing.T) {
	svc := NewDashboardService(&stubDashboardRepo{err: errors.New("boom")}, nil, nil, nil, DashboardServiceConfig{})
	_, _, err := svc.Instructor(context.Background(), "inst-1")
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestAdminStatsAggregatesAndAttachesRuntime(t *testing.T) {
	repo := &stubDashboardRepo{}
	store := newMemoryCache()
	metrics := NewMetricsService()
	metrics.LessonCompleted()
	svc := NewDashboardService(repo, NewCacheService(store, metrics, time.Minute, zap.NewNop(), true), metrics, zap.NewNop(), DashboardServiceConfig{})
	ctx := context.Background()

	stats, hit, err := svc.Admin(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 10, stats.UsersByRole[models.RoleStudent])
	assert.Equal(t, 8, stats.TotalEnrollments)
	assert.Equal(t, 7, stats.BadgesAwarded)
	assert.Equal(t, 1, stats.BadgesByTier[gamification.TierMaster])
	assert.Equal(t, 40, stats.LessonsCompleted)
	require.NotNil(t, stats.Runtime)
	assert.Equal(t, uint64(1), stats.Runtime.LessonsCompleted)

	var stored dto.AdminStatsResponse
	require.NoError(t, json.Unmarshal(store.entries[dashboardAdminKey], &stored))
	assert.Nil(t, stored.Runtime)

	cached, hit, err := svc.Admin(ctx)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.NotNil(t, cached.Runtime)
	assert.Equal(t, 1, repo.calls)
}
