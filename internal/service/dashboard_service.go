package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/dto"
	"github.com/noah-isme/lms-api/internal/gamification"
	"github.com/noah-isme/lms-api/internal/models"
)

type dashboardRepository interface {
	InstructorCourseCounts(ctx context.Context, instructorID string) ([]dto.CountRow, error)
	InstructorStudentCount(ctx context.Context, instructorID string) (int, error)
	InstructorPendingGrading(ctx context.Context, instructorID string) (int, error)
	InstructorAverageRating(ctx context.Context, instructorID string) (*float64, error)
	InstructorTopCourses(ctx context.Context, instructorID string, limit int) ([]dto.CourseHighlight, error)
	UsersByRole(ctx context.Context) ([]dto.CountRow, error)
	CoursesByStatus(ctx context.Context) ([]dto.CountRow, error)
	EnrollmentsByStatus(ctx context.Context) ([]dto.CountRow, error)
	BadgesByTier(ctx context.Context) ([]dto.CountRow, error)
	LessonsCompleted(ctx context.Context) (int, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL      time.Duration
	TopCoursesMax int
}

// DashboardService composes the instructor dashboard and admin statistics.
type DashboardService struct {
	repo    dashboardRepository
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	cfg     DashboardServiceConfig
}

// NewDashboardService constructs DashboardService. cache and metrics may be nil.
func NewDashboardService(repo dashboardRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg DashboardServiceConfig) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.TopCoursesMax <= 0 {
		cfg.TopCoursesMax = 5
	}
	return &DashboardService{repo: repo, cache: cache, metrics: metrics, logger: logger, cfg: cfg}
}

// Instructor returns the instructor's dashboard and whether it came from cache.
func (s *DashboardService) Instructor(ctx context.Context, instructorID string) (*dto.InstructorDashboardResponse, bool, error) {
	key := dashboardInstructorKey(instructorID)
	var cached dto.InstructorDashboardResponse
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	rows, err := s.repo.InstructorCourseCounts(ctx, instructorID)
	if err != nil {
		return nil, false, internalError(err, "failed to load course counts")
	}
	students, err := s.repo.InstructorStudentCount(ctx, instructorID)
	if err != nil {
		return nil, false, internalError(err, "failed to load student count")
	}
	pending, err := s.repo.InstructorPendingGrading(ctx, instructorID)
	if err != nil {
		return nil, false, internalError(err, "failed to load pending grading")
	}
	rating, err := s.repo.InstructorAverageRating(ctx, instructorID)
	if err != nil {
		return nil, false, internalError(err, "failed to load average rating")
	}
	top, err := s.repo.InstructorTopCourses(ctx, instructorID, s.cfg.TopCoursesMax)
	if err != nil {
		return nil, false, internalError(err, "failed to load top courses")
	}
	if top == nil {
		top = []dto.CourseHighlight{}
	}

	byStatus := make(map[models.CourseStatus]int, len(rows))
	total := 0
	for _, row := range rows {
		byStatus[models.CourseStatus(row.Key)] = row.Count
		total += row.Count
	}

	summary := &dto.InstructorDashboardResponse{
		InstructorID:    instructorID,
		TotalCourses:    total,
		CoursesByStatus: byStatus,
		TotalStudents:   students,
		PendingGrading:  pending,
		AverageRating:   rating,
		TopCourses:      top,
	}
	s.cache.Set(ctx, key, summary, s.cfg.CacheTTL)
	return summary, false, nil
}

// Admin returns platform statistics and whether they came from cache. Runtime metrics are
// attached on every call and never cached.
func (s *DashboardService) Admin(ctx context.Context) (*dto.AdminStatsResponse, bool, error) {
	var cached dto.AdminStatsResponse
	if s.cache.Get(ctx, dashboardAdminKey, &cached) {
		s.attachRuntime(&cached)
		return &cached, true, nil
	}

	users, err := s.repo.UsersByRole(ctx)
	if err != nil {
		return nil, false, internalError(err, "failed to load user counts")
	}
	courses, err := s.repo.CoursesByStatus(ctx)
	if err != nil {
		return nil, false, internalError(err, "failed to load course counts")
	}
	enrollments, err := s.repo.EnrollmentsByStatus(ctx)
	if err != nil {
		return nil, false, internalError(err, "failed to load enrollment counts")
	}
	badges, err := s.repo.BadgesByTier(ctx)
	if err != nil {
		return nil, false, internalError(err, "failed to load badge counts")
	}
	lessons, err := s.repo.LessonsCompleted(ctx)
	if err != nil {
		return nil, false, internalError(err, "failed to load completions")
	}

	stats := &dto.AdminStatsResponse{
		UsersByRole:         make(map[models.UserRole]int, len(users)),
		CoursesByStatus:     make(map[models.CourseStatus]int, len(courses)),
		EnrollmentsByStatus: make(map[models.EnrollmentStatus]int, len(enrollments)),
		BadgesByTier:        make(map[gamification.Tier]int, len(badges)),
		LessonsCompleted:    lessons,
	}
	for _, row := range users {
		stats.UsersByRole[models.UserRole(row.Key)] = row.Count
	}
	for _, row := range courses {
		stats.CoursesByStatus[models.CourseStatus(row.Key)] = row.Count
	}
	for _, row := range enrollments {
		stats.EnrollmentsByStatus[models.EnrollmentStatus(row.Key)] = row.Count
		stats.TotalEnrollments += row.Count
	}
	for _, row := range badges {
		stats.BadgesByTier[gamification.Tier(row.Key)] = row.Count
		stats.BadgesAwarded += row.Count
	}

	s.cache.Set(ctx, dashboardAdminKey, stats, s.cfg.CacheTTL)
	s.attachRuntime(stats)
	return stats, false, nil
}

func (s *DashboardService) attachRuntime(stats *dto.AdminStatsResponse) {
	if s.metrics == nil {
		stats.Runtime = nil
		return
	}
	snapshot := s.metrics.Snapshot()
	stats.Runtime = &snapshot
}
