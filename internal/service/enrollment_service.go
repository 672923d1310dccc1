package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/gamification"
	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/pkg/database"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

// ratingProgressThreshold is the completion percent a student needs before rating a course.
const ratingProgressThreshold = 50

type enrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByStudentCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	Rate(ctx context.Context, id string, rating int, review *string) error
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	Roster(ctx context.Context, courseID string) ([]models.RosterEntry, error)
}

type progressPercenter interface {
	Percent(ctx context.Context, studentID, courseID string) (float64, error)
}

// EnrollmentService manages who studies which course and their course ratings.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   courseReader
	progress  progressPercenter
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses courseReader, progress progressPercenter, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, courses: courses, progress: progress, cache: cache, metrics: metrics, validator: validate, logger: logger}
}

// Enroll joins a student to a published course. A DROPPED enrollment is reactivated with its
// progress and badges intact.
func (s *EnrollmentService) Enroll(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	if course.Status != models.CourseStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	existing, err := s.repo.FindByStudentCourse(ctx, studentID, courseID)
	switch {
	case err == nil:
		return s.reactivate(ctx, course, existing)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, internalError(err, "failed to load enrollment")
	}

	enrollment := &models.Enrollment{StudentID: studentID, CourseID: courseID, Status: models.EnrollmentStatusActive}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "already enrolled in this course")
		}
		return nil, internalError(err, "failed to create enrollment")
	}
	s.changed(ctx, course, enrollment)
	return enrollment, nil
}

func (s *EnrollmentService) reactivate(ctx context.Context, course *models.Course, enrollment *models.Enrollment) (*models.Enrollment, error) {
	switch enrollment.Status {
	case models.EnrollmentStatusBanned:
		return nil, appErrors.Clone(appErrors.ErrEnrollmentBanned, "")
	case models.EnrollmentStatusActive, models.EnrollmentStatusCompleted:
		return nil, appErrors.Clone(appErrors.ErrConflict, "already enrolled in this course")
	}
	if err := s.repo.UpdateStatus(ctx, enrollment.ID, models.EnrollmentStatusActive); err != nil {
		return nil, lookupError(err, "enrollment not found", "failed to reactivate enrollment")
	}
	enrollment.Status = models.EnrollmentStatusActive
	s.changed(ctx, course, enrollment)
	return enrollment, nil
}

// Drop moves the student's ACTIVE enrollment to DROPPED.
func (s *EnrollmentService) Drop(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	enrollment, err := s.find(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only active enrollments can be dropped")
	}
	return s.setStatus(ctx, course, enrollment, models.EnrollmentStatusDropped)
}

// Ban blocks a student from a course. Progress and badges are kept.
func (s *EnrollmentService) Ban(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	enrollment, err := s.repo.FindByStudentCourse(ctx, studentID, courseID)
	if err != nil {
		return nil, lookupError(err, "enrollment not found", "failed to load enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusBanned {
		return enrollment, nil
	}
	return s.setStatus(ctx, course, enrollment, models.EnrollmentStatusBanned)
}

// Rate records the student's rating once they have completed at least half of the course.
func (s *EnrollmentService) Rate(ctx context.Context, studentID, courseID string, req models.RateCourseRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid rating payload")
	}
	enrollment, err := s.find(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status == models.EnrollmentStatusBanned {
		return nil, appErrors.Clone(appErrors.ErrEnrollmentBanned, "")
	}

	percent, err := s.progress.Percent(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	if percent < ratingProgressThreshold {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrPreconditionFailed, "complete at least half of the course before rating it"),
			map[string]interface{}{"currentProgress": gamification.RoundPercent(percent)},
		)
	}

	review := strPtr(strings.TrimSpace(req.Review))
	if err := s.repo.Rate(ctx, enrollment.ID, req.Rating, review); err != nil {
		return nil, lookupError(err, "enrollment not found", "failed to save rating")
	}
	enrollment.Rating = &req.Rating
	enrollment.Review = review

	if course, err := s.courses.FindByID(ctx, courseID); err == nil {
		s.cache.InvalidateDashboards(ctx, course.InstructorID)
	}
	return enrollment, nil
}

// ListMine returns the student's enrollments with their progress.
func (s *EnrollmentService) ListMine(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	items, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, internalError(err, "failed to list enrollments")
	}
	if items == nil {
		return []models.EnrollmentDetail{}, nil
	}
	for i := range items {
		items[i].ProgressPercent = roundedProgress(items[i].CompletedLessons, items[i].TotalLessons)
	}
	return items, nil
}

// Roster lists a course's participants for its instructor or an admin.
func (s *EnrollmentService) Roster(ctx context.Context, actor *models.JWTClaims, courseID string) ([]models.RosterEntry, error) {
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	if err := requireCourseManager(actor, course); err != nil {
		return nil, err
	}
	entries, err := s.repo.Roster(ctx, courseID)
	if err != nil {
		return nil, internalError(err, "failed to load roster")
	}
	if entries == nil {
		return []models.RosterEntry{}, nil
	}
	for i := range entries {
		entries[i].ProgressPercent = roundedProgress(entries[i].CompletedLessons, entries[i].TotalLessons)
	}
	return entries, nil
}

func (s *EnrollmentService) find(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByStudentCourse(ctx, studentID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "")
		}
		return nil, internalError(err, "failed to load enrollment")
	}
	return enrollment, nil
}

func (s *EnrollmentService) setStatus(ctx context.Context, course *models.Course, enrollment *models.Enrollment, status models.EnrollmentStatus) (*models.Enrollment, error) {
	if err := s.repo.UpdateStatus(ctx, enrollment.ID, status); err != nil {
		return nil, lookupError(err, "enrollment not found", "failed to update enrollment")
	}
	enrollment.Status = status
	s.changed(ctx, course, enrollment)
	return enrollment, nil
}

func (s *EnrollmentService) changed(ctx context.Context, course *models.Course, enrollment *models.Enrollment) {
	s.metrics.EnrollmentChanged(enrollment.Status)
	s.cache.InvalidateDashboards(ctx, course.InstructorID)
	s.logger.Info("enrollment changed",
		zap.String("course_id", course.ID),
		zap.String("student_id", enrollment.StudentID),
		zap.String("status", string(enrollment.Status)),
	)
}

func roundedProgress(completed, total int) int {
	return gamification.RoundPercent(gamification.CompletionPercent(completed, total))
}
