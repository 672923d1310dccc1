package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/dto"
	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
	"github.com/noah-isme/lms-api/pkg/mailer"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindSummaryByID(ctx context.Context, id string) (*models.CourseSummary, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, int, error)
	Update(ctx context.Context, course *models.Course) error
	UpdateStatus(ctx context.Context, id string, status models.CourseStatus, reason *string) error
	Delete(ctx context.Context, id string) error
}

type lessonCounter interface {
	CountByCourse(ctx context.Context, courseID string) (int, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CourseService manages courses and their DRAFT → PENDING → PUBLISHED | REJECTED lifecycle.
type CourseService struct {
	repo      courseRepository
	lessons   lessonCounter
	users     userReader
	cache     *CacheService
	mail      MailDispatcher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService. cache, mail and metrics may be nil.
func NewCourseService(repo courseRepository, lessons lessonCounter, users userReader, cache *CacheService, mail MailDispatcher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, lessons: lessons, users: users, cache: cache, mail: mail, metrics: metrics, validator: validate, logger: logger}
}

// ListCatalog returns published courses matching the query.
func (s *CourseService) ListCatalog(ctx context.Context, query dto.CourseListQuery) ([]models.CourseSummary, *models.Pagination, error) {
	status := models.CourseStatusPublished
	return s.list(ctx, models.CourseFilter{Search: query.Search, Status: &status, Page: query.Page, PageSize: query.Limit})
}

// ListByInstructor returns every course of the calling instructor regardless of status.
func (s *CourseService) ListByInstructor(ctx context.Context, actor *models.JWTClaims, query dto.CourseListQuery) ([]models.CourseSummary, *models.Pagination, error) {
	return s.list(ctx, models.CourseFilter{Search: query.Search, InstructorID: actor.UserID, Page: query.Page, PageSize: query.Limit})
}

// ListPending returns courses awaiting moderation.
func (s *CourseService) ListPending(ctx context.Context, query dto.CourseListQuery) ([]models.CourseSummary, *models.Pagination, error) {
	status := models.CourseStatusPending
	return s.list(ctx, models.CourseFilter{Search: query.Search, Status: &status, Page: query.Page, PageSize: query.Limit})
}

func (s *CourseService) list(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list courses")
	}
	if courses == nil {
		courses = []models.CourseSummary{}
	}
	return courses, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a course. Unpublished courses are only visible to their instructor and admins;
// anyone else gets a 404. actor may be nil for anonymous callers.
func (s *CourseService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseSummary, error) {
	summary, err := s.repo.FindSummaryByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "course not found", "failed to load course")
	}
	if summary.Status != models.CourseStatusPublished && !canManageCourse(actor, &summary.Course) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return summary, nil
}

// Create adds a DRAFT course owned by the calling instructor.
func (s *CourseService) Create(ctx context.Context, actor *models.JWTClaims, req models.CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid course payload")
	}
	course := &models.Course{
		Title:        strings.TrimSpace(req.Title),
		Description:  strings.TrimSpace(req.Description),
		InstructorID: actor.UserID,
		Status:       models.CourseStatusDraft,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, internalError(err, "failed to create course")
	}
	s.cache.InvalidateDashboards(ctx, course.InstructorID)
	return course, nil
}

// Update edits a course. A REJECTED course returns to DRAFT so it can be fixed and resubmitted.
func (s *CourseService) Update(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid course payload")
	}
	course, err := loadCourse(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if err := requireCourseOwner(actor, course); err != nil {
		return nil, err
	}

	if req.Title != nil {
		course.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		course.Description = strings.TrimSpace(*req.Description)
	}
	if course.Status == models.CourseStatusRejected {
		course.Status = models.CourseStatusDraft
		course.RejectionReason = nil
	}

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, lookupError(err, "course not found", "failed to update course")
	}
	s.cache.InvalidateDashboards(ctx, course.InstructorID)
	return course, nil
}

// Delete removes a course with its lessons, enrollments and badges. Owner or admin only.
func (s *CourseService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	course, err := loadCourse(ctx, s.repo, id)
	if err != nil {
		return err
	}
	if err := requireCourseManager(actor, course); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return lookupError(err, "course not found", "failed to delete course")
	}
	s.cache.InvalidateDashboards(ctx, course.InstructorID)
	s.logger.Info("course deleted", zap.String("course_id", id), zap.String("actor_id", actor.UserID))
	return nil
}

// Submit sends a DRAFT or REJECTED course with at least one lesson for review.
func (s *CourseService) Submit(ctx context.Context, actor *models.JWTClaims, id string) (*models.Course, error) {
	course, err := loadCourse(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if err := requireCourseOwner(actor, course); err != nil {
		return nil, err
	}
	if !course.Status.Submittable() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("a %s course cannot be submitted", strings.ToLower(string(course.Status))))
	}

	count, err := s.lessons.CountByCourse(ctx, id)
	if err != nil {
		return nil, internalError(err, "failed to count lessons")
	}
	if count == 0 {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrPreconditionFailed, "add at least one lesson before submitting"),
			map[string]interface{}{"lessonCount": 0},
		)
	}

	return s.transition(ctx, course, models.CourseStatusPending, nil)
}

// Approve publishes a PENDING course and notifies its instructor.
func (s *CourseService) Approve(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}
	course, err = s.transition(ctx, course, models.CourseStatusPublished, nil)
	if err != nil {
		return nil, err
	}
	s.notifyInstructor(ctx, course, "Your course was approved",
		fmt.Sprintf("Good news! %q is now published in the catalog.", course.Title))
	return course, nil
}

// Reject returns a PENDING course to its instructor with a reason.
func (s *CourseService) Reject(ctx context.Context, id string, req models.RejectCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid rejection payload")
	}
	course, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	course, err = s.transition(ctx, course, models.CourseStatusRejected, &reason)
	if err != nil {
		return nil, err
	}
	s.notifyInstructor(ctx, course, "Your course needs changes",
		fmt.Sprintf("%q was not approved.\n\nReason: %s\n\nEdit the course and submit it again when ready.", course.Title, reason))
	return course, nil
}

func (s *CourseService) pending(ctx context.Context, id string) (*models.Course, error) {
	course, err := loadCourse(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if course.Status != models.CourseStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course is not pending review")
	}
	return course, nil
}

func (s *CourseService) transition(ctx context.Context, course *models.Course, status models.CourseStatus, reason *string) (*models.Course, error) {
	if err := s.repo.UpdateStatus(ctx, course.ID, status, reason); err != nil {
		return nil, lookupError(err, "course not found", "failed to update course status")
	}
	course.Status = status
	course.RejectionReason = reason
	s.metrics.CourseTransitioned(status)
	s.cache.InvalidateDashboards(ctx, course.InstructorID)
	s.logger.Info("course status changed", zap.String("course_id", course.ID), zap.String("status", string(status)))
	return course, nil
}

func (s *CourseService) notifyInstructor(ctx context.Context, course *models.Course, subject, body string) {
	if s.mail == nil || s.users == nil {
		return
	}
	instructor, err := s.users.FindByID(ctx, course.InstructorID)
	if err != nil {
		s.logger.Warn("failed to load instructor for notification", zap.String("course_id", course.ID), zap.Error(err))
		return
	}
	msg := mailer.Message{
		ToName:    instructor.FullName,
		ToAddress: instructor.Email,
		Subject:   subject,
		Text:      fmt.Sprintf("Hi %s,\n\n%s", instructor.FullName, body),
	}
	if err := s.mail.Dispatch(msg); err != nil {
		s.logger.Warn("failed to queue moderation mail", zap.String("course_id", course.ID), zap.Error(err))
	}
}
