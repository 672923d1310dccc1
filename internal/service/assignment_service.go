package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/pkg/database"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type assignmentRepository interface {
	Create(ctx context.Context, assignment *models.Assignment) error
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error)
}

type submissionRepository interface {
	FindByAssignmentStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	UpdateContent(ctx context.Context, id, content string, submittedAt time.Time) error
	FindDetailByID(ctx context.Context, id string) (*models.SubmissionDetail, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.SubmissionDetail, error)
	Grade(ctx context.Context, id string, score int, feedback *string, gradedBy string, gradedAt time.Time) error
}

// AssignmentService manages course assignments, student submissions and grading.
type AssignmentService struct {
	assignments assignmentRepository
	submissions submissionRepository
	courses     courseReader
	enrollments enrollmentReader
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(assignments assignmentRepository, submissions submissionRepository, courses courseReader, enrollments enrollmentReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		assignments: assignments,
		submissions: submissions,
		courses:     courses,
		enrollments: enrollments,
		cache:       cache,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create adds an assignment to the caller's course.
func (s *AssignmentService) Create(ctx context.Context, actor *models.JWTClaims, courseID string, req models.CreateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid assignment payload")
	}
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	if err := requireCourseOwner(actor, course); err != nil {
		return nil, err
	}
	assignment := &models.Assignment{
		CourseID:    courseID,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		DueDate:     req.DueDate,
		MaxScore:    req.MaxScore,
	}
	if err := s.assignments.Create(ctx, assignment); err != nil {
		return nil, internalError(err, "failed to create assignment")
	}
	return assignment, nil
}

// ListByCourse returns a course's assignments to its instructor, admins and enrolled students.
func (s *AssignmentService) ListByCourse(ctx context.Context, actor *models.JWTClaims, courseID string) ([]models.Assignment, error) {
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	if !canManageCourse(actor, course) {
		if err := s.requireStudent(ctx, actor, courseID); err != nil {
			return nil, err
		}
	}
	items, err := s.assignments.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, internalError(err, "failed to list assignments")
	}
	if items == nil {
		items = []models.Assignment{}
	}
	return items, nil
}

// Submit stores the student's answer. A resubmission before grading replaces the content;
// graded submissions cannot change.
func (s *AssignmentService) Submit(ctx context.Context, actor *models.JWTClaims, assignmentID string, req models.SubmitAssignmentRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid submission payload")
	}
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		return nil, lookupError(err, "assignment not found", "failed to load assignment")
	}
	if err := s.requireStudent(ctx, actor, assignment.CourseID); err != nil {
		return nil, err
	}

	existing, err := s.submissions.FindByAssignmentStudent(ctx, assignmentID, actor.UserID)
	switch {
	case err == nil:
		return s.resubmit(ctx, existing, req.Content)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, internalError(err, "failed to load submission")
	}

	submission := &models.Submission{AssignmentID: assignmentID, StudentID: actor.UserID, Content: req.Content}
	if err := s.submissions.Create(ctx, submission); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "submission already exists")
		}
		return nil, internalError(err, "failed to create submission")
	}
	s.invalidateFor(ctx, assignment.CourseID)
	return submission, nil
}

func (s *AssignmentService) resubmit(ctx context.Context, submission *models.Submission, content string) (*models.Submission, error) {
	if submission.Graded() {
		return nil, appErrors.Clone(appErrors.ErrGraded, "")
	}
	at := s.now()
	if err := s.submissions.UpdateContent(ctx, submission.ID, content, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrGraded, "")
		}
		return nil, internalError(err, "failed to update submission")
	}
	submission.Content = content
	submission.SubmittedAt = at
	return submission, nil
}

// ListSubmissions returns every submission of an assignment for the course instructor or an admin.
func (s *AssignmentService) ListSubmissions(ctx context.Context, actor *models.JWTClaims, assignmentID string) ([]models.SubmissionDetail, error) {
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		return nil, lookupError(err, "assignment not found", "failed to load assignment")
	}
	course, err := loadCourse(ctx, s.courses, assignment.CourseID)
	if err != nil {
		return nil, err
	}
	if err := requireCourseManager(actor, course); err != nil {
		return nil, err
	}
	items, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, internalError(err, "failed to list submissions")
	}
	if items == nil {
		items = []models.SubmissionDetail{}
	}
	return items, nil
}

// ListMine returns the student's submissions across courses.
func (s *AssignmentService) ListMine(ctx context.Context, studentID string) ([]models.SubmissionDetail, error) {
	items, err := s.submissions.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, internalError(err, "failed to list submissions")
	}
	if items == nil {
		items = []models.SubmissionDetail{}
	}
	return items, nil
}

// Grade scores a submission. Only the course instructor may grade and the score cannot exceed maxScore.
func (s *AssignmentService) Grade(ctx context.Context, actor *models.JWTClaims, submissionID string, req models.GradeSubmissionRequest) (*models.SubmissionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid grade payload")
	}
	detail, err := s.submissions.FindDetailByID(ctx, submissionID)
	if err != nil {
		return nil, lookupError(err, "submission not found", "failed to load submission")
	}
	course, err := loadCourse(ctx, s.courses, detail.CourseID)
	if err != nil {
		return nil, err
	}
	if err := requireCourseOwner(actor, course); err != nil {
		return nil, err
	}
	score := *req.Score
	if score > detail.MaxScore {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("score cannot exceed %d", detail.MaxScore)),
			map[string]interface{}{"maxScore": detail.MaxScore},
		)
	}

	feedback := strPtr(strings.TrimSpace(req.Feedback))
	at := s.now()
	if err := s.submissions.Grade(ctx, submissionID, score, feedback, actor.UserID, at); err != nil {
		return nil, lookupError(err, "submission not found", "failed to grade submission")
	}
	detail.Score = &score
	detail.Feedback = feedback
	detail.GradedBy = &actor.UserID
	detail.GradedAt = &at

	s.cache.InvalidateDashboards(ctx, course.InstructorID)
	s.logger.Info("submission graded", zap.String("submission_id", submissionID), zap.Int("score", score))
	return detail, nil
}

func (s *AssignmentService) requireStudent(ctx context.Context, actor *models.JWTClaims, courseID string) error {
	if actor == nil || actor.Role != models.RoleStudent {
		return appErrors.Clone(appErrors.ErrForbidden, "course access denied")
	}
	enrollment, err := s.enrollments.FindByStudentCourse(ctx, actor.UserID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotEnrolled, "")
		}
		return internalError(err, "failed to load enrollment")
	}
	switch {
	case enrollment.Status == models.EnrollmentStatusBanned:
		return appErrors.Clone(appErrors.ErrEnrollmentBanned, "")
	case !enrollment.Status.CanLearn():
		return appErrors.Clone(appErrors.ErrNotEnrolled, "enrollment is not active")
	}
	return nil
}

func (s *AssignmentService) invalidateFor(ctx context.Context, courseID string) {
	if !s.cache.Enabled() {
		return
	}
	if course, err := s.courses.FindByID(ctx, courseID); err == nil {
		s.cache.InvalidateDashboards(ctx, course.InstructorID)
	}
}
