package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/gamification"
	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type progressLessonRepository interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Lesson, error)
	CountByCourse(ctx context.Context, courseID string) (int, error)
	ListIDsByCourse(ctx context.Context, courseID string) ([]string, error)
}

type progressEnrollmentRepository interface {
	FindByStudentCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	MarkCompleted(ctx context.Context, studentID, courseID string) (bool, error)
}

type lessonProgressRepository interface {
	Create(ctx context.Context, progress *models.LessonProgress) (*models.LessonProgress, bool, error)
	CountCompleted(ctx context.Context, studentID string, lessonIDs []string) (int, error)
	CompletedLessonIDs(ctx context.Context, studentID, courseID string) ([]string, error)
}

type badgeAwardRepository interface {
	ListTypes(ctx context.Context, studentID, courseID string) ([]gamification.Tier, error)
	Award(ctx context.Context, badge *models.Badge) (bool, error)
}

// Evaluation is the outcome of re-evaluating a student's standing in one course.
type Evaluation struct {
	NewBadges       []gamification.Tier
	Percent         float64
	CourseCompleted bool
}

// ProgressService records lesson completions and keeps badges and enrollment status in step with them.
type ProgressService struct {
	lessons     progressLessonRepository
	enrollments progressEnrollmentRepository
	progress    lessonProgressRepository
	badges      badgeAwardRepository
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewProgressService constructs ProgressService.
func NewProgressService(lessons progressLessonRepository, enrollments progressEnrollmentRepository, progress lessonProgressRepository, badges badgeAwardRepository, metrics *MetricsService, logger *zap.Logger) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{lessons: lessons, enrollments: enrollments, progress: progress, badges: badges, metrics: metrics, logger: logger}
}

// CompleteLesson marks a lesson complete for a student and re-evaluates the course.
// Completing an already completed lesson succeeds and awards nothing new.
func (s *ProgressService) CompleteLesson(ctx context.Context, studentID, lessonID string) (*models.CompletionResult, error) {
	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		return nil, lookupError(err, "lesson not found", "failed to load lesson")
	}

	if _, err := s.requireLearner(ctx, studentID, lesson.CourseID); err != nil {
		return nil, err
	}

	completedIDs, err := s.progress.CompletedLessonIDs(ctx, studentID, lesson.CourseID)
	if err != nil {
		return nil, internalError(err, "failed to load progress")
	}
	completed := toSet(completedIDs)
	if !completed[lesson.ID] {
		lessons, err := s.lessons.ListByCourse(ctx, lesson.CourseID)
		if err != nil {
			return nil, internalError(err, "failed to load lessons")
		}
		if !lessonSequence(lessons).IsUnlocked(lesson.ID, completed) {
			return nil, appErrors.Clone(appErrors.ErrLessonLocked, "")
		}
	}

	record, created, err := s.progress.Create(ctx, &models.LessonProgress{StudentID: studentID, LessonID: lesson.ID})
	if err != nil {
		return nil, internalError(err, "failed to record lesson progress")
	}
	if created {
		s.metrics.LessonCompleted()
	}

	eval, err := s.Evaluate(ctx, studentID, lesson.CourseID)
	if err != nil {
		return nil, err
	}

	return &models.CompletionResult{
		Progress:        *record,
		NewBadges:       eval.NewBadges,
		ProgressPercent: gamification.RoundPercent(eval.Percent),
	}, nil
}

// Evaluate recomputes the completion percent of a student in a course, awards every reached tier
// not yet owned, and marks the enrollment COMPLETED at exactly 100%. It is idempotent.
func (s *ProgressService) Evaluate(ctx context.Context, studentID, courseID string) (*Evaluation, error) {
	eval := &Evaluation{NewBadges: []gamification.Tier{}}

	percent, err := s.Percent(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	if percent == 0 {
		return eval, nil
	}
	eval.Percent = percent

	owned, err := s.badges.ListTypes(ctx, studentID, courseID)
	if err != nil {
		return nil, internalError(err, "failed to load badges")
	}
	have := make(map[gamification.Tier]bool, len(owned))
	for _, tier := range owned {
		have[tier] = true
	}

	for _, tier := range gamification.TiersReached(percent) {
		if have[tier] {
			continue
		}
		created, err := s.badges.Award(ctx, &models.Badge{StudentID: studentID, CourseID: courseID, Type: tier})
		if err != nil {
			return nil, internalError(err, "failed to award badge")
		}
		if !created {
			continue
		}
		eval.NewBadges = append(eval.NewBadges, tier)
		s.metrics.BadgeAwarded(tier)
		s.logger.Info("badge awarded",
			zap.String("student_id", studentID),
			zap.String("course_id", courseID),
			zap.String("tier", string(tier)),
		)
	}

	if gamification.IsComplete(percent) {
		changed, err := s.enrollments.MarkCompleted(ctx, studentID, courseID)
		if err != nil {
			return nil, internalError(err, "failed to complete enrollment")
		}
		if changed {
			eval.CourseCompleted = true
			s.metrics.EnrollmentChanged(models.EnrollmentStatusCompleted)
			s.logger.Info("course completed", zap.String("student_id", studentID), zap.String("course_id", courseID))
		}
	}
	return eval, nil
}

// Percent returns the unrounded completion percent of a student in a course; 0 for a course without lessons.
func (s *ProgressService) Percent(ctx context.Context, studentID, courseID string) (float64, error) {
	total, err := s.lessons.CountByCourse(ctx, courseID)
	if err != nil {
		return 0, internalError(err, "failed to count lessons")
	}
	if total == 0 {
		return 0, nil
	}
	ids, err := s.lessons.ListIDsByCourse(ctx, courseID)
	if err != nil {
		return 0, internalError(err, "failed to list lessons")
	}
	completed, err := s.progress.CountCompleted(ctx, studentID, ids)
	if err != nil {
		return 0, internalError(err, "failed to count completed lessons")
	}
	return gamification.CompletionPercent(completed, total), nil
}

// CourseProgress summarises the caller's completion of a course they are enrolled in.
func (s *ProgressService) CourseProgress(ctx context.Context, studentID, courseID string) (*models.CourseProgress, error) {
	if _, err := s.enrollment(ctx, studentID, courseID); err != nil {
		return nil, err
	}
	ids, err := s.lessons.ListIDsByCourse(ctx, courseID)
	if err != nil {
		return nil, internalError(err, "failed to list lessons")
	}
	completedIDs, err := s.progress.CompletedLessonIDs(ctx, studentID, courseID)
	if err != nil {
		return nil, internalError(err, "failed to load progress")
	}
	if completedIDs == nil {
		completedIDs = []string{}
	}
	return &models.CourseProgress{
		CourseID:           courseID,
		CompletedLessons:   len(completedIDs),
		TotalLessons:       len(ids),
		ProgressPercent:    gamification.RoundPercent(gamification.CompletionPercent(len(completedIDs), len(ids))),
		CompletedLessonIDs: completedIDs,
	}, nil
}

func (s *ProgressService) enrollment(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByStudentCourse(ctx, studentID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "")
		}
		return nil, internalError(err, "failed to load enrollment")
	}
	return enrollment, nil
}

// requireLearner loads an enrollment that may access lessons.
func (s *ProgressService) requireLearner(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	enrollment, err := s.enrollment(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	switch {
	case enrollment.Status == models.EnrollmentStatusBanned:
		return nil, appErrors.Clone(appErrors.ErrEnrollmentBanned, "")
	case !enrollment.Status.CanLearn():
		return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "enrollment is not active")
	}
	return enrollment, nil
}

func lessonSequence(lessons []models.Lesson) gamification.Sequence {
	refs := make([]gamification.LessonRef, len(lessons))
	for i, l := range lessons {
		refs[i] = gamification.LessonRef{ID: l.ID, OrderIndex: l.OrderIndex}
	}
	return gamification.NewSequence(refs)
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
