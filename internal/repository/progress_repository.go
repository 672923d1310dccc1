package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lms-api/internal/models"
)

// ProgressRepository stores lesson completion markers.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Create records a completion once per (student, lesson). When the marker already exists
// the stored row is returned and created is false.
func (r *ProgressRepository) Create(ctx context.Context, progress *models.LessonProgress) (*models.LessonProgress, bool, error) {
	if progress.ID == "" {
		progress.ID = uuid.NewString()
	}
	if progress.CompletedAt.IsZero() {
		progress.CompletedAt = time.Now().UTC()
	}
	const insert = `INSERT INTO lesson_progress (id, student_id, lesson_id, completed_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (student_id, lesson_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, insert, progress.ID, progress.StudentID, progress.LessonID, progress.CompletedAt)
	if err != nil {
		return nil, false, fmt.Errorf("create lesson progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("create lesson progress: %w", err)
	}
	if n > 0 {
		return progress, true, nil
	}

	existing, err := r.FindByStudentLesson(ctx, progress.StudentID, progress.LessonID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// FindByStudentLesson returns the completion marker for a lesson.
func (r *ProgressRepository) FindByStudentLesson(ctx context.Context, studentID, lessonID string) (*models.LessonProgress, error) {
	const query = `SELECT id, student_id, lesson_id, completed_at FROM lesson_progress WHERE student_id = $1 AND lesson_id = $2`
	var progress models.LessonProgress
	if err := r.db.GetContext(ctx, &progress, query, studentID, lessonID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find lesson progress: %w", err)
	}
	return &progress, nil
}

// CountCompleted counts how many of lessonIDs the student has completed.
func (r *ProgressRepository) CountCompleted(ctx context.Context, studentID string, lessonIDs []string) (int, error) {
	if len(lessonIDs) == 0 {
		return 0, nil
	}
	const query = `SELECT COUNT(*) FROM lesson_progress WHERE student_id = $1 AND lesson_id = ANY($2)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, pq.Array(lessonIDs)); err != nil {
		return 0, fmt.Errorf("count completed lessons: %w", err)
	}
	return count, nil
}

// CompletedLessonIDs lists the lessons of a course the student has completed.
func (r *ProgressRepository) CompletedLessonIDs(ctx context.Context, studentID, courseID string) ([]string, error) {
	const query = `SELECT lp.lesson_id FROM lesson_progress lp
JOIN lessons l ON l.id = lp.lesson_id
WHERE lp.student_id = $1 AND l.course_id = $2
ORDER BY l.order_index ASC, l.id ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, studentID, courseID); err != nil {
		return nil, fmt.Errorf("list completed lessons: %w", err)
	}
	return ids, nil
}
