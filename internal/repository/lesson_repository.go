package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-api/internal/models"
)

const lessonColumns = `id, course_id, title, content, video_url, file_path, file_name, file_type, order_index, created_at, updated_at`

// LessonRepository persists course lessons.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// Create inserts a lesson.
func (r *LessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	lesson.CreatedAt = now
	lesson.UpdatedAt = now
	const query = `INSERT INTO lessons (id, course_id, title, content, video_url, file_path, file_name, file_type, order_index, created_at, updated_at)
VALUES (:id, :course_id, :title, :content, :video_url, :file_path, :file_name, :file_type, :order_index, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

// FindByID returns a lesson.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find lesson: %w", err)
	}
	return &lesson, nil
}

// ListByCourse returns the course lessons in sequence order.
func (r *LessonRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE course_id = $1 ORDER BY order_index ASC, id ASC`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, courseID); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// CountByCourse returns the number of lessons in a course.
func (r *LessonRepository) CountByCourse(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM lessons WHERE course_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, courseID); err != nil {
		return 0, fmt.Errorf("count lessons: %w", err)
	}
	return total, nil
}

// ListIDsByCourse enumerates lesson identifiers of a course.
func (r *LessonRepository) ListIDsByCourse(ctx context.Context, courseID string) ([]string, error) {
	const query = `SELECT id FROM lessons WHERE course_id = $1 ORDER BY order_index ASC, id ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, courseID); err != nil {
		return nil, fmt.Errorf("list lesson ids: %w", err)
	}
	return ids, nil
}

// NextOrderIndex returns the order index that appends a lesson to the end of the course.
func (r *LessonRepository) NextOrderIndex(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COALESCE(MAX(order_index) + 1, 0) FROM lessons WHERE course_id = $1`
	var next int
	if err := r.db.GetContext(ctx, &next, query, courseID); err != nil {
		return 0, fmt.Errorf("next lesson order: %w", err)
	}
	return next, nil
}

// Update persists editable lesson fields.
func (r *LessonRepository) Update(ctx context.Context, lesson *models.Lesson) error {
	lesson.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lessons SET title = :title, content = :content, video_url = :video_url, order_index = :order_index, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, lesson)
	if err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	return requireAffected(res)
}

// UpdateAttachment records the stored attachment of a lesson.
func (r *LessonRepository) UpdateAttachment(ctx context.Context, id, path, name, contentType string) error {
	const query = `UPDATE lessons SET file_path = $2, file_name = $3, file_type = $4, updated_at = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, path, name, contentType, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update lesson attachment: %w", err)
	}
	return requireAffected(res)
}

// Delete removes a lesson; its progress records cascade.
func (r *LessonRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM lessons WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	return requireAffected(res)
}
