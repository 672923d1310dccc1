package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-api/internal/models"
)

const courseColumns = `c.id, c.title, c.description, c.instructor_id, c.status, c.rejection_reason, c.created_at, c.updated_at`

const courseSummarySelect = `SELECT ` + courseColumns + `,
	u.full_name AS instructor_name,
	(SELECT COUNT(*) FROM lessons l WHERE l.course_id = c.id) AS lesson_count,
	(SELECT COUNT(*) FROM enrollments e WHERE e.course_id = c.id AND e.status IN ('ACTIVE', 'COMPLETED')) AS student_count,
	(SELECT AVG(e.rating)::float8 FROM enrollments e WHERE e.course_id = c.id AND e.rating IS NOT NULL) AS average_rating
FROM courses c
JOIN users u ON u.id = c.instructor_id`

// CourseRepository persists courses and their moderation state.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Create inserts a course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if course.Status == "" {
		course.Status = models.CourseStatusDraft
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, title, description, instructor_id, status, rejection_reason, created_at, updated_at)
VALUES (:id, :title, :description, :instructor_id, :status, :rejection_reason, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// FindByID returns a course.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses c WHERE c.id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// FindSummaryByID returns a course with its catalog aggregates.
func (r *CourseRepository) FindSummaryByID(ctx context.Context, id string) (*models.CourseSummary, error) {
	query := courseSummarySelect + ` WHERE c.id = $1`
	var summary models.CourseSummary
	if err := r.db.GetContext(ctx, &summary, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course summary: %w", err)
	}
	return &summary, nil
}

// List returns course summaries matching filter together with the total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, int, error) {
	where := []string{"1=1"}
	var args []interface{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("c.status = $%d", len(args)))
	}
	if filter.InstructorID != "" {
		args = append(args, filter.InstructorID)
		where = append(where, fmt.Sprintf("c.instructor_id = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		where = append(where, fmt.Sprintf("(c.title ILIKE $%d OR c.description ILIKE $%d)", len(args), len(args)))
	}
	clause := strings.Join(where, " AND ")

	_, pageSize, offset := paginate(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("%s WHERE %s ORDER BY c.created_at DESC, c.id ASC LIMIT %d OFFSET %d", courseSummarySelect, clause, pageSize, offset)

	var courses []models.CourseSummary
	if err := r.db.SelectContext(ctx, &courses, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM courses c WHERE %s", clause)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// Update persists editable fields and the status.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET title = :title, description = :description, status = :status, rejection_reason = :rejection_reason, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, course)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return requireAffected(res)
}

// UpdateStatus moves a course through moderation.
func (r *CourseRepository) UpdateStatus(ctx context.Context, id string, status models.CourseStatus, reason *string) error {
	const query = `UPDATE courses SET status = $2, rejection_reason = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update course status: %w", err)
	}
	return requireAffected(res)
}

// Delete removes a course; lessons, enrollments and badges cascade.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM courses WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return requireAffected(res)
}
