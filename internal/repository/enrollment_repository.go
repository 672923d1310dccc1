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

const enrollmentColumns = `id, student_id, course_id, status, rating, review, joined_at, updated_at`

// EnrollmentRepository manages student course enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository creates a new repository instance.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create inserts an enrollment. A second row for the same (student, course) violates the unique key.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	now := time.Now().UTC()
	enrollment.JoinedAt = now
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, student_id, course_id, status, rating, review, joined_at, updated_at)
VALUES (:id, :student_id, :course_id, :status, :rating, :review, :joined_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// FindByStudentCourse returns the enrollment of a student in a course.
func (r *EnrollmentRepository) FindByStudentCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 AND course_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// UpdateStatus sets the status of an enrollment by ID.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return requireAffected(res)
}

// MarkCompleted flips the (student, course) enrollment to COMPLETED and reports whether a row changed.
func (r *EnrollmentRepository) MarkCompleted(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `UPDATE enrollments SET status = 'COMPLETED', updated_at = $3 WHERE student_id = $1 AND course_id = $2 AND status <> 'COMPLETED'`
	res, err := r.db.ExecContext(ctx, query, studentID, courseID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark enrollment completed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark enrollment completed: %w", err)
	}
	return n > 0, nil
}

// Rate stores the student's rating and review.
func (r *EnrollmentRepository) Rate(ctx context.Context, id string, rating int, review *string) error {
	const query = `UPDATE enrollments SET rating = $2, review = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, rating, review, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("rate course: %w", err)
	}
	return requireAffected(res)
}

// ListByStudent returns a student's enrollments with course titles and lesson counts.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.course_id, e.status, e.rating, e.review, e.joined_at, e.updated_at,
	c.title AS course_title,
	(SELECT COUNT(*) FROM lesson_progress lp JOIN lessons l ON l.id = lp.lesson_id WHERE l.course_id = e.course_id AND lp.student_id = e.student_id) AS completed_lessons,
	(SELECT COUNT(*) FROM lessons l WHERE l.course_id = e.course_id) AS total_lessons
FROM enrollments e
JOIN courses c ON c.id = e.course_id
WHERE e.student_id = $1
ORDER BY e.joined_at DESC`
	var items []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &items, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return items, nil
}

// Roster lists the participants of a course with their progress counts.
func (r *EnrollmentRepository) Roster(ctx context.Context, courseID string) ([]models.RosterEntry, error) {
	const query = `SELECT e.id AS enrollment_id, e.student_id, u.full_name AS student_name, u.email AS student_email, e.status, e.joined_at,
	(SELECT COUNT(*) FROM lesson_progress lp JOIN lessons l ON l.id = lp.lesson_id WHERE l.course_id = e.course_id AND lp.student_id = e.student_id) AS completed_lessons,
	(SELECT COUNT(*) FROM lessons l WHERE l.course_id = e.course_id) AS total_lessons
FROM enrollments e
JOIN users u ON u.id = e.student_id
WHERE e.course_id = $1
ORDER BY u.full_name ASC, e.student_id ASC`
	var entries []models.RosterEntry
	if err := r.db.SelectContext(ctx, &entries, query, courseID); err != nil {
		return nil, fmt.Errorf("list course roster: %w", err)
	}
	return entries, nil
}
