package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-api/internal/dto"
)

// DashboardRepository exposes read-optimised aggregate queries for dashboards.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository instantiates the repository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// InstructorCourseCounts groups an instructor's courses by status.
func (r *DashboardRepository) InstructorCourseCounts(ctx context.Context, instructorID string) ([]dto.CountRow, error) {
	const query = `SELECT status AS key, COUNT(*) AS count FROM courses WHERE instructor_id = $1 GROUP BY status`
	return r.counts(ctx, "instructor course counts", query, instructorID)
}

// InstructorStudentCount counts distinct active or completed students across an instructor's courses.
func (r *DashboardRepository) InstructorStudentCount(ctx context.Context, instructorID string) (int, error) {
	const query = `SELECT COUNT(DISTINCT e.student_id) FROM enrollments e
JOIN courses c ON c.id = e.course_id
WHERE c.instructor_id = $1 AND e.status IN ('ACTIVE', 'COMPLETED')`
	return r.scalar(ctx, "instructor student count", query, instructorID)
}

// InstructorPendingGrading counts ungraded submissions on an instructor's courses.
func (r *DashboardRepository) InstructorPendingGrading(ctx context.Context, instructorID string) (int, error) {
	const query = `SELECT COUNT(*) FROM submissions s
JOIN assignments a ON a.id = s.assignment_id
JOIN courses c ON c.id = a.course_id
WHERE c.instructor_id = $1 AND s.graded_at IS NULL`
	return r.scalar(ctx, "instructor pending grading", query, instructorID)
}

// InstructorAverageRating averages every rating left on an instructor's courses.
func (r *DashboardRepository) InstructorAverageRating(ctx context.Context, instructorID string) (*float64, error) {
	const query = `SELECT AVG(e.rating)::float8 FROM enrollments e
JOIN courses c ON c.id = e.course_id
WHERE c.instructor_id = $1 AND e.rating IS NOT NULL`
	var avg *float64
	if err := r.db.GetContext(ctx, &avg, query, instructorID); err != nil {
		return nil, fmt.Errorf("query instructor average rating: %w", err)
	}
	return avg, nil
}

// InstructorTopCourses ranks an instructor's courses by enrolled students.
func (r *DashboardRepository) InstructorTopCourses(ctx context.Context, instructorID string, limit int) ([]dto.CourseHighlight, error) {
	if limit <= 0 {
		limit = 5
	}
	const query = `SELECT c.id AS course_id, c.title,
	COUNT(e.id) FILTER (WHERE e.status IN ('ACTIVE', 'COMPLETED')) AS student_count,
	AVG(e.rating)::float8 AS average_rating
FROM courses c
LEFT JOIN enrollments e ON e.course_id = c.id
WHERE c.instructor_id = $1
GROUP BY c.id, c.title
ORDER BY student_count DESC, c.title ASC
LIMIT $2`
	var items []dto.CourseHighlight
	if err := r.db.SelectContext(ctx, &items, query, instructorID, limit); err != nil {
		return nil, fmt.Errorf("query instructor top courses: %w", err)
	}
	return items, nil
}

// UsersByRole groups accounts by role.
func (r *DashboardRepository) UsersByRole(ctx context.Context) ([]dto.CountRow, error) {
	return r.counts(ctx, "users by role", `SELECT role AS key, COUNT(*) AS count FROM users GROUP BY role`)
}

// CoursesByStatus groups all courses by status.
func (r *DashboardRepository) CoursesByStatus(ctx context.Context) ([]dto.CountRow, error) {
	return r.counts(ctx, "courses by status", `SELECT status AS key, COUNT(*) AS count FROM courses GROUP BY status`)
}

// EnrollmentsByStatus groups all enrollments by status.
func (r *DashboardRepository) EnrollmentsByStatus(ctx context.Context) ([]dto.CountRow, error) {
	return r.counts(ctx, "enrollments by status", `SELECT status AS key, COUNT(*) AS count FROM enrollments GROUP BY status`)
}

// BadgesByTier groups awarded badges by tier.
func (r *DashboardRepository) BadgesByTier(ctx context.Context) ([]dto.CountRow, error) {
	return r.counts(ctx, "badges by tier", `SELECT type AS key, COUNT(*) AS count FROM badges GROUP BY type`)
}

// LessonsCompleted counts every completion marker.
func (r *DashboardRepository) LessonsCompleted(ctx context.Context) (int, error) {
	return r.scalar(ctx, "lessons completed", `SELECT COUNT(*) FROM lesson_progress`)
}

func (r *DashboardRepository) counts(ctx context.Context, label, query string, args ...interface{}) ([]dto.CountRow, error) {
	var rows []dto.CountRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query %s: %w", label, err)
	}
	return rows, nil
}

func (r *DashboardRepository) scalar(ctx context.Context, label, query string, args ...interface{}) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("query %s: %w", label, err)
	}
	return n, nil
}
