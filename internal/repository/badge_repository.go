package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-api/internal/gamification"
	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/pkg/database"
)

// BadgeRepository persists awarded badges.
type BadgeRepository struct {
	db *sqlx.DB
}

// NewBadgeRepository constructs the repository.
func NewBadgeRepository(db *sqlx.DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// ListTypes returns the tiers a student already holds for a course.
func (r *BadgeRepository) ListTypes(ctx context.Context, studentID, courseID string) ([]gamification.Tier, error) {
	const query = `SELECT type FROM badges WHERE student_id = $1 AND course_id = $2`
	var tiers []gamification.Tier
	if err := r.db.SelectContext(ctx, &tiers, query, studentID, courseID); err != nil {
		return nil, fmt.Errorf("list badge types: %w", err)
	}
	return tiers, nil
}

// Award inserts a badge unless the (student, course, type) triple already exists.
// It reports whether this call created the row; a concurrent duplicate is not an error.
func (r *BadgeRepository) Award(ctx context.Context, badge *models.Badge) (bool, error) {
	if badge.ID == "" {
		badge.ID = uuid.NewString()
	}
	if badge.AwardedAt.IsZero() {
		badge.AwardedAt = time.Now().UTC()
	}
	const query = `INSERT INTO badges (id, student_id, course_id, type, awarded_at) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (student_id, course_id, type) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, badge.ID, badge.StudentID, badge.CourseID, badge.Type, badge.AwardedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("award badge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("award badge: %w", err)
	}
	return n > 0, nil
}

// ListByStudent returns every badge of a student with course titles.
func (r *BadgeRepository) ListByStudent(ctx context.Context, studentID string) ([]models.BadgeDetail, error) {
	const query = `SELECT b.id, b.student_id, b.course_id, b.type, b.awarded_at, c.title AS course_title
FROM badges b
JOIN courses c ON c.id = b.course_id
WHERE b.student_id = $1
ORDER BY b.awarded_at DESC, b.id ASC`
	var badges []models.BadgeDetail
	if err := r.db.SelectContext(ctx, &badges, query, studentID); err != nil {
		return nil, fmt.Errorf("list student badges: %w", err)
	}
	return badges, nil
}

// ListStudentBadges returns one row per (student, badge), plus one row with a NULL type for
// students holding no badges.
func (r *BadgeRepository) ListStudentBadges(ctx context.Context) ([]models.StudentBadgeRow, error) {
	const query = `SELECT u.id AS student_id, u.full_name, b.type
FROM users u
LEFT JOIN badges b ON b.student_id = u.id
WHERE u.role = 'STUDENT'
ORDER BY u.id ASC`
	var rows []models.StudentBadgeRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list student badges: %w", err)
	}
	return rows, nil
}
