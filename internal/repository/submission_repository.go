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

const submissionDetailSelect = `SELECT s.id, s.assignment_id, s.student_id, s.content, s.score, s.feedback, s.submitted_at, s.graded_at, s.graded_by,
	u.full_name AS student_name, a.title AS assignment_title, a.course_id, a.max_score
FROM submissions s
JOIN assignments a ON a.id = s.assignment_id
JOIN users u ON u.id = s.student_id`

// SubmissionRepository persists assignment submissions and grades.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// FindByAssignmentStudent returns the submission of a student for an assignment.
func (r *SubmissionRepository) FindByAssignmentStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	const query = `SELECT id, assignment_id, student_id, content, score, feedback, submitted_at, graded_at, graded_by
FROM submissions WHERE assignment_id = $1 AND student_id = $2`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission: %w", err)
	}
	return &submission, nil
}

// Create inserts a submission.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	submission.SubmittedAt = time.Now().UTC()
	const query = `INSERT INTO submissions (id, assignment_id, student_id, content, score, feedback, submitted_at, graded_at, graded_by)
VALUES (:id, :assignment_id, :student_id, :content, :score, :feedback, :submitted_at, :graded_at, :graded_by)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// UpdateContent replaces the content of an ungraded submission. Graded rows are left untouched
// and reported as sql.ErrNoRows.
func (r *SubmissionRepository) UpdateContent(ctx context.Context, id, content string, submittedAt time.Time) error {
	const query = `UPDATE submissions SET content = $2, submitted_at = $3 WHERE id = $1 AND graded_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, content, submittedAt)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	return requireAffected(res)
}

// FindDetailByID returns a submission with assignment metadata.
func (r *SubmissionRepository) FindDetailByID(ctx context.Context, id string) (*models.SubmissionDetail, error) {
	query := submissionDetailSelect + ` WHERE s.id = $1`
	var detail models.SubmissionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission detail: %w", err)
	}
	return &detail, nil
}

// ListByAssignment returns every submission of an assignment.
func (r *SubmissionRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error) {
	query := submissionDetailSelect + ` WHERE s.assignment_id = $1 ORDER BY s.submitted_at ASC`
	var items []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &items, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list assignment submissions: %w", err)
	}
	return items, nil
}

// ListByStudent returns a student's submissions across courses.
func (r *SubmissionRepository) ListByStudent(ctx context.Context, studentID string) ([]models.SubmissionDetail, error) {
	query := submissionDetailSelect + ` WHERE s.student_id = $1 ORDER BY s.submitted_at DESC`
	var items []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &items, query, studentID); err != nil {
		return nil, fmt.Errorf("list student submissions: %w", err)
	}
	return items, nil
}

// Grade records a score and feedback.
func (r *SubmissionRepository) Grade(ctx context.Context, id string, score int, feedback *string, gradedBy string, gradedAt time.Time) error {
	const query = `UPDATE submissions SET score = $2, feedback = $3, graded_by = $4, graded_at = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, score, feedback, gradedBy, gradedAt)
	if err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}
	return requireAffected(res)
}
