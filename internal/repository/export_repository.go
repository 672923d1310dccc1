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

const exportJobColumns = `id, course_id, params, status, progress, file_path, created_by, created_at, finished_at, error_message`

// ExportRepository persists gradebook export jobs and reads gradebook data.
type ExportRepository struct {
	db *sqlx.DB
}

// NewExportRepository constructs the repository.
func NewExportRepository(db *sqlx.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// Create inserts a new export job row with generated defaults.
func (r *ExportRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO export_jobs (id, course_id, params, status, progress, file_path, created_by, created_at, finished_at, error_message)
VALUES (:id, :course_id, :params, :status, :progress, :file_path, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

// GetByID returns a job row by its identifier.
func (r *ExportRepository) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	query := `SELECT ` + exportJobColumns + ` FROM export_jobs WHERE id = $1`
	var job models.ExportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get export job: %w", err)
	}
	return &job, nil
}

// UpdateExportJobParams defines the mutable fields.
type UpdateExportJobParams struct {
	Status       *models.ExportStatus
	Progress     *int
	FilePath     *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update persists the provided changes for a job row.
func (r *ExportRepository) Update(ctx context.Context, id string, params UpdateExportJobParams) error {
	set := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)

	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Progress != nil {
		add("progress", *params.Progress)
	}
	if params.FilePath != nil {
		add("file_path", *params.FilePath)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE export_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update export job: %w", err)
	}
	return nil
}

// ListQueued fetches queued jobs so they can be re-dispatched after a restart.
func (r *ExportRepository) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + exportJobColumns + ` FROM export_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	var jobs []models.ExportJob
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued export jobs: %w", err)
	}
	return jobs, nil
}

// ListFinishedBefore retrieves finished jobs older than cutoff for cleanup.
func (r *ExportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + exportJobColumns + ` FROM export_jobs
WHERE status = 'FINISHED' AND finished_at IS NOT NULL AND finished_at < $1 AND file_path IS NOT NULL
ORDER BY finished_at ASC LIMIT $2`
	var jobs []models.ExportJob
	if err := r.db.SelectContext(ctx, &jobs, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished export jobs: %w", err)
	}
	return jobs, nil
}

// ClearFile detaches the stored file from a job once it has been removed from disk.
func (r *ExportRepository) ClearFile(ctx context.Context, id string) error {
	const query = `UPDATE export_jobs SET file_path = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("clear export file: %w", err)
	}
	return nil
}

// GradebookRows returns one row per enrolled student with lesson and badge counts.
func (r *ExportRepository) GradebookRows(ctx context.Context, courseID string, includeDropped bool) ([]models.GradebookRow, error) {
	query := `SELECT e.student_id, u.full_name AS student_name, u.email AS student_email, e.status,
	(SELECT COUNT(*) FROM lesson_progress lp JOIN lessons l ON l.id = lp.lesson_id WHERE l.course_id = e.course_id AND lp.student_id = e.student_id) AS completed_lessons,
	(SELECT COUNT(*) FROM badges b WHERE b.course_id = e.course_id AND b.student_id = e.student_id) AS badge_count
FROM enrollments e
JOIN users u ON u.id = e.student_id
WHERE e.course_id = $1`
	if !includeDropped {
		query += ` AND e.status IN ('ACTIVE', 'COMPLETED')`
	}
	query += ` ORDER BY u.full_name ASC, e.student_id ASC`
	var rows []models.GradebookRow
	if err := r.db.SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, fmt.Errorf("query gradebook rows: %w", err)
	}
	return rows, nil
}

// GradebookScores returns every submission score of a course.
func (r *ExportRepository) GradebookScores(ctx context.Context, courseID string) ([]models.GradebookScore, error) {
	const query = `SELECT s.student_id, s.assignment_id, s.score FROM submissions s
JOIN assignments a ON a.id = s.assignment_id
WHERE a.course_id = $1`
	var scores []models.GradebookScore
	if err := r.db.SelectContext(ctx, &scores, query, courseID); err != nil {
		return nil, fmt.Errorf("query gradebook scores: %w", err)
	}
	return scores, nil
}
