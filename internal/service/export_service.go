package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/dto"
	"github.com/noah-isme/lms-api/internal/gamification"
	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/internal/repository"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
	"github.com/noah-isme/lms-api/pkg/export"
	"github.com/noah-isme/lms-api/pkg/jobs"
	"github.com/noah-isme/lms-api/pkg/middleware/requestid"
)

const jobTypeGradebookExport = "gradebook_export"

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
	ClearFile(ctx context.Context, id string) error
}

type gradebookReader interface {
	GradebookRows(ctx context.Context, courseID string, includeDropped bool) ([]models.GradebookRow, error)
	GradebookScores(ctx context.Context, courseID string) ([]models.GradebookScore, error)
}

type assignmentLister interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error)
}

type exportFileStore interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, int64, error)
	Delete(name string) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// ExportServiceConfig tunes download links and retention of generated files.
type ExportServiceConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportDownload is an opened gradebook file ready to stream.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	Size        int64
	ExpiresAt   time.Time
}

// ExportService accepts gradebook export requests and serves their results.
type ExportService struct {
	repo      exportJobStore
	courses   courseReader
	queue     jobDispatcher
	files     exportFileStore
	signer    attachmentSigner
	renderers map[models.ExportFormat]export.Renderer
	validate  *validator.Validate
	logger    *zap.Logger
	cfg       ExportServiceConfig
	now       func() time.Time
}

// NewExportService constructs the service.
func NewExportService(repo exportJobStore, courses courseReader, queue jobDispatcher, files exportFileStore, signer attachmentSigner, renderers map[models.ExportFormat]export.Renderer, validate *validator.Validate, logger *zap.Logger, cfg ExportServiceConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		repo:      repo,
		courses:   courses,
		queue:     queue,
		files:     files,
		signer:    signer,
		renderers: renderers,
		validate:  validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// DefaultRenderers returns the csv, pdf and xlsx gradebook renderers.
func DefaultRenderers() map[models.ExportFormat]export.Renderer {
	return map[models.ExportFormat]export.Renderer{
		models.ExportFormatCSV:  export.NewCSVExporter(),
		models.ExportFormatPDF:  export.NewPDFExporter(),
		models.ExportFormatXLSX: export.NewXLSXExporter(),
	}
}

// Request persists a QUEUED export job for a course and hands it to the workers.
func (s *ExportService) Request(ctx context.Context, actor *models.JWTClaims, courseID string, req models.CreateExportRequest) (*dto.ExportJobResponse, error) {
	req.Format = models.ExportFormat(strings.ToLower(string(req.Format)))
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err, "invalid export request")
	}
	if _, ok := s.renderers[req.Format]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	if err := requireCourseManager(actor, course); err != nil {
		return nil, err
	}

	job := &models.ExportJob{
		CourseID:  course.ID,
		Params:    models.ExportJobParams{Format: req.Format, IncludeDropped: req.IncludeDropped},
		Status:    models.ExportStatusQueued,
		CreatedBy: actor.UserID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, internalError(err, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: jobTypeGradebookExport}); err != nil {
		failed := models.ExportStatusFailed
		msg := "failed to enqueue job"
		progress := 100
		now := s.now().UTC()
		if updateErr := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
			Status:       &failed,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		}); updateErr != nil {
			s.logger.Warn("failed to mark export failed", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return nil, internalError(err, "failed to enqueue export job")
	}
	s.logger.Info("gradebook export queued",
		zap.String("job_id", job.ID),
		zap.String("course_id", course.ID),
		zap.String("format", string(req.Format)),
		zap.String("request_id", requestid.FromContext(ctx)),
	)
	return &dto.ExportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// Status reports job progress. Only the creator or an admin may read it.
func (s *ExportService) Status(ctx context.Context, actor *models.JWTClaims, id string) (*dto.ExportStatusResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin(actor) && job.CreatedBy != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	resp := &dto.ExportStatusResponse{
		ID:       job.ID,
		CourseID: job.CourseID,
		Format:   job.Params.Format,
		Status:   job.Status,
		Progress: job.Progress,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.ErrorMessage = job.ErrorMessage
	}
	if job.Status == models.ExportStatusFinished && job.FilePath != nil {
		token, expiresAt, err := s.signer.Generate(job.ID, *job.FilePath)
		if err != nil {
			return nil, internalError(err, "failed to sign download url")
		}
		url := s.cfg.APIPrefix + "/exports/download/" + token
		expires := expiresAt.UTC().Format(time.RFC3339)
		resp.DownloadURL = &url
		resp.ExpiresAt = &expires
	}
	return resp, nil
}

// Download validates a signed token and opens the generated file.
func (s *ExportService) Download(ctx context.Context, token string) (*ExportDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ExportStatusFinished || job.FilePath == nil || *job.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export file not available")
	}
	file, size, err := s.files.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export file not available")
	}
	contentType := "application/octet-stream"
	if renderer, ok := s.renderers[job.Params.Format]; ok {
		contentType = renderer.ContentType()
	}
	return &ExportDownload{
		File:        file,
		Filename:    filepath.Base(relPath),
		ContentType: contentType,
		Size:        size,
		ExpiresAt:   expiresAt,
	}, nil
}

// RecoverPending re-dispatches jobs left QUEUED by a previous process.
func (s *ExportService) RecoverPending(ctx context.Context) int {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to list queued exports", zap.Error(err))
		return 0
	}
	requeued := 0
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: jobTypeGradebookExport}); err != nil {
			s.logger.Warn("failed to requeue export", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		requeued++
	}
	return requeued
}

// Cleanup removes files of jobs finished longer than the retention window ago.
func (s *ExportService) Cleanup(ctx context.Context) error {
	const batch = 100
	cutoff := s.now().Add(-s.cfg.ResultTTL)
	removed := 0
	for {
		expired, err := s.repo.ListFinishedBefore(ctx, cutoff, batch)
		if err != nil {
			return fmt.Errorf("list expired exports: %w", err)
		}
		for _, job := range expired {
			if job.FilePath != nil {
				if err := s.files.Delete(*job.FilePath); err != nil {
					s.logger.Warn("failed to delete export file", zap.String("job_id", job.ID), zap.Error(err))
					continue
				}
			}
			if err := s.repo.ClearFile(ctx, job.ID); err != nil {
				return fmt.Errorf("clear export %s: %w", job.ID, err)
			}
			removed++
		}
		if len(expired) < batch {
			break
		}
	}
	if removed > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", removed))
	}
	return nil
}

func (s *ExportService) load(ctx context.Context, id string) (*models.ExportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "export job not found", "failed to load export job")
	}
	return job, nil
}

// ExportWorker renders queued gradebook jobs into files.
type ExportWorker struct {
	repo        exportJobStore
	gradebook   gradebookReader
	courses     courseReader
	lessons     lessonCounter
	assignments assignmentLister
	files       exportFileStore
	renderers   map[models.ExportFormat]export.Renderer
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewExportWorker constructs a worker.
func NewExportWorker(repo exportJobStore, gradebook gradebookReader, courses courseReader, lessons lessonCounter, assignments assignmentLister, files exportFileStore, renderers map[models.ExportFormat]export.Renderer, metrics *MetricsService, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportWorker{
		repo:        repo,
		gradebook:   gradebook,
		courses:     courses,
		lessons:     lessons,
		assignments: assignments,
		files:       files,
		renderers:   renderers,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Handle processes one queue job. Errors are returned so the queue retries.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			w.logger.Warn("export job vanished", zap.String("job_id", job.ID))
			return nil
		}
		return err
	}
	if record.Status == models.ExportStatusFinished || record.Status == models.ExportStatusFailed {
		return nil
	}

	processing := models.ExportStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &processing, Progress: &progress}); err != nil {
		return err
	}

	relPath, err := w.generate(ctx, record)
	if err != nil {
		queued := models.ExportStatusQueued
		reset := 0
		msg := err.Error()
		if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
			Status:       &queued,
			Progress:     &reset,
			ErrorMessage: &msg,
		}); updateErr != nil {
			w.logger.Warn("failed to requeue export", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return err
	}

	finished := models.ExportStatusFinished
	progress = 100
	now := w.now().UTC()
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:       &finished,
		Progress:     &progress,
		FilePath:     &relPath,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		_ = w.files.Delete(relPath)
		return err
	}
	w.metrics.ExportFinished(models.ExportStatusFinished)
	w.logger.Info("gradebook export finished", zap.String("job_id", job.ID), zap.String("path", relPath))
	return nil
}

// Fail marks a job FAILED once the queue has given up on it.
func (w *ExportWorker) Fail(ctx context.Context, job jobs.Job, cause error) {
	failed := models.ExportStatusFailed
	progress := 100
	now := w.now().UTC()
	msg := cause.Error()
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:       &failed,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark export failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	w.metrics.ExportFinished(models.ExportStatusFailed)
}

func (w *ExportWorker) generate(ctx context.Context, job *models.ExportJob) (string, error) {
	renderer, ok := w.renderers[job.Params.Format]
	if !ok {
		return "", fmt.Errorf("unsupported export format %q", job.Params.Format)
	}
	course, err := w.courses.FindByID(ctx, job.CourseID)
	if err != nil {
		return "", fmt.Errorf("load course: %w", err)
	}
	dataset, err := w.dataset(ctx, course, job.Params.IncludeDropped)
	if err != nil {
		return "", err
	}
	payload, err := renderer.Render(dataset)
	if err != nil {
		return "", fmt.Errorf("render gradebook: %w", err)
	}
	name := fmt.Sprintf("gradebooks/%s/%s_%s.%s", course.ID, job.ID, sanitizeFilename(course.Title), renderer.Extension())
	stored, err := w.files.Save(name, payload)
	if err != nil {
		return "", fmt.Errorf("store gradebook: %w", err)
	}
	return stored, nil
}

// Gradebook column headers preceding the per-assignment score columns.
const (
	gradebookStudent  = "Student"
	gradebookEmail    = "Email"
	gradebookStatus   = "Status"
	gradebookProgress = "Progress %"
	gradebookBadges   = "Badges"
)

func (w *ExportWorker) dataset(ctx context.Context, course *models.Course, includeDropped bool) (export.Dataset, error) {
	total, err := w.lessons.CountByCourse(ctx, course.ID)
	if err != nil {
		return export.Dataset{}, fmt.Errorf("count lessons: %w", err)
	}
	assignments, err := w.assignments.ListByCourse(ctx, course.ID)
	if err != nil {
		return export.Dataset{}, fmt.Errorf("list assignments: %w", err)
	}
	rows, err := w.gradebook.GradebookRows(ctx, course.ID, includeDropped)
	if err != nil {
		return export.Dataset{}, fmt.Errorf("load gradebook rows: %w", err)
	}
	scores, err := w.gradebook.GradebookScores(ctx, course.ID)
	if err != nil {
		return export.Dataset{}, fmt.Errorf("load gradebook scores: %w", err)
	}

	headers := []string{gradebookStudent, gradebookEmail, gradebookStatus, gradebookProgress, gradebookBadges}
	columns := make(map[string]string, len(assignments))
	seen := make(map[string]int, len(assignments))
	for _, assignment := range assignments {
		label := assignment.Title
		seen[label]++
		if n := seen[label]; n > 1 {
			label = fmt.Sprintf("%s (%d)", label, n)
		}
		columns[assignment.ID] = label
		headers = append(headers, label)
	}

	byStudent := make(map[string]map[string]string, len(rows))
	for _, score := range scores {
		label, ok := columns[score.AssignmentID]
		if !ok || score.Score == nil {
			continue
		}
		if byStudent[score.StudentID] == nil {
			byStudent[score.StudentID] = make(map[string]string)
		}
		byStudent[score.StudentID][label] = strconv.Itoa(*score.Score)
	}

	records := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		percent := gamification.CompletionPercent(row.CompletedLessons, total)
		record := map[string]string{
			gradebookStudent:  row.StudentName,
			gradebookEmail:    row.StudentEmail,
			gradebookStatus:   string(row.Status),
			gradebookProgress: strconv.Itoa(gamification.RoundPercent(percent)),
			gradebookBadges:   strconv.Itoa(row.BadgeCount),
		}
		for label, value := range byStudent[row.StudentID] {
			record[label] = value
		}
		records = append(records, record)
	}

	return export.Dataset{
		Title:   course.Title + " gradebook",
		Headers: headers,
		Rows:    records,
	}, nil
}
