package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/internal/repository"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
	"github.com/noah-isme/lms-api/pkg/jobs"
	"github.com/noah-isme/lms-api/pkg/storage"
)

type memoryExportRepo struct {
	jobs map[string]*models.ExportJob
	seq  int
}

func newMemoryExportRepo() *memoryExportRepo {
	return &memoryExportRepo{jobs: make(map[string]*models.ExportJob)}
}

func (m *memoryExportRepo) Create(_ context.Context, job *models.ExportJob) error {
	m.seq++
	job.ID = fmt.Sprintf("job-%d", m.seq)
	job.CreatedAt = time.Now().UTC()
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memoryExportRepo) GetByID(_ context.Context, id string) (*models.ExportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (m *memoryExportRepo) Update(_ context.Context, id string, params repository.UpdateExportJobParams) error {
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.FilePath != nil {
		path := *params.FilePath
		job.FilePath = &path
	}
	if params.ErrorMessage != nil {
		msg := *params.ErrorMessage
		job.ErrorMessage = &msg
	}
	if params.FinishedAt != nil {
		at := *params.FinishedAt
		job.FinishedAt = &at
	}
	return nil
}

func (m *memoryExportRepo) ListQueued(_ context.Context, limit int) ([]models.ExportJob, error) {
	var out []models.ExportJob
	for _, job := range m.jobs {
		if job.Status == models.ExportStatusQueued && len(out) < limit {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *memoryExportRepo) ListFinishedBefore(_ context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	var out []models.ExportJob
	for _, job := range m.jobs {
		if job.Status != models.ExportStatusFinished || job.FinishedAt == nil || job.FilePath == nil {
			continue
		}
		if job.FinishedAt.Before(cutoff) && len(out) < limit {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *memoryExportRepo) ClearFile(_ context.Context, id string) error {
	if job, ok := m.jobs[id]; ok {
		job.FilePath = nil
	}
	return nil
}

type stubGradebook struct {
	rows   []models.GradebookRow
	scores []models.GradebookScore
	err    error
}

func (s stubGradebook) GradebookRows(_ context.Context, _ string, includeDropped bool) ([]models.GradebookRow, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.GradebookRow
	for _, row := range s.rows {
		if !includeDropped && !row.Status.CanLearn() {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (s stubGradebook) GradebookScores(context.Context, string) ([]models.GradebookScore, error) {
	return s.scores, nil
}

type assignmentList []models.Assignment

func (a assignmentList) ListByCourse(context.Context, string) ([]models.Assignment, error) {
	return a, nil
}

type recordingQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type exportFixture struct {
	repo    *memoryExportRepo
	queue   *recordingQueue
	files   *storage.LocalStorage
	service *ExportService
	worker  *ExportWorker
}

func newExportFixture(t *testing.T, gradebook stubGradebook) *exportFixture {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("export-secret", time.Hour)
	repo := newMemoryExportRepo()
	queue := &recordingQueue{}
	courses := newFakeCourseRepo(models.Course{ID: "c1", Title: "Go Basics", InstructorID: "inst-1", Status: models.CourseStatusPublished})
	assignments := assignmentList{
		{ID: "a1", CourseID: "c1", Title: "Quiz", MaxScore: 10},
		{ID: "a2", CourseID: "c1", Title: "Quiz", MaxScore: 20},
	}
	renderers := DefaultRenderers()
	return &exportFixture{
		repo:    repo,
		queue:   queue,
		files:   files,
		service: NewExportService(repo, courses, queue, files, signer, renderers, validator.New(), zap.NewNop(), ExportServiceConfig{ResultTTL: time.Hour}),
		worker:  NewExportWorker(repo, gradebook, courses, fixedLessonCounter(4), assignments, files, renderers, NewMetricsService(), zap.NewNop()),
	}
}

func intPtr(v int) *int { return &v }

func sampleGradebook() stubGradebook {
	return stubGradebook{
		rows: []models.GradebookRow{
			{StudentID: "s1", StudentName: "Ada", StudentEmail: "ada@example.com", Status: models.EnrollmentStatusActive, CompletedLessons: 3, BadgeCount: 2},
			{StudentID: "s2", StudentName: "Bo", StudentEmail: "bo@example.com", Status: models.EnrollmentStatusDropped, CompletedLessons: 1},
		},
		scores: []models.GradebookScore{
			{StudentID: "s1", AssignmentID: "a1", Score: intPtr(8)},
			{StudentID: "s1", AssignmentID: "a2", Score: nil},
		},
	}
}

func TestExportRequestQueuesJob(t *testing.T) {
	fx := newExportFixture(t, sampleGradebook())

	resp, err := fx.service.Request(context.Background(), instructorClaims, "c1", models.CreateExportRequest{Format: "CSV"})
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, resp.Status)
	require.Len(t, fx.queue.jobs, 1)
	assert.Equal(t, resp.ID, fx.queue.jobs[0].ID)
	assert.Equal(t, models.ExportFormatCSV, fx.repo.jobs[resp.ID].Params.Format)

	_, err = fx.service.Request(context.Background(), otherInstructor, "c1", models.CreateExportRequest{Format: "csv"})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = fx.service.Request(context.Background(), adminClaims, "c1", models.CreateExportRequest{Format: "docx"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportRequestMarksFailedWhenQueueRejects(t *testing.T) {
	fx := newExportFixture(t, sampleGradebook())
	fx.queue.err = errors.New("queue stopped")

	_, err := fx.service.Request(context.Background(), adminClaims, "c1", models.CreateExportRequest{Format: "pdf"})
	require.Error(t, err)
	require.Len(t, fx.repo.jobs, 1)
	assert.Equal(t, models.ExportStatusFailed, fx.repo.jobs["job-1"].Status)
}

func TestExportWorkerBuildsGradebook(t *testing.T) {
	fx := newExportFixture(t, sampleGradebook())
	ctx := context.Background()

	queued, err := fx.service.Request(ctx, instructorClaims, "c1", models.CreateExportRequest{Format: "csv"})
	require.NoError(t, err)
	require.NoError(t, fx.worker.Handle(ctx, fx.queue.jobs[0]))

	job := fx.repo.jobs[queued.ID]
	assert.Equal(t, models.ExportStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.FilePath)
	assert.Equal(t, "gradebooks/c1/"+queued.ID+"_go_basics.csv", *job.FilePath)

	status, err := fx.service.Status(ctx, instructorClaims, queued.ID)
	require.NoError(t, err)
	require.NotNil(t, status.DownloadURL)
	assert.True(t, strings.HasPrefix(*status.DownloadURL, "/api/v1/exports/download/"))

	token := strings.TrimPrefix(*status.DownloadURL, "/api/v1/exports/download/")
	download, err := fx.service.Download(ctx, token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "text/csv", download.ContentType)

	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Student,Email,Status,Progress %,Badges,Quiz,Quiz (2)", lines[0])
	assert.Equal(t, "Ada,ada@example.com,ACTIVE,75,2,8,", lines[1])
}

func TestExportWorkerIncludesDroppedWhenAsked(t *testing.T) {
	fx := newExportFixture(t, sampleGradebook())
	ctx := context.Background()

	queued, err := fx.service.Request(ctx, adminClaims, "c1", models.CreateExportRequest{Format: "csv", IncludeDropped: true})
	require.NoError(t, err)
	require.NoError(t, fx.worker.Handle(ctx, fx.queue.jobs[0]))

	file, _, err := fx.files.Open(*fx.repo.jobs[queued.ID].FilePath)
	require.NoError(t, err)
	defer file.Close()
	body, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Bo,bo@example.com,DROPPED,25,0,,")
}

func TestExportWorkerRequeuesThenFails(t *testing.T) {
	fx := newExportFixture(t, stubGradebook{err: errors.New("db down")})
	ctx := context.Background()

	queued, err := fx.service.Request(ctx, instructorClaims, "c1", models.CreateExportRequest{Format: "xlsx"})
	require.NoError(t, err)

	err = fx.worker.Handle(ctx, fx.queue.jobs[0])
	require.Error(t, err)
	job := fx.repo.jobs[queued.ID]
	assert.Equal(t, models.ExportStatusQueued, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "db down")

	fx.worker.Fail(ctx, fx.queue.jobs[0], err)
	assert.Equal(t, models.ExportStatusFailed, fx.repo.jobs[queued.ID].Status)
	assert.NotNil(t, fx.repo.jobs[queued.ID].FinishedAt)

	require.NoError(t, fx.worker.Handle(ctx, fx.queue.jobs[0]))
	assert.Equal(t, models.ExportStatusFailed, fx.repo.jobs[queued.ID].Status)
}

func TestExportStatusRestrictedToCreatorOrAdmin(t *testing.T) {
	fx := newExportFixture(t, sampleGradebook())
	ctx := context.Background()

	queued, err := fx.service.Request(ctx, instructorClaims, "c1", models.CreateExportRequest{Format: "csv"})
	require.NoError(t, err)

	_, err = fx.service.Status(ctx, otherInstructor, queued.ID)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	status, err := fx.service.Status(ctx, adminClaims, queued.ID)
	require.NoError(t, err)
	assert.Nil(t, status.DownloadURL)

	_, err = fx.service.Status(ctx, adminClaims, "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportDownloadRejectsBadTokens(t *testing.T) {
	fx := newExportFixture(t, sampleGradebook())

	_, err := fx.service.Download(context.Background(), "garbage")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportCleanupRemovesExpiredFiles(t *testing.T) {
	fx := newExportFixture(t, sampleGradebook())
	ctx := context.Background()

	queued, err := fx.service.Request(ctx, instructorClaims, "c1", models.CreateExportRequest{Format: "csv"})
	require.NoError(t, err)
	require.NoError(t, fx.worker.Handle(ctx, fx.queue.jobs[0]))
	path := *fx.repo.jobs[queued.ID].FilePath

	require.NoError(t, fx.service.Cleanup(ctx))
	assert.NotNil(t, fx.repo.jobs[queued.ID].FilePath)

	fx.service.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	require.NoError(t, fx.service.Cleanup(ctx))
	assert.Nil(t, fx.repo.jobs[queued.ID].FilePath)
	_, _, err = fx.files.Open(path)
	assert.Error(t, err)
}

func TestExportRecoverPendingRequeues(t *testing.T) {
	fx := newExportFixture(t, sampleGradebook())
	ctx := context.Background()
	_, err := fx.service.Request(ctx, instructorClaims, "c1", models.CreateExportRequest{Format: "csv"})
	require.NoError(t, err)

	fx.queue.jobs = nil
	assert.Equal(t, 1, fx.service.RecoverPending(ctx))
	assert.Len(t, fx.queue.jobs, 1)
}
