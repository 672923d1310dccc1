package service

import (
	"bytes"
	"context"
	"database/sql"
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
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
	"github.com/noah-isme/lms-api/pkg/storage"
)

func (f fakeLessonRepo) Create(_ context.Context, lesson *models.Lesson) error {
	lesson.ID = fmt.Sprintf("l%d", len(f.lessons)+1)
	f.lessons[lesson.ID] = *lesson
	return nil
}

func (f fakeLessonRepo) NextOrderIndex(_ context.Context, courseID string) (int, error) {
	next := 0
	for _, l := range f.courseLessons(courseID) {
		if l.OrderIndex >= next {
			next = l.OrderIndex + 1
		}
	}
	return next, nil
}

func (f fakeLessonRepo) Update(_ context.Context, lesson *models.Lesson) error {
	if _, ok := f.lessons[lesson.ID]; !ok {
		return sql.ErrNoRows
	}
	f.lessons[lesson.ID] = *lesson
	return nil
}

func (f fakeLessonRepo) UpdateAttachment(_ context.Context, id, path, name, contentType string) error {
	l, ok := f.lessons[id]
	if !ok {
		return sql.ErrNoRows
	}
	l.FilePath, l.FileName, l.FileType = &path, &name, &contentType
	f.lessons[id] = l
	return nil
}

func (f fakeLessonRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.lessons[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.lessons, id)
	return nil
}

type lessonFixture struct {
	store   *learningStore
	courses *fakeCourseRepo
	files   *storage.LocalStorage
	svc     *LessonService
}

func newLessonFixture(t *testing.T, status models.CourseStatus) *lessonFixture {
	t.Helper()
	store := newLearningStore()
	store.addLessons("c1", "l1", "l2", "l3")
	courses := newFakeCourseRepo(models.Course{ID: "c1", InstructorID: "inst-1", Status: status})
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewLessonService(fakeLessonRepo{store}, courses, fakeEnrollmentRepo{store}, fakeProgressRepo{store}, files, signer, validator.New(), zap.NewNop(), LessonServiceConfig{
		MaxFileSize:  1024,
		AllowedMIMEs: []string{"application/pdf", "text/plain"},
		APIPrefix:    "/api/v1",
	})
	return &lessonFixture{store: store, courses: courses, files: files, svc: svc}
}

func TestListForCourseMasksLockedLessons(t *testing.T) {
	fx := newLessonFixture(t, models.CourseStatusPublished)
	content := "secret body"
	l2 := fx.store.lessons["l2"]
	l2.Content = &content
	fx.store.lessons["l2"] = l2
	fx.store.enroll("s1", "c1", models.EnrollmentStatusActive)
	fx.store.progress["s1/l1"] = models.LessonProgress{ID: "p1", StudentID: "s1", LessonID: "l1"}

	views, err := fx.svc.ListForCourse(context.Background(), studentClaims, "c1")
	require.NoError(t, err)
	require.Len(t, views, 3)

	assert.False(t, views[0].Locked)
	require.NotNil(t, views[0].Completed)
	assert.True(t, *views[0].Completed)

	assert.False(t, views[1].Locked)
	require.NotNil(t, views[1].Content)
	assert.Equal(t, "secret body", *views[1].Content)
	assert.False(t, *views[1].Completed)

	assert.True(t, views[2].Locked)
	assert.Equal(t, "l3", views[2].ID)
	assert.Equal(t, 2, views[2].OrderIndex)
	assert.Nil(t, views[2].Content)
	assert.Nil(t, views[2].VideoURL)
	assert.Nil(t, views[2].FileURL)
	assert.Empty(t, views[2].CourseID)
}

func TestListForCourseVisibility(t *testing.T) {
	draft := newLessonFixture(t, models.CourseStatusDraft)
	_, err := draft.svc.ListForCourse(context.Background(), studentClaims, "c1")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	views, err := draft.svc.ListForCourse(context.Background(), instructorClaims, "c1")
	require.NoError(t, err)
	for _, v := range views {
		assert.False(t, v.Locked)
		assert.Nil(t, v.Completed)
	}

	published := newLessonFixture(t, models.CourseStatusPublished)
	views, err = published.svc.ListForCourse(context.Background(), nil, "c1")
	require.NoError(t, err)
	for _, v := range views {
		assert.True(t, v.Locked, v.ID)
	}

	published.store.enroll("s1", "c1", models.EnrollmentStatusBanned)
	_, err = published.svc.ListForCourse(context.Background(), studentClaims, "c1")
	assert.Equal(t, appErrors.ErrEnrollmentBanned.Code, appErrors.FromError(err).Code)
}

func TestGetLessonEnforcesUnlockOrder(t *testing.T) {
	fx := newLessonFixture(t, models.CourseStatusPublished)
	ctx := context.Background()

	_, err := fx.svc.Get(ctx, studentClaims, "l1")
	assert.Equal(t, appErrors.ErrNotEnrolled.Code, appErrors.FromError(err).Code)

	fx.store.enroll("s1", "c1", models.EnrollmentStatusActive)
	view, err := fx.svc.Get(ctx, studentClaims, "l1")
	require.NoError(t, err)
	assert.False(t, view.Locked)

	_, err = fx.svc.Get(ctx, studentClaims, "l2")
	assert.Equal(t, appErrors.ErrLessonLocked.Code, appErrors.FromError(err).Code)

	fx.store.progress["s1/l1"] = models.LessonProgress{ID: "p1", StudentID: "s1", LessonID: "l1"}
	_, err = fx.svc.Get(ctx, studentClaims, "l2")
	assert.NoError(t, err)

	_, err = fx.svc.Get(ctx, instructorClaims, "l3")
	assert.NoError(t, err)
}

func TestCreateLessonAppendsToCourse(t *testing.T) {
	fx := newLessonFixture(t, models.CourseStatusDraft)
	ctx := context.Background()

	view, err := fx.svc.Create(ctx, instructorClaims, "c1", models.CreateLessonRequest{Title: " Closures "})
	require.NoError(t, err)
	assert.Equal(t, "Closures", view.Title)
	assert.Equal(t, 3, view.OrderIndex)

	index := 0
	view, err = fx.svc.Create(ctx, instructorClaims, "c1", models.CreateLessonRequest{Title: "Intro", OrderIndex: &index})
	require.NoError(t, err)
	assert.Equal(t, 0, view.OrderIndex)

	_, err = fx.svc.Create(ctx, otherInstructor, "c1", models.CreateLessonRequest{Title: "Nope"})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	_, err = fx.svc.Create(ctx, adminClaims, "c1", models.CreateLessonRequest{Title: "Nope"})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUploadAttachmentValidatesAndSigns(t *testing.T) {
	fx := newLessonFixture(t, models.CourseStatusPublished)
	ctx := context.Background()
	body := "%PDF-1.4 lesson notes"

	_, err := fx.svc.UploadAttachment(ctx, instructorClaims, "l1", AttachmentUpload{
		Filename: "big.pdf", Size: 4096, Content: strings.NewReader(body),
	})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = fx.svc.UploadAttachment(ctx, instructorClaims, "l1", AttachmentUpload{
		Filename: "clip.png", Size: 8, Content: bytes.NewReader([]byte("\x89PNG\r\n\x1a\n")),
	})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	view, err := fx.svc.UploadAttachment(ctx, instructorClaims, "l1", AttachmentUpload{
		Filename: "../Week 1 Notes.pdf", Size: int64(len(body)), Content: strings.NewReader(body),
	})
	require.NoError(t, err)
	require.NotNil(t, view.FileURL)
	assert.True(t, strings.HasPrefix(*view.FileURL, "/api/v1/files/"))
	assert.Equal(t, "Week 1 Notes.pdf", *view.FileName)

	stored := fx.store.lessons["l1"]
	require.NotNil(t, stored.FilePath)
	assert.True(t, strings.HasPrefix(*stored.FilePath, "lessons/l1/"))
	assert.True(t, strings.HasSuffix(*stored.FilePath, "week_1_notes.pdf"))
	assert.Equal(t, "application/pdf", *stored.FileType)

	token := strings.TrimPrefix(*view.FileURL, "/api/v1/files/")
	download, err := fx.svc.OpenAttachment(ctx, token)
	require.NoError(t, err)
	defer download.File.Close() //nolint:errcheck
	data, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
	assert.Equal(t, "Week 1 Notes.pdf", download.Filename)
	assert.Equal(t, "application/pdf", download.MimeType)

	_, err = fx.svc.OpenAttachment(ctx, token+"x")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUploadAttachmentReplacesPreviousFile(t *testing.T) {
	fx := newLessonFixture(t, models.CourseStatusPublished)
	ctx := context.Background()

	first, err := fx.svc.UploadAttachment(ctx, instructorClaims, "l1", AttachmentUpload{
		Filename: "a.txt", Size: 5, MimeType: "text/plain; charset=utf-8", Content: strings.NewReader("first"),
	})
	require.NoError(t, err)
	oldToken := strings.TrimPrefix(*first.FileURL, "/api/v1/files/")
	oldPath := *fx.store.lessons["l1"].FilePath

	_, err = fx.svc.UploadAttachment(ctx, instructorClaims, "l1", AttachmentUpload{
		Filename: "b.txt", Size: 6, MimeType: "text/plain", Content: strings.NewReader("second"),
	})
	require.NoError(t, err)

	_, _, err = fx.files.Open(oldPath)
	assert.Error(t, err)
	_, err = fx.svc.OpenAttachment(ctx, oldToken)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDeleteLessonRemovesAttachment(t *testing.T) {
	fx := newLessonFixture(t, models.CourseStatusPublished)
	ctx := context.Background()

	_, err := fx.svc.UploadAttachment(ctx, instructorClaims, "l2", AttachmentUpload{
		Filename: "notes.txt", Size: 5, MimeType: "text/plain", Content: strings.NewReader("notes"),
	})
	require.NoError(t, err)
	path := *fx.store.lessons["l2"].FilePath

	err = fx.svc.Delete(ctx, otherInstructor, "l2")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, fx.svc.Delete(ctx, instructorClaims, "l2"))
	_, ok := fx.store.lessons["l2"]
	assert.False(t, ok)
	_, _, err = fx.files.Open(path)
	assert.Error(t, err)
}
