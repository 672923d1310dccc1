package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type lessonRepository interface {
	Create(ctx context.Context, lesson *models.Lesson) error
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Lesson, error)
	NextOrderIndex(ctx context.Context, courseID string) (int, error)
	Update(ctx context.Context, lesson *models.Lesson) error
	UpdateAttachment(ctx context.Context, id, path, name, contentType string) error
	Delete(ctx context.Context, id string) error
}

type enrollmentReader interface {
	FindByStudentCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
}

type completedLessonReader interface {
	CompletedLessonIDs(ctx context.Context, studentID, courseID string) ([]string, error)
}

type attachmentStorage interface {
	SaveStream(name string, r io.Reader) (int64, error)
	Open(name string) (*os.File, int64, error)
	Delete(name string) error
}

type attachmentSigner interface {
	Generate(resourceID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (resourceID, relPath string, expiresAt time.Time, err error)
}

// LessonServiceConfig holds upload limits and the public download route.
type LessonServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	APIPrefix    string
}

// AttachmentUpload carries an uploaded file. Content must be seekable so the type can be sniffed.
type AttachmentUpload struct {
	Filename string
	Size     int64
	MimeType string
	Content  io.ReadSeeker
}

// AttachmentDownload is an opened lesson attachment ready for streaming.
type AttachmentDownload struct {
	File     *os.File
	Filename string
	MimeType string
	Size     int64
}

// LessonService manages lessons and applies sequential unlocking to what students can see.
type LessonService struct {
	repo        lessonRepository
	courses     courseReader
	enrollments enrollmentReader
	progress    completedLessonReader
	storage     attachmentStorage
	signer      attachmentSigner
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         LessonServiceConfig
	mimeSet     map[string]struct{}
}

// NewLessonService constructs LessonService with upload defaults.
func NewLessonService(repo lessonRepository, courses courseReader, enrollments enrollmentReader, progress completedLessonReader, storage attachmentStorage, signer attachmentSigner, validate *validator.Validate, logger *zap.Logger, cfg LessonServiceConfig) *LessonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 20 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"application/pdf", "image/png", "image/jpeg", "video/mp4", "application/zip"}
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(mt)] = struct{}{}
	}
	return &LessonService{
		repo:        repo,
		courses:     courses,
		enrollments: enrollments,
		progress:    progress,
		storage:     storage,
		signer:      signer,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		mimeSet:     mimeSet,
	}
}

// ListForCourse returns the course lessons in order. The course instructor and admins see full
// lessons. Enrolled students see the lessons unlocked by their progress and a masked view of
// the rest. Other callers get a syllabus where every lesson is masked.
func (s *LessonService) ListForCourse(ctx context.Context, actor *models.JWTClaims, courseID string) ([]models.LessonView, error) {
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	lessons, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, internalError(err, "failed to list lessons")
	}
	seq := lessonSequence(lessons)
	byID := make(map[string]models.Lesson, len(lessons))
	for _, l := range lessons {
		byID[l.ID] = l
	}
	ordered := seq.Lessons()
	views := make([]models.LessonView, 0, len(ordered))

	if canManageCourse(actor, course) {
		for _, ref := range ordered {
			views = append(views, s.fullView(byID[ref.ID], nil))
		}
		return views, nil
	}
	if course.Status != models.CourseStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	learner, completed, err := s.learnerState(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}
	states := seq.UnlockStates(completed)
	for i, ref := range ordered {
		lesson := byID[ref.ID]
		if !learner || !states[i] {
			views = append(views, lockedView(lesson))
			continue
		}
		done := completed[lesson.ID]
		views = append(views, s.fullView(lesson, &done))
	}
	return views, nil
}

// Get returns one lesson. Students must be enrolled and have completed the previous lesson.
func (s *LessonService) Get(ctx context.Context, actor *models.JWTClaims, lessonID string) (*models.LessonView, error) {
	lesson, err := s.repo.FindByID(ctx, lessonID)
	if err != nil {
		return nil, lookupError(err, "lesson not found", "failed to load lesson")
	}
	course, err := loadCourse(ctx, s.courses, lesson.CourseID)
	if err != nil {
		return nil, err
	}
	if canManageCourse(actor, course) {
		view := s.fullView(*lesson, nil)
		return &view, nil
	}
	if course.Status != models.CourseStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
	}

	learner, completed, err := s.learnerState(ctx, actor, lesson.CourseID)
	if err != nil {
		return nil, err
	}
	if !learner {
		return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "")
	}
	if !completed[lesson.ID] {
		lessons, err := s.repo.ListByCourse(ctx, lesson.CourseID)
		if err != nil {
			return nil, internalError(err, "failed to list lessons")
		}
		if !lessonSequence(lessons).IsUnlocked(lesson.ID, completed) {
			return nil, appErrors.Clone(appErrors.ErrLessonLocked, "")
		}
	}
	done := completed[lesson.ID]
	view := s.fullView(*lesson, &done)
	return &view, nil
}

// Create appends a lesson to a course, or places it at the requested order index.
func (s *LessonService) Create(ctx context.Context, actor *models.JWTClaims, courseID string, req models.CreateLessonRequest) (*models.LessonView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid lesson payload")
	}
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	if err := requireCourseOwner(actor, course); err != nil {
		return nil, err
	}

	lesson := &models.Lesson{
		CourseID: courseID,
		Title:    strings.TrimSpace(req.Title),
		Content:  req.Content,
		VideoURL: req.VideoURL,
	}
	if req.OrderIndex != nil {
		lesson.OrderIndex = *req.OrderIndex
	} else {
		next, err := s.repo.NextOrderIndex(ctx, courseID)
		if err != nil {
			return nil, internalError(err, "failed to compute lesson order")
		}
		lesson.OrderIndex = next
	}

	if err := s.repo.Create(ctx, lesson); err != nil {
		return nil, internalError(err, "failed to create lesson")
	}
	view := s.fullView(*lesson, nil)
	return &view, nil
}

// Update edits a lesson of the caller's course.
func (s *LessonService) Update(ctx context.Context, actor *models.JWTClaims, lessonID string, req models.UpdateLessonRequest) (*models.LessonView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid lesson payload")
	}
	lesson, err := s.ownedLesson(ctx, actor, lessonID)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		lesson.Title = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		lesson.Content = req.Content
	}
	if req.VideoURL != nil {
		lesson.VideoURL = req.VideoURL
	}
	if req.OrderIndex != nil {
		lesson.OrderIndex = *req.OrderIndex
	}
	if err := s.repo.Update(ctx, lesson); err != nil {
		return nil, lookupError(err, "lesson not found", "failed to update lesson")
	}
	view := s.fullView(*lesson, nil)
	return &view, nil
}

// Delete removes a lesson and its stored attachment.
func (s *LessonService) Delete(ctx context.Context, actor *models.JWTClaims, lessonID string) error {
	lesson, err := s.ownedLesson(ctx, actor, lessonID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, lessonID); err != nil {
		return lookupError(err, "lesson not found", "failed to delete lesson")
	}
	if lesson.FilePath != nil {
		s.removeFile(*lesson.FilePath)
	}
	return nil
}

// UploadAttachment stores a file for a lesson, replacing any previous attachment.
func (s *LessonService) UploadAttachment(ctx context.Context, actor *models.JWTClaims, lessonID string, upload AttachmentUpload) (*models.LessonView, error) {
	lesson, err := s.ownedLesson(ctx, actor, lessonID)
	if err != nil {
		return nil, err
	}
	if upload.Content == nil || upload.Size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if upload.Size > s.cfg.MaxFileSize {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize)),
			map[string]interface{}{"maxBytes": s.cfg.MaxFileSize},
		)
	}
	mimeType, err := detectMime(upload)
	if err != nil {
		return nil, err
	}
	if _, allowed := s.mimeSet[strings.ToLower(mimeType)]; !allowed {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, "file type not allowed"),
			map[string]interface{}{"mimeType": mimeType, "allowed": s.cfg.AllowedMIMEs},
		)
	}

	original := path.Base(strings.ReplaceAll(upload.Filename, "\\", "/"))
	relPath := fmt.Sprintf("lessons/%s/%s_%s", lesson.ID, randomSuffix(), sanitizeFilename(original))
	if _, err := s.storage.SaveStream(relPath, upload.Content); err != nil {
		return nil, internalError(err, "failed to store attachment")
	}
	if err := s.repo.UpdateAttachment(ctx, lesson.ID, relPath, original, mimeType); err != nil {
		s.removeFile(relPath)
		return nil, lookupError(err, "lesson not found", "failed to save attachment")
	}
	if lesson.FilePath != nil {
		s.removeFile(*lesson.FilePath)
	}

	lesson.FilePath, lesson.FileName, lesson.FileType = &relPath, &original, &mimeType
	view := s.fullView(*lesson, nil)
	return &view, nil
}

// OpenAttachment validates a signed file token and opens the attachment it names.
func (s *LessonService) OpenAttachment(ctx context.Context, token string) (*AttachmentDownload, error) {
	lessonID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired file link")
	}
	lesson, err := s.repo.FindByID(ctx, lessonID)
	if err != nil {
		return nil, lookupError(err, "file not found", "failed to load lesson")
	}
	if lesson.FilePath == nil || *lesson.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}
	file, size, err := s.storage.Open(relPath)
	if err != nil {
		return nil, internalError(err, "failed to open attachment")
	}
	download := &AttachmentDownload{File: file, Filename: path.Base(relPath), Size: size}
	if lesson.FileName != nil {
		download.Filename = *lesson.FileName
	}
	if lesson.FileType != nil {
		download.MimeType = *lesson.FileType
	}
	return download, nil
}

func (s *LessonService) ownedLesson(ctx context.Context, actor *models.JWTClaims, lessonID string) (*models.Lesson, error) {
	lesson, err := s.repo.FindByID(ctx, lessonID)
	if err != nil {
		return nil, lookupError(err, "lesson not found", "failed to load lesson")
	}
	course, err := loadCourse(ctx, s.courses, lesson.CourseID)
	if err != nil {
		return nil, err
	}
	if err := requireCourseOwner(actor, course); err != nil {
		return nil, err
	}
	return lesson, nil
}

// learnerState reports whether actor may study the course and which lessons they completed.
func (s *LessonService) learnerState(ctx context.Context, actor *models.JWTClaims, courseID string) (bool, map[string]bool, error) {
	if actor == nil || actor.Role != models.RoleStudent {
		return false, map[string]bool{}, nil
	}
	enrollment, err := s.enrollments.FindByStudentCourse(ctx, actor.UserID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, map[string]bool{}, nil
		}
		return false, nil, internalError(err, "failed to load enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusBanned {
		return false, nil, appErrors.Clone(appErrors.ErrEnrollmentBanned, "")
	}
	if !enrollment.Status.CanLearn() {
		return false, map[string]bool{}, nil
	}
	ids, err := s.progress.CompletedLessonIDs(ctx, actor.UserID, courseID)
	if err != nil {
		return false, nil, internalError(err, "failed to load progress")
	}
	return true, toSet(ids), nil
}

func (s *LessonService) fullView(lesson models.Lesson, completed *bool) models.LessonView {
	createdAt := lesson.CreatedAt
	view := models.LessonView{
		ID:         lesson.ID,
		CourseID:   lesson.CourseID,
		Title:      lesson.Title,
		OrderIndex: lesson.OrderIndex,
		Content:    lesson.Content,
		VideoURL:   lesson.VideoURL,
		FileName:   lesson.FileName,
		Completed:  completed,
		CreatedAt:  &createdAt,
	}
	if lesson.FilePath != nil && s.signer != nil {
		token, _, err := s.signer.Generate(lesson.ID, *lesson.FilePath)
		if err != nil {
			s.logger.Warn("failed to sign attachment url", zap.String("lesson_id", lesson.ID), zap.Error(err))
		} else {
			url := fmt.Sprintf("%s/files/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token)
			view.FileURL = &url
		}
	}
	return view
}

func (s *LessonService) removeFile(relPath string) {
	if err := s.storage.Delete(relPath); err != nil {
		s.logger.Warn("failed to remove attachment", zap.String("path", relPath), zap.Error(err))
	}
}

func lockedView(lesson models.Lesson) models.LessonView {
	return models.LessonView{
		ID:         lesson.ID,
		Title:      lesson.Title,
		OrderIndex: lesson.OrderIndex,
		Locked:     true,
	}
}

func detectMime(upload AttachmentUpload) (string, error) {
	if upload.MimeType != "" && upload.MimeType != "application/octet-stream" {
		return strings.ToLower(strings.TrimSpace(strings.Split(upload.MimeType, ";")[0])), nil
	}
	header := make([]byte, 512)
	n, err := upload.Content.Read(header)
	if err != nil && err != io.EOF {
		return "", internalError(err, "failed to inspect file")
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return "", internalError(err, "failed to reset upload stream")
	}
	if n == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "empty file")
	}
	return strings.Split(http.DetectContentType(header[:n]), ";")[0], nil
}

func sanitizeFilename(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'), r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "._")
	if name == "" {
		return "file"
	}
	return name
}

func randomSuffix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
