package models

import (
	"time"

	"github.com/noah-isme/lms-api/internal/gamification"
)

// LessonProgress marks a lesson as completed by a student. Its existence is the completion signal.
type LessonProgress struct {
	ID          string    `db:"id" json:"id"`
	StudentID   string    `db:"student_id" json:"studentId"`
	LessonID    string    `db:"lesson_id" json:"lessonId"`
	CompletedAt time.Time `db:"completed_at" json:"completedAt"`
}

// CompletionResult is returned after a lesson is marked complete.
type CompletionResult struct {
	Progress        LessonProgress      `json:"progress"`
	NewBadges       []gamification.Tier `json:"newBadges"`
	ProgressPercent int                 `json:"progressPercent"`
}

// CourseProgress summarises a student's completion of one course.
type CourseProgress struct {
	CourseID           string   `json:"courseId"`
	CompletedLessons   int      `json:"completedLessons"`
	TotalLessons       int      `json:"totalLessons"`
	ProgressPercent    int      `json:"progressPercent"`
	CompletedLessonIDs []string `json:"completedLessonIds"`
}
