package models

import "time"

// Lesson is a single ordered unit of course content.
type Lesson struct {
	ID         string    `db:"id" json:"id"`
	CourseID   string    `db:"course_id" json:"courseId"`
	Title      string    `db:"title" json:"title"`
	Content    *string   `db:"content" json:"content"`
	VideoURL   *string   `db:"video_url" json:"videoUrl"`
	FilePath   *string   `db:"file_path" json:"-"`
	FileName   *string   `db:"file_name" json:"fileName,omitempty"`
	FileType   *string   `db:"file_type" json:"fileType,omitempty"`
	OrderIndex int       `db:"order_index" json:"orderIndex"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// LessonView is the role-aware projection returned to clients. Locked lessons only
// carry id, title, orderIndex and locked; the content fields are serialised as null.
type LessonView struct {
	ID         string     `json:"id"`
	CourseID   string     `json:"courseId,omitempty"`
	Title      string     `json:"title"`
	OrderIndex int        `json:"orderIndex"`
	Content    *string    `json:"content"`
	FileURL    *string    `json:"fileUrl"`
	VideoURL   *string    `json:"videoUrl"`
	FileName   *string    `json:"fileName,omitempty"`
	Locked     bool       `json:"locked"`
	Completed  *bool      `json:"completed,omitempty"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
}

// CreateLessonRequest payload for adding a lesson. OrderIndex defaults to the end of the course.
type CreateLessonRequest struct {
	Title      string  `json:"title" validate:"required,min=1,max=200"`
	Content    *string `json:"content" validate:"omitempty,max=100000"`
	VideoURL   *string `json:"videoUrl" validate:"omitempty,url"`
	OrderIndex *int    `json:"orderIndex" validate:"omitempty,min=0"`
}

// UpdateLessonRequest payload for editing a lesson.
type UpdateLessonRequest struct {
	Title      *string `json:"title" validate:"omitempty,min=1,max=200"`
	Content    *string `json:"content" validate:"omitempty,max=100000"`
	VideoURL   *string `json:"videoUrl" validate:"omitempty,url"`
	OrderIndex *int    `json:"orderIndex" validate:"omitempty,min=0"`
}
