package models

import "time"

// CourseStatus tracks the moderation lifecycle of a course.
type CourseStatus string

const (
	CourseStatusDraft     CourseStatus = "DRAFT"
	CourseStatusPending   CourseStatus = "PENDING"
	CourseStatusPublished CourseStatus = "PUBLISHED"
	CourseStatusRejected  CourseStatus = "REJECTED"
)

// Submittable reports whether an instructor may send the course for review.
func (s CourseStatus) Submittable() bool {
	return s == CourseStatusDraft || s == CourseStatusRejected
}

// Course is an instructor-owned collection of ordered lessons.
type Course struct {
	ID              string       `db:"id" json:"id"`
	Title           string       `db:"title" json:"title"`
	Description     string       `db:"description" json:"description"`
	InstructorID    string       `db:"instructor_id" json:"instructorId"`
	Status          CourseStatus `db:"status" json:"status"`
	RejectionReason *string      `db:"rejection_reason" json:"rejectionReason,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updatedAt"`
}

// CourseSummary enriches a course with catalog aggregates.
type CourseSummary struct {
	Course
	InstructorName string   `db:"instructor_name" json:"instructorName"`
	LessonCount    int      `db:"lesson_count" json:"lessonCount"`
	StudentCount   int      `db:"student_count" json:"studentCount"`
	AverageRating  *float64 `db:"average_rating" json:"averageRating"`
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	Search       string
	Status       *CourseStatus
	InstructorID string
	Page         int
	PageSize     int
}

// CreateCourseRequest payload for creating a course.
type CreateCourseRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=200"`
	Description string `json:"description" validate:"max=5000"`
}

// UpdateCourseRequest payload for editing a course.
type UpdateCourseRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
}

// RejectCourseRequest carries the moderator's reason.
type RejectCourseRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=1000"`
}
