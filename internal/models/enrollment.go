package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
	EnrollmentStatusBanned    EnrollmentStatus = "BANNED"
)

// CanLearn reports whether the student may access and complete lessons.
func (s EnrollmentStatus) CanLearn() bool {
	return s == EnrollmentStatusActive || s == EnrollmentStatusCompleted
}

// Enrollment links a student to a course. At most one exists per (student, course).
type Enrollment struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"studentId"`
	CourseID  string           `db:"course_id" json:"courseId"`
	Status    EnrollmentStatus `db:"status" json:"status"`
	Rating    *int             `db:"rating" json:"rating,omitempty"`
	Review    *string          `db:"review" json:"review,omitempty"`
	JoinedAt  time.Time        `db:"joined_at" json:"joinedAt"`
	UpdatedAt time.Time        `db:"updated_at" json:"updatedAt"`
}

// EnrollmentDetail enriches Enrollment with course info and lesson counts.
type EnrollmentDetail struct {
	Enrollment
	CourseTitle      string `db:"course_title" json:"courseTitle"`
	CompletedLessons int    `db:"completed_lessons" json:"completedLessons"`
	TotalLessons     int    `db:"total_lessons" json:"totalLessons"`
	ProgressPercent  int    `db:"-" json:"progressPercent"`
}

// RosterEntry is a course participant as seen by its instructor.
type RosterEntry struct {
	EnrollmentID     string           `db:"enrollment_id" json:"enrollmentId"`
	StudentID        string           `db:"student_id" json:"studentId"`
	StudentName      string           `db:"student_name" json:"studentName"`
	StudentEmail     string           `db:"student_email" json:"studentEmail"`
	Status           EnrollmentStatus `db:"status" json:"status"`
	JoinedAt         time.Time        `db:"joined_at" json:"joinedAt"`
	CompletedLessons int              `db:"completed_lessons" json:"completedLessons"`
	TotalLessons     int              `db:"total_lessons" json:"totalLessons"`
	ProgressPercent  int              `db:"-" json:"progressPercent"`
}

// RateCourseRequest payload for rating a course.
type RateCourseRequest struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Review string `json:"review" validate:"max=2000"`
}
