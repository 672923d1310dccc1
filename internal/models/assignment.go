package models

import "time"

// Assignment is a graded task attached to a course.
type Assignment struct {
	ID          string     `db:"id" json:"id"`
	CourseID    string     `db:"course_id" json:"courseId"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	DueDate     *time.Time `db:"due_date" json:"dueDate,omitempty"`
	MaxScore    int        `db:"max_score" json:"maxScore"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// Submission is a student's answer to an assignment. One per (assignment, student).
type Submission struct {
	ID           string     `db:"id" json:"id"`
	AssignmentID string     `db:"assignment_id" json:"assignmentId"`
	StudentID    string     `db:"student_id" json:"studentId"`
	Content      string     `db:"content" json:"content"`
	Score        *int       `db:"score" json:"score"`
	Feedback     *string    `db:"feedback" json:"feedback,omitempty"`
	SubmittedAt  time.Time  `db:"submitted_at" json:"submittedAt"`
	GradedAt     *time.Time `db:"graded_at" json:"gradedAt,omitempty"`
	GradedBy     *string    `db:"graded_by" json:"gradedBy,omitempty"`
}

// Graded reports whether a score has been recorded.
func (s Submission) Graded() bool {
	return s.GradedAt != nil
}

// SubmissionDetail enriches a submission with names for listings.
type SubmissionDetail struct {
	Submission
	StudentName     string `db:"student_name" json:"studentName"`
	AssignmentTitle string `db:"assignment_title" json:"assignmentTitle"`
	CourseID        string `db:"course_id" json:"courseId"`
	MaxScore        int    `db:"max_score" json:"maxScore"`
}

// CreateAssignmentRequest payload for creating an assignment.
type CreateAssignmentRequest struct {
	Title       string     `json:"title" validate:"required,min=3,max=200"`
	Description string     `json:"description" validate:"max=10000"`
	DueDate     *time.Time `json:"dueDate"`
	MaxScore    int        `json:"maxScore" validate:"required,min=1,max=1000"`
}

// SubmitAssignmentRequest payload for a student submission.
type SubmitAssignmentRequest struct {
	Content string `json:"content" validate:"required,max=100000"`
}

// GradeSubmissionRequest payload for grading.
type GradeSubmissionRequest struct {
	Score    *int   `json:"score" validate:"required,min=0"`
	Feedback string `json:"feedback" validate:"max=5000"`
}
