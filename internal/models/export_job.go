package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExportFormat enumerates supported gradebook formats.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatXLSX ExportFormat = "xlsx"
)

// ExportStatus captures background job lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJob is persisted metadata for an asynchronous gradebook export.
type ExportJob struct {
	ID           string          `db:"id" json:"id"`
	CourseID     string          `db:"course_id" json:"courseId"`
	Params       ExportJobParams `db:"params" json:"params"`
	Status       ExportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	FilePath     *string         `db:"file_path" json:"-"`
	DownloadURL  *string         `db:"-" json:"downloadUrl,omitempty"`
	CreatedBy    string          `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finishedAt,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"errorMessage,omitempty"`
}

// ExportJobParams stores request options persisted as JSONB.
type ExportJobParams struct {
	Format         ExportFormat `json:"format"`
	IncludeDropped bool         `json:"includeDropped"`
}

// CreateExportRequest payload for requesting a gradebook export.
type CreateExportRequest struct {
	Format         ExportFormat `json:"format" validate:"required,oneof=csv pdf xlsx"`
	IncludeDropped bool         `json:"includeDropped"`
}

// Value marshals params to JSON for persistence.
func (p ExportJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal export job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *ExportJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = ExportJobParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ExportJobParams", value)
	}
	if len(data) == 0 {
		*p = ExportJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal export job params: %w", err)
	}
	return nil
}

// GradebookRow is one student line of a course gradebook.
type GradebookRow struct {
	StudentID        string           `db:"student_id"`
	StudentName      string           `db:"student_name"`
	StudentEmail     string           `db:"student_email"`
	Status           EnrollmentStatus `db:"status"`
	CompletedLessons int              `db:"completed_lessons"`
	BadgeCount       int              `db:"badge_count"`
}

// GradebookScore is a graded submission used to fill assignment columns.
type GradebookScore struct {
	StudentID    string `db:"student_id"`
	AssignmentID string `db:"assignment_id"`
	Score        *int   `db:"score"`
}
