package dto

import "github.com/noah-isme/lms-api/internal/models"

// ExportJobResponse is returned after enqueueing a gradebook export.
type ExportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ExportStatusResponse exposes job progress and, once finished, a signed download link.
type ExportStatusResponse struct {
	ID           string              `json:"id"`
	CourseID     string              `json:"courseId"`
	Format       models.ExportFormat `json:"format"`
	Status       models.ExportStatus `json:"status"`
	Progress     int                 `json:"progress"`
	DownloadURL  *string             `json:"downloadUrl,omitempty"`
	ExpiresAt    *string             `json:"expiresAt,omitempty"`
	ErrorMessage *string             `json:"errorMessage,omitempty"`
}
