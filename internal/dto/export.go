package dto

import "time"

// ExportJobStatus values for asynchronous export jobs.
const (
	ExportJobStatusPending   = "PENDING"
	ExportJobStatusRunning   = "RUNNING"
	ExportJobStatusCompleted = "COMPLETED"
	ExportJobStatusFailed    = "FAILED"
)

// CreateExportRequest enqueues a response export for a form.
type CreateExportRequest struct {
	FormID string `json:"form_id" validate:"required"`
	Format string `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportJobResponse describes an export job and, once completed, its
// signed download token.
type ExportJobResponse struct {
	ID          string     `json:"id"`
	FormID      string     `json:"form_id"`
	Format      string     `json:"format"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	DownloadURL string     `json:"download_url,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RequestedBy string     `json:"requested_by"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
