package entities

import "time"

// UploadStatus is the lifecycle state of an ingestion batch
type UploadStatus string

const (
	UploadStatusPending    UploadStatus = "pending"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusFailed     UploadStatus = "failed"
)

// Upload represents one ingestion batch. Status transitions are monotonic:
// pending -> processing -> completed|failed, never backwards.
type Upload struct {
	ID            string             `json:"id"`
	Filename      string             `json:"filename"`
	Status        UploadStatus       `json:"status"`
	TotalRows     int                `json:"total_rows"`
	ProcessedRows int                `json:"processed_rows"`
	Errors        *UploadDiagnostics `json:"errors,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
}

// UploadDiagnostics is the structured error payload stored with an upload
type UploadDiagnostics struct {
	Message      string           `json:"message,omitempty"`
	MissingCols  []string         `json:"missing_columns,omitempty"`
	ErrorDetails []RowErrorDetail `json:"error_details,omitempty"`
}

// RowErrorDetail records why a single row was rejected
type RowErrorDetail struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// Terminal reports whether the upload reached a final state
func (s UploadStatus) Terminal() bool {
	return s == UploadStatusCompleted || s == UploadStatusFailed
}
