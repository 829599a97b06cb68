package repositories

import (
	"context"

	"github.com/dealsight/backend/internal/domain/entities"
)

// UploadFilter defines filters for listing uploads
type UploadFilter struct {
	Status entities.UploadStatus
	Limit  int
	Offset int
}

// UploadRepository defines the interface for upload batch records
type UploadRepository interface {
	// Create inserts a new upload in pending status
	Create(ctx context.Context, upload *entities.Upload) error

	// GetByID retrieves an upload by ID
	GetByID(ctx context.Context, id string) (*entities.Upload, error)

	// Update persists status, counters, diagnostics and completion time. The
	// adapter refuses transitions out of a terminal status.
	Update(ctx context.Context, upload *entities.Upload) error

	// List retrieves uploads, most recent first
	List(ctx context.Context, filter UploadFilter) ([]*entities.Upload, error)
}
