package repositories

import (
	"context"

	"github.com/dealsight/backend/internal/domain/entities"
)

// EmailPhoneKey is the composite natural key used for deduplication
type EmailPhoneKey struct {
	Email string
	Phone string
}

// ClientRepository defines the interface for client data operations
type ClientRepository interface {
	// Create inserts a single client
	Create(ctx context.Context, client *entities.Client) error

	// CreateManySkipDuplicates bulk-inserts clients, silently skipping rows
	// that violate the (email, phone) unique constraint. Returns the number
	// of rows actually inserted.
	CreateManySkipDuplicates(ctx context.Context, clients []*entities.Client) (int, error)

	// GetByID retrieves a client by ID
	GetByID(ctx context.Context, id string) (*entities.Client, error)

	// FindByEmailPhonePairs returns the subset of the given keys that already
	// exist in the store
	FindByEmailPhonePairs(ctx context.Context, keys []EmailPhoneKey) ([]EmailPhoneKey, error)

	// ListUncategorizedByUpload returns clients in an upload that have no
	// categorization yet
	ListUncategorizedByUpload(ctx context.Context, uploadID string) ([]*entities.Client, error)

	// GetByIDs retrieves multiple clients by ID
	GetByIDs(ctx context.Context, ids []string) ([]*entities.Client, error)

	// CountByUpload counts all clients belonging to an upload
	CountByUpload(ctx context.Context, uploadID string) (int, error)

	// CountCategorizedByUpload counts clients in an upload that have a
	// categorization
	CountCategorizedByUpload(ctx context.Context, uploadID string) (int, error)

	// CountCategorized counts the full labeled pool (clients with a
	// categorization, across all uploads)
	CountCategorized(ctx context.Context) (int, error)

	// ListTrainingSamples returns the full labeled pool joined with
	// categorization data and closure labels, in insertion order
	ListTrainingSamples(ctx context.Context) ([]*entities.TrainingSample, error)
}
