package repositories

import (
	"context"

	"github.com/dealsight/backend/internal/domain/entities"
)

// PredictionModelRepository defines the interface for training-session records
type PredictionModelRepository interface {
	// Create inserts a new training-attempt row
	Create(ctx context.Context, model *entities.PredictionModel) error

	// GetByID retrieves a model row by ID
	GetByID(ctx context.Context, id string) (*entities.PredictionModel, error)

	// Update persists training progress, results and errors
	Update(ctx context.Context, model *entities.PredictionModel) error

	// GetLatest returns the most recently created row, NOT_FOUND when none exist
	GetLatest(ctx context.Context) (*entities.PredictionModel, error)

	// GetLatestTrained returns the current model: the most recent row with
	// trained=true ordered by trained_at descending, NOT_FOUND when no model
	// has finished training
	GetLatestTrained(ctx context.Context) (*entities.PredictionModel, error)

	// FindTraining returns the row with is_training=true if any, NOT_FOUND
	// otherwise
	FindTraining(ctx context.Context) (*entities.PredictionModel, error)
}
