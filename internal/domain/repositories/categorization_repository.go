package repositories

import (
	"context"

	"github.com/dealsight/backend/internal/domain/entities"
)

// FieldCount is one bucket of a groupby-count report over a category field
type FieldCount struct {
	Value       string  `json:"value"`
	Count       int     `json:"count"`
	ClosedCount int     `json:"closed_count"`
	ClosureRate float64 `json:"closure_rate"`
}

// CategorizationRepository defines the interface for categorization records
type CategorizationRepository interface {
	// Create inserts a categorization; violating the unique client_id
	// constraint returns a CONFLICT error
	Create(ctx context.Context, categorization *entities.Categorization) error

	// GetByClientID retrieves the categorization for a client, NOT_FOUND if
	// the client is uncategorized
	GetByClientID(ctx context.Context, clientID string) (*entities.Categorization, error)

	// GetByClientIDs retrieves categorizations for multiple clients keyed by
	// client ID; uncategorized clients are simply absent
	GetByClientIDs(ctx context.Context, clientIDs []string) (map[string]*entities.Categorization, error)

	// CountByField aggregates categorization counts and closure rates grouped
	// by one of the category fields (industry, main_pain_point,
	// discovery_source, use_case)
	CountByField(ctx context.Context, field string) ([]FieldCount, error)
}
