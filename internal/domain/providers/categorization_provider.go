package providers

import (
	"context"

	"github.com/dealsight/backend/internal/domain/entities"
)

// CategorizationProvider is the LLM oracle: it converts a free-text meeting
// transcript into a structured category object. A single opaque call that may
// take seconds and may fail transiently; retries are the caller's concern.
type CategorizationProvider interface {
	// ExtractCategories categorizes a transcript. The returned data has been
	// validated against the fixed category domains.
	ExtractCategories(ctx context.Context, transcription string) (*entities.CategoryData, error)

	// Provider returns the provider identifier stored with each categorization
	Provider() string

	// Model returns the model identifier stored with each categorization
	Model() string

	// PromptVersion returns the prompt version stored with each categorization
	PromptVersion() string
}
