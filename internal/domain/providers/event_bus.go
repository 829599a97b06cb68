package providers

import (
	"context"

	"github.com/dealsight/backend/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to
// pipeline events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.PipelineEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.PipelineEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// Event channels used by the pipeline
const (
	// EventChannelTraining carries training lifecycle events; the prediction
	// service subscribes to it to invalidate its model cache.
	EventChannelTraining = "pipeline:training"

	// EventChannelUploads carries upload categorization-completed events
	EventChannelUploads = "pipeline:uploads"
)
