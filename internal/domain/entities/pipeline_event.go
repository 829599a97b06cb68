package entities

import (
	"time"

	"github.com/google/uuid"
)

// PipelineEventType represents the type of pipeline event
type PipelineEventType string

const (
	PipelineEventTypeTrainingStarted   PipelineEventType = "training_started"
	PipelineEventTypeTrainingCompleted PipelineEventType = "training_completed"
	PipelineEventTypeTrainingFailed    PipelineEventType = "training_failed"
	PipelineEventTypeUploadCategorized PipelineEventType = "upload_categorized"
)

// PipelineEvent is a notification published on the event bus when the
// asynchronous pipeline crosses a boundary other components care about
// (model cache invalidation, UI refresh).
type PipelineEvent struct {
	ID        string                 `json:"id"`
	EventType PipelineEventType      `json:"event_type"`
	ModelID   string                 `json:"model_id,omitempty"`
	UploadID  string                 `json:"upload_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// NewPipelineEvent creates a new pipeline event
func NewPipelineEvent(eventType PipelineEventType) *PipelineEvent {
	return &PipelineEvent{
		ID:        uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}
