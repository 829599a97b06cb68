package entities

import "time"

// PredictionModel is a training-session record / trained-model snapshot.
// A new row is created per training attempt; the current model is the most
// recent row with Trained=true ordered by TrainedAt descending. At most one
// row should have IsTraining=true at a time (gated by the prediction service
// before insert; not enforced transactionally, see DESIGN.md).
type PredictionModel struct {
	ID                string      `json:"id"`
	Trained           bool        `json:"trained"`
	IsTraining        bool        `json:"is_training"`
	TrainingProgress  int         `json:"training_progress"`
	TrainingStartedAt *time.Time  `json:"training_started_at,omitempty"`
	TrainingJobID     string      `json:"training_job_id,omitempty"`
	SamplesUsed       int         `json:"samples_used"`
	Accuracy          float64     `json:"accuracy"`
	ModelData         *ModelData  `json:"model_data,omitempty"`
	TrainedAt         *time.Time  `json:"trained_at,omitempty"`
	LastError         string      `json:"last_error,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}

// ModelData is the serialized classifier persisted with a trained model
type ModelData struct {
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
	FeatureNames []string  `json:"feature_names"`
	Version      int       `json:"version"`
}

// TrainingSample pairs a categorization with its closure label for training
type TrainingSample struct {
	ClientID string       `json:"client_id"`
	Data     CategoryData `json:"data"`
	Closed   bool         `json:"closed"`
}
