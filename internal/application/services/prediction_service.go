package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dealsight/backend/internal/domain/entities"
	"github.com/dealsight/backend/internal/domain/providers"
	"github.com/dealsight/backend/internal/domain/repositories"
	"github.com/dealsight/backend/internal/infrastructure/observability"
	"github.com/dealsight/backend/internal/jobqueue"
	"github.com/dealsight/backend/internal/ml"
	apperrors "github.com/dealsight/backend/pkg/errors"
)

const (
	modelCacheKey = "prediction:model:latest"
	modelCacheTTL = 3600
)

// TrainingJobPayload identifies the model row a training job writes to.
type TrainingJobPayload struct {
	ModelID string `json:"model_id"`
}

// TrainingStartOutcome is returned when a training run is accepted.
type TrainingStartOutcome struct {
	Message     string `json:"message"`
	JobID       string `json:"job_id"`
	SamplesUsed int    `json:"samples_used"`
}

// PredictionStatus describes the current model and whether training can run.
type PredictionStatus struct {
	Trained          bool       `json:"trained"`
	CanTrain         bool       `json:"can_train"`
	IsTraining       bool       `json:"is_training"`
	TrainingProgress int        `json:"training_progress,omitempty"`
	AvailableSamples int        `json:"available_samples"`
	MinimumRequired  int        `json:"minimum_required"`
	Accuracy         float64    `json:"accuracy,omitempty"`
	SamplesUsed      int        `json:"samples_used,omitempty"`
	TrainedAt        *time.Time `json:"trained_at,omitempty"`
	LastError        string     `json:"last_error,omitempty"`
	Message          string     `json:"message"`
}

// ModelInfo is the model metadata attached to each prediction.
type ModelInfo struct {
	ID          string     `json:"id"`
	Accuracy    float64    `json:"accuracy"`
	SamplesUsed int        `json:"samples_used"`
	TrainedAt   *time.Time `json:"trained_at,omitempty"`
}

// PredictionResult is one live deal-closure prediction.
type PredictionResult struct {
	Probability float64                `json:"probability"`
	WillClose   bool                   `json:"will_close"`
	Prediction  string                 `json:"prediction"`
	Categories  *entities.CategoryData `json:"categories"`
	TopFactors  []ml.Factor            `json:"top_factors"`
	Model       ModelInfo              `json:"model"`
}

// PredictionService gates training runs and serves live predictions from the
// latest trained model. The model is cached read-through (in-memory plus a
// Redis copy) and invalidated when a training run finishes anywhere.
type PredictionService struct {
	models     repositories.PredictionModelRepository
	clients    repositories.ClientRepository
	oracle     providers.CategorizationProvider
	queue      *jobqueue.Manager
	cache      providers.CacheProvider
	events     providers.EventBus
	minSamples int

	mu     sync.RWMutex
	cached *entities.PredictionModel
}

// NewPredictionService creates a new prediction service
func NewPredictionService(
	models repositories.PredictionModelRepository,
	clients repositories.ClientRepository,
	oracle providers.CategorizationProvider,
	queue *jobqueue.Manager,
	cache providers.CacheProvider,
	events providers.EventBus,
	minSamples int,
) *PredictionService {
	if minSamples <= 0 {
		minSamples = 50
	}
	return &PredictionService{
		models:     models,
		clients:    clients,
		oracle:     oracle,
		queue:      queue,
		cache:      cache,
		events:     events,
		minSamples: minSamples,
	}
}

// Status reports the current training state and whether a run can start.
func (s *PredictionService) Status(ctx context.Context) (*PredictionStatus, error) {
	available, err := s.clients.CountCategorized(ctx)
	if err != nil {
		return nil, err
	}

	status := &PredictionStatus{
		AvailableSamples: available,
		MinimumRequired:  s.minSamples,
	}

	latest, err := s.models.GetLatest(ctx)
	if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		status.CanTrain = available >= s.minSamples
		status.Message = trainabilityMessage(status)
		return status, nil
	}
	if err != nil {
		return nil, err
	}

	if latest.IsTraining {
		status.IsTraining = true
		status.TrainingProgress = latest.TrainingProgress
		status.Message = "training in progress"
		return status, nil
	}

	if latest.LastError != "" && !latest.Trained {
		status.LastError = latest.LastError
		status.CanTrain = available >= s.minSamples
		status.Message = "last training attempt failed: " + latest.LastError
		return status, nil
	}

	status.Trained = latest.Trained
	status.Accuracy = latest.Accuracy
	status.SamplesUsed = latest.SamplesUsed
	status.TrainedAt = latest.TrainedAt
	status.LastError = latest.LastError
	status.CanTrain = available >= s.minSamples
	status.Message = trainabilityMessage(status)
	return status, nil
}

func trainabilityMessage(status *PredictionStatus) string {
	switch {
	case status.Trained:
		return fmt.Sprintf("model trained on %d samples, accuracy %.2f", status.SamplesUsed, status.Accuracy)
	case status.CanTrain:
		return "enough samples available, training can start"
	default:
		return fmt.Sprintf("%d more categorized samples needed before training", status.MinimumRequired-status.AvailableSamples)
	}
}

// StartTraining gates and kicks off a training run: enough samples, nobody
// else training, then a new attempt row and a job on the training queue.
// The existence check and the insert are separate store calls, so two
// concurrent callers can slip through together; the window is accepted.
func (s *PredictionService) StartTraining(ctx context.Context) (*TrainingStartOutcome, error) {
	available, err := s.clients.CountCategorized(ctx)
	if err != nil {
		return nil, err
	}
	if available < s.minSamples {
		return nil, apperrors.New(
			apperrors.ErrorTypeInsufficientData,
			fmt.Sprintf("need at least %d categorized samples to train, have %d", s.minSamples, available),
			nil,
		).WithDetails(map[string]interface{}{
			"available_samples": available,
			"minimum_required":  s.minSamples,
		})
	}

	if training, err := s.models.FindTraining(ctx); err == nil {
		return nil, apperrors.New(
			apperrors.ErrorTypeTrainingInProgress,
			fmt.Sprintf("training already in progress (%d%%)", training.TrainingProgress),
			nil,
		).WithDetails(map[string]interface{}{
			"training_progress": training.TrainingProgress,
		})
	} else if !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	model := &entities.PredictionModel{
		ID:                uuid.New().String(),
		IsTraining:        true,
		TrainingStartedAt: &now,
		CreatedAt:         now,
	}
	if err := s.models.Create(ctx, model); err != nil {
		return nil, err
	}

	job, err := s.queue.Enqueue(ctx, jobqueue.QueueTraining, TrainingJobPayload{ModelID: model.ID}, jobqueue.Options{
		Attempts:         1,
		RetainOnComplete: true,
		RetainOnFail:     true,
	})
	if err != nil {
		model.IsTraining = false
		model.LastError = "failed to enqueue training job: " + err.Error()
		if updateErr := s.models.Update(ctx, model); updateErr != nil {
			observability.LoggerFromContext(ctx).Error().Err(updateErr).
				Str("model_id", model.ID).Msg("failed to release stuck training row")
		}
		return nil, err
	}

	model.TrainingJobID = job.ID()
	if err := s.models.Update(ctx, model); err != nil {
		return nil, err
	}

	return &TrainingStartOutcome{
		Message:     "training started",
		JobID:       job.ID(),
		SamplesUsed: available,
	}, nil
}

// Predict categorizes a live transcript and scores it with the current model.
func (s *PredictionService) Predict(ctx context.Context, transcription string) (*PredictionResult, error) {
	if strings.TrimSpace(transcription) == "" {
		return nil, apperrors.NewValidationError("transcription is required")
	}

	model, err := s.currentModel(ctx)
	if err != nil {
		return nil, err
	}

	data, err := s.oracle.ExtractCategories(ctx, transcription)
	if err != nil {
		return nil, err
	}

	if uncategorizable, fields := data.Uncategorizable(); uncategorizable {
		return nil, apperrors.New(
			apperrors.ErrorTypeInsufficientCategorization,
			"transcript could not be confidently categorized on: "+strings.Join(fields, ", "),
			nil,
		).WithDetails(map[string]interface{}{
			"uncategorizable_fields": fields,
		})
	}

	classifier := ml.Model{
		Weights:      model.ModelData.Weights,
		Bias:         model.ModelData.Bias,
		FeatureNames: model.ModelData.FeatureNames,
	}
	x := ml.Encode(*data)
	probability := classifier.Probability(x)

	return &PredictionResult{
		Probability: probability,
		WillClose:   probability >= 0.5,
		Prediction:  predictionTier(probability),
		Categories:  data,
		TopFactors:  classifier.TopFactors(x, 3),
		Model: ModelInfo{
			ID:          model.ID,
			Accuracy:    model.Accuracy,
			SamplesUsed: model.SamplesUsed,
			TrainedAt:   model.TrainedAt,
		},
	}, nil
}

func predictionTier(probability float64) string {
	switch {
	case probability >= 0.7:
		return "high"
	case probability >= 0.4:
		return "medium"
	default:
		return "low"
	}
}

// currentModel resolves the latest trained model through the cache layers.
func (s *PredictionService) currentModel(ctx context.Context) (*entities.PredictionModel, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, modelCacheKey); err == nil && len(raw) > 0 {
			model := &entities.PredictionModel{}
			if err := json.Unmarshal(raw, model); err == nil && model.ModelData != nil {
				s.mu.Lock()
				s.cached = model
				s.mu.Unlock()
				return model, nil
			}
		}
	}

	model, err := s.models.GetLatestTrained(ctx)
	if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		return nil, apperrors.New(
			apperrors.ErrorTypeModelNotTrained,
			"no trained model is available yet",
			nil,
		).WithDetails(map[string]interface{}{
			"trained": false,
		})
	}
	if err != nil {
		return nil, err
	}
	if model.ModelData == nil {
		return nil, apperrors.NewInternalError("trained model has no serialized data", nil)
	}

	s.mu.Lock()
	s.cached = model
	s.mu.Unlock()

	if s.cache != nil {
		if raw, err := json.Marshal(model); err == nil {
			if err := s.cache.Set(ctx, modelCacheKey, raw, modelCacheTTL); err != nil {
				observability.LoggerFromContext(ctx).Warn().Err(err).Msg("failed to cache prediction model")
			}
		}
	}
	return model, nil
}

// Invalidate drops both cache layers so the next prediction reloads the
// latest trained model.
func (s *PredictionService) Invalidate(ctx context.Context) {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Delete(ctx, modelCacheKey); err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(err).Msg("failed to drop cached prediction model")
		}
	}
}

// WatchEvents subscribes to training lifecycle events and invalidates the
// model cache when a run completes anywhere. Blocks until ctx is cancelled;
// run it in its own goroutine at boot.
func (s *PredictionService) WatchEvents(ctx context.Context) error {
	if s.events == nil {
		return nil
	}
	eventChan, err := s.events.Subscribe(ctx, providers.EventChannelTraining)
	if err != nil {
		return err
	}

	logger := observability.LoggerFromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-eventChan:
			if !ok {
				return nil
			}
			if event.EventType != entities.PipelineEventTypeTrainingCompleted {
				continue
			}
			logger.Info().Str("model_id", event.ModelID).Msg("training completed, refreshing model cache")
			s.Invalidate(ctx)
		}
	}
}
