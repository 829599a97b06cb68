package services

import (
	"context"
	"time"

	"github.com/dealsight/backend/internal/domain/entities"
	"github.com/dealsight/backend/internal/domain/providers"
	"github.com/dealsight/backend/internal/domain/repositories"
	"github.com/dealsight/backend/internal/infrastructure/observability"
	"github.com/dealsight/backend/internal/jobqueue"
	"github.com/dealsight/backend/internal/ml"
	apperrors "github.com/dealsight/backend/pkg/errors"
)

// modelDataVersion tags the serialized classifier layout.
const modelDataVersion = 1

// TrainingWorker consumes training jobs: it pulls the full labeled pool,
// fits a logistic regression model and persists the result on the attempt
// row created by StartTraining.
type TrainingWorker struct {
	models      repositories.PredictionModelRepository
	clients     repositories.ClientRepository
	events      providers.EventBus
	predictions *PredictionService
	metrics     *observability.Metrics
	trainSplit  float64
	trainOpts   ml.TrainOptions
}

// NewTrainingWorker creates a new training worker
func NewTrainingWorker(
	models repositories.PredictionModelRepository,
	clients repositories.ClientRepository,
	events providers.EventBus,
	predictions *PredictionService,
	metrics *observability.Metrics,
	trainSplit float64,
	trainOpts ml.TrainOptions,
) *TrainingWorker {
	if trainSplit <= 0 || trainSplit >= 1 {
		trainSplit = 0.8
	}
	return &TrainingWorker{
		models:      models,
		clients:     clients,
		events:      events,
		predictions: predictions,
		metrics:     metrics,
		trainSplit:  trainSplit,
		trainOpts:   trainOpts,
	}
}

// Register attaches the worker to the training queue. Training runs are
// serialized: one at a time.
func (w *TrainingWorker) Register(queue *jobqueue.Manager) error {
	return queue.Consume(jobqueue.QueueTraining, 1, w.Handle)
}

// Handle runs one training session. Any mid-pipeline error releases the
// attempt row (isTraining=false, lastError set) before propagating, so the
// system never stays stuck reporting an in-progress run that died.
func (w *TrainingWorker) Handle(ctx context.Context, job *jobqueue.Job) error {
	payload, ok := job.Payload().(TrainingJobPayload)
	if !ok {
		return apperrors.NewInternalError("training job has unexpected payload", nil)
	}

	model, err := w.models.GetByID(ctx, payload.ModelID)
	if err != nil {
		return err
	}

	if err := w.train(ctx, model, job); err != nil {
		w.releaseFailed(ctx, model, err)
		observability.RecordTrainingRun(ctx, w.metrics, "failed")
		return err
	}

	observability.RecordTrainingRun(ctx, w.metrics, "completed")
	return nil
}

func (w *TrainingWorker) train(ctx context.Context, model *entities.PredictionModel, job *jobqueue.Job) error {
	logger := observability.LoggerFromContext(ctx)

	samples, err := w.clients.ListTrainingSamples(ctx)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return apperrors.New(apperrors.ErrorTypeInsufficientData, "no labeled samples available", nil)
	}
	w.reportProgress(ctx, model, job, 10)

	X := make([][]float64, len(samples))
	y := make([]float64, len(samples))
	for i, sample := range samples {
		X[i] = ml.Encode(sample.Data)
		if sample.Closed {
			y[i] = 1
		}
	}
	w.reportProgress(ctx, model, job, 30)

	// ordered split, no shuffle: the held-out tail is whatever the store
	// returned last
	split := int(float64(len(samples)) * w.trainSplit)
	if split == 0 {
		split = len(samples)
	}
	trainX, trainY := X[:split], y[:split]
	testX, testY := X[split:], y[split:]
	w.reportProgress(ctx, model, job, 50)

	classifier, err := ml.Train(trainX, trainY, w.trainOpts)
	if err != nil {
		return err
	}
	w.reportProgress(ctx, model, job, 80)

	accuracy := classifier.Accuracy(testX, testY)
	w.reportProgress(ctx, model, job, 90)

	now := time.Now().UTC()
	model.Trained = true
	model.IsTraining = false
	model.TrainingProgress = 100
	model.SamplesUsed = len(samples)
	model.Accuracy = accuracy
	model.TrainedAt = &now
	model.LastError = ""
	model.ModelData = &entities.ModelData{
		Weights:      classifier.Weights,
		Bias:         classifier.Bias,
		FeatureNames: classifier.FeatureNames,
		Version:      modelDataVersion,
	}
	if err := w.models.Update(ctx, model); err != nil {
		return err
	}
	job.ReportProgress(100)

	logger.Info().
		Str("model_id", model.ID).
		Int("samples", len(samples)).
		Float64("accuracy", accuracy).
		Msg("training completed")

	if w.predictions != nil {
		w.predictions.Invalidate(ctx)
	}
	w.publish(ctx, entities.PipelineEventTypeTrainingCompleted, model.ID)
	return nil
}

// releaseFailed clears the in-progress flag and records the failure so
// Status stops reporting a phantom run.
func (w *TrainingWorker) releaseFailed(ctx context.Context, model *entities.PredictionModel, trainErr error) {
	model.IsTraining = false
	model.LastError = trainErr.Error()
	if err := w.models.Update(ctx, model); err != nil {
		observability.LoggerFromContext(ctx).Error().Err(err).
			Str("model_id", model.ID).Msg("failed to release failed training row")
	}
	w.publish(ctx, entities.PipelineEventTypeTrainingFailed, model.ID)
}

func (w *TrainingWorker) reportProgress(ctx context.Context, model *entities.PredictionModel, job *jobqueue.Job, pct int) {
	job.ReportProgress(float64(pct))
	model.TrainingProgress = pct
	if err := w.models.Update(ctx, model); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).
			Str("model_id", model.ID).Int("progress", pct).
			Msg("failed to persist training progress")
	}
}

func (w *TrainingWorker) publish(ctx context.Context, eventType entities.PipelineEventType, modelID string) {
	if w.events == nil {
		return
	}
	event := entities.NewPipelineEvent(eventType)
	event.ModelID = modelID
	if err := w.events.Publish(ctx, providers.EventChannelTraining, event); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).
			Str("model_id", modelID).Msg("failed to publish training event")
	}
}
