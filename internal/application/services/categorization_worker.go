package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dealsight/backend/internal/domain/entities"
	"github.com/dealsight/backend/internal/domain/providers"
	"github.com/dealsight/backend/internal/domain/repositories"
	"github.com/dealsight/backend/internal/infrastructure/observability"
	"github.com/dealsight/backend/internal/jobqueue"
	apperrors "github.com/dealsight/backend/pkg/errors"
)

// TrainingStarter is the slice of the prediction service the worker's
// auto-train hook needs.
type TrainingStarter interface {
	StartTraining(ctx context.Context) (*TrainingStartOutcome, error)
}

// CategorizationWorker consumes categorization jobs: it calls the LLM oracle
// with the client's transcription and persists the structured result. After
// each success it checks whether the upload just became fully categorized
// and, if so, kicks off training as a best-effort side effect.
type CategorizationWorker struct {
	clients         repositories.ClientRepository
	categorizations repositories.CategorizationRepository
	oracle          providers.CategorizationProvider
	trainer         TrainingStarter
	events          providers.EventBus
	metrics         *observability.Metrics
}

// NewCategorizationWorker creates a new categorization worker
func NewCategorizationWorker(
	clients repositories.ClientRepository,
	categorizations repositories.CategorizationRepository,
	oracle providers.CategorizationProvider,
	trainer TrainingStarter,
	events providers.EventBus,
	metrics *observability.Metrics,
) *CategorizationWorker {
	return &CategorizationWorker{
		clients:         clients,
		categorizations: categorizations,
		oracle:          oracle,
		trainer:         trainer,
		events:          events,
		metrics:         metrics,
	}
}

// Register attaches the worker to the categorization queue at the given
// concurrency cap.
func (w *CategorizationWorker) Register(queue *jobqueue.Manager, concurrency int) error {
	return queue.Consume(jobqueue.QueueCategorization, concurrency, w.Handle)
}

// Handle processes one categorization job. Any error fails the job and the
// queue retries it per the dispatch policy.
func (w *CategorizationWorker) Handle(ctx context.Context, job *jobqueue.Job) error {
	payload, ok := job.Payload().(CategorizationJobPayload)
	if !ok {
		return apperrors.NewInternalError("categorization job has unexpected payload", nil)
	}
	logger := observability.LoggerFromContext(ctx)

	client, err := w.clients.GetByID(ctx, payload.ClientID)
	if err != nil {
		// a job referencing a missing client signals an integrity bug
		return err
	}

	job.ReportProgress(30)

	data, err := w.oracle.ExtractCategories(ctx, client.Transcription)
	if err != nil {
		observability.RecordJobOutcome(ctx, w.metrics, jobqueue.QueueCategorization, "oracle_error")
		return err
	}

	job.ReportProgress(70)

	err = w.categorizations.Create(ctx, &entities.Categorization{
		ID:            uuid.New().String(),
		ClientID:      client.ID,
		Data:          *data,
		LLMProvider:   w.oracle.Provider(),
		Model:         w.oracle.Model(),
		PromptVersion: w.oracle.PromptVersion(),
		ProcessedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	job.ReportProgress(100)
	observability.RecordJobOutcome(ctx, w.metrics, jobqueue.QueueCategorization, "completed")
	logger.Info().
		Str("client_id", client.ID).
		Str("upload_id", payload.UploadID).
		Msg("client categorized")

	w.maybeTriggerTraining(ctx, payload.UploadID)
	return nil
}

// maybeTriggerTraining starts a training run when the whole upload just
// became categorized. Failures here are logged and swallowed; they never
// fail the categorization job.
func (w *CategorizationWorker) maybeTriggerTraining(ctx context.Context, uploadID string) {
	logger := observability.LoggerFromContext(ctx)

	total, err := w.clients.CountByUpload(ctx, uploadID)
	if err != nil {
		logger.Warn().Err(err).Str("upload_id", uploadID).Msg("auto-train check failed")
		return
	}
	categorized, err := w.clients.CountCategorizedByUpload(ctx, uploadID)
	if err != nil {
		logger.Warn().Err(err).Str("upload_id", uploadID).Msg("auto-train check failed")
		return
	}
	if total == 0 || categorized != total {
		return
	}

	if w.events != nil {
		event := entities.NewPipelineEvent(entities.PipelineEventTypeUploadCategorized)
		event.UploadID = uploadID
		if err := w.events.Publish(ctx, providers.EventChannelUploads, event); err != nil {
			logger.Warn().Err(err).Str("upload_id", uploadID).Msg("failed to publish upload event")
		}
	}

	if w.trainer == nil {
		return
	}
	outcome, err := w.trainer.StartTraining(ctx)
	switch {
	case err == nil:
		logger.Info().
			Str("upload_id", uploadID).
			Str("job_id", outcome.JobID).
			Int("samples", outcome.SamplesUsed).
			Msg("upload fully categorized, training started")
	case apperrors.IsType(err, apperrors.ErrorTypeInsufficientData),
		apperrors.IsType(err, apperrors.ErrorTypeTrainingInProgress):
		logger.Info().
			Str("upload_id", uploadID).
			Str("reason", string(apperrors.TypeOf(err))).
			Msg("upload fully categorized, training skipped")
	default:
		logger.Warn().Err(err).Str("upload_id", uploadID).Msg("auto-train trigger failed")
	}
}
