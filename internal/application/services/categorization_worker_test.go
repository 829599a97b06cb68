package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealsight/backend/internal/application/services"
	"github.com/dealsight/backend/internal/domain/entities"
	"github.com/dealsight/backend/internal/jobqueue"
	apperrors "github.com/dealsight/backend/pkg/errors"
)

func validCategoryData() entities.CategoryData {
	return entities.CategoryData{
		Industry:            "Tecnología",
		CompanySize:         "11-50",
		WeeklyContactVolume: 300,
		VolumeTrend:         "Creciente",
		MainPainPoint:       "Pérdida de leads",
		DiscoverySource:     "Recomendación",
		UseCase:             "Ventas",
		Summary:             "quiere automatizar seguimiento",
	}
}

// stubTrainer records auto-train invocations
type stubTrainer struct {
	calls int
	err   error
}

func (s *stubTrainer) StartTraining(ctx context.Context) (*services.TrainingStartOutcome, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &services.TrainingStartOutcome{Message: "training started", JobID: "job-1", SamplesUsed: 50}, nil
}

func runJob(t *testing.T, handler jobqueue.Handler, payload any) (*jobqueue.Job, error) {
	t.Helper()
	m := jobqueue.NewManager()
	defer m.Close()

	done := make(chan error, 1)
	require.NoError(t, m.Consume("categorization", 1, func(ctx context.Context, job *jobqueue.Job) error {
		err := handler(ctx, job)
		done <- err
		return err
	}))
	job, err := m.Enqueue(context.Background(), "categorization", payload, jobqueue.Options{})
	require.NoError(t, err)

	select {
	case err := <-done:
		return job, err
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish")
		return nil, nil
	}
}

func TestCategorizationWorker_PersistsOracleResult(t *testing.T) {
	ctx := context.Background()
	clients := NewMockClientRepository()
	categorizations := NewMockCategorizationRepository()
	oracle := &MockOracle{data: &entities.CategoryData{}}
	*oracle.data = validCategoryData()

	require.NoError(t, clients.Create(ctx, &entities.Client{
		ID: "c1", Email: "ana@x.mx", Phone: "5511000001",
		Transcription: "Hola, busco un bot", UploadID: "upload-1",
	}))

	worker := services.NewCategorizationWorker(clients, categorizations, oracle, nil, nil, nil)
	_, err := runJob(t, worker.Handle, services.CategorizationJobPayload{ClientID: "c1", UploadID: "upload-1"})
	require.NoError(t, err)

	stored, err := categorizations.GetByClientID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Tecnología", stored.Data.Industry)
	assert.Equal(t, "mock", stored.LLMProvider)
	assert.Equal(t, "mock-model", stored.Model)
	assert.Equal(t, "v-test", stored.PromptVersion)
	assert.False(t, stored.ProcessedAt.IsZero())
}

func TestCategorizationWorker_MissingClientFailsJob(t *testing.T) {
	worker := services.NewCategorizationWorker(
		NewMockClientRepository(), NewMockCategorizationRepository(),
		&MockOracle{data: &entities.CategoryData{}}, nil, nil, nil)

	_, err := runJob(t, worker.Handle, services.CategorizationJobPayload{ClientID: "ghost", UploadID: "u"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestCategorizationWorker_OracleFailurePropagates(t *testing.T) {
	ctx := context.Background()
	clients := NewMockClientRepository()
	require.NoError(t, clients.Create(ctx, &entities.Client{ID: "c1", Email: "a@x.mx", Phone: "1"}))

	oracle := &MockOracle{err: apperrors.NewExternalError("openai unavailable", nil)}
	worker := services.NewCategorizationWorker(clients, NewMockCategorizationRepository(), oracle, nil, nil, nil)

	_, err := runJob(t, worker.Handle, services.CategorizationJobPayload{ClientID: "c1", UploadID: "u"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
}

func TestCategorizationWorker_AutoTrainOnUploadCompletion(t *testing.T) {
	ctx := context.Background()
	clients := NewMockClientRepository()
	categorizations := NewMockCategorizationRepository()
	oracle := &MockOracle{data: &entities.CategoryData{}}
	*oracle.data = validCategoryData()
	trainer := &stubTrainer{}
	events := &MockEventBus{}
	clients.categorizations = categorizations

	// two clients in the upload, one already categorized
	require.NoError(t, clients.Create(ctx, &entities.Client{ID: "c1", Email: "a@x.mx", Phone: "1", UploadID: "u1", Transcription: "t1"}))
	require.NoError(t, clients.Create(ctx, &entities.Client{ID: "c2", Email: "b@x.mx", Phone: "2", UploadID: "u1", Transcription: "t2"}))
	clients.markCategorized("c1", validCategoryData())

	worker := services.NewCategorizationWorker(clients, categorizations, oracle, trainer, events, nil)
	_, err := runJob(t, worker.Handle, services.CategorizationJobPayload{ClientID: "c2", UploadID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, 1, trainer.calls)
	assert.Contains(t, events.eventTypes(), entities.PipelineEventTypeUploadCategorized)
}

func TestCategorizationWorker_AutoTrainFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	clients := NewMockClientRepository()
	categorizations := NewMockCategorizationRepository()
	clients.categorizations = categorizations
	oracle := &MockOracle{data: &entities.CategoryData{}}
	*oracle.data = validCategoryData()
	trainer := &stubTrainer{err: apperrors.NewInternalError("trigger exploded", nil)}

	require.NoError(t, clients.Create(ctx, &entities.Client{ID: "c1", Email: "a@x.mx", Phone: "1", UploadID: "u1", Transcription: "t1"}))

	worker := services.NewCategorizationWorker(clients, categorizations, oracle, trainer, nil, nil)
	_, err := runJob(t, worker.Handle, services.CategorizationJobPayload{ClientID: "c1", UploadID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, trainer.calls)
}
