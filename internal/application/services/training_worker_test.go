package services_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealsight/backend/internal/application/services"
	"github.com/dealsight/backend/internal/domain/entities"
	"github.com/dealsight/backend/internal/ml"
	apperrors "github.com/dealsight/backend/pkg/errors"
)

// seedSeparablePool creates a labeled pool where Tecnología deals close and
// Salud deals do not, so the trained model must separate them.
func seedSeparablePool(t *testing.T, clients *MockClientRepository, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		data := validCategoryData()
		closed := i%2 == 0
		if !closed {
			data.Industry = "Salud"
			data.MainPainPoint = "Seguimiento manual"
		}
		id := fmt.Sprintf("pool-%d", i)
		require.NoError(t, clients.Create(context.Background(), &entities.Client{
			ID: id, Email: fmt.Sprintf("p%d@x.mx", i), Phone: fmt.Sprintf("%010d", i),
			UploadID: "seed", Closed: closed,
		}))
		clients.markCategorized(id, data)
	}
}

func newTrainingWorker(models *MockModelRepository, clients *MockClientRepository, events *MockEventBus) *services.TrainingWorker {
	return services.NewTrainingWorker(models, clients, events, nil, nil, 0.8,
		ml.TrainOptions{Epochs: 200, LearningRate: 0.1})
}

func TestTrainingWorker_TrainsAndPersistsModel(t *testing.T) {
	ctx := context.Background()
	clients := NewMockClientRepository()
	seedSeparablePool(t, clients, 60)
	models := NewMockModelRepository()
	events := &MockEventBus{}

	require.NoError(t, models.Create(ctx, &entities.PredictionModel{ID: "m1", IsTraining: true}))

	worker := newTrainingWorker(models, clients, events)
	_, err := runJob(t, worker.Handle, services.TrainingJobPayload{ModelID: "m1"})
	require.NoError(t, err)

	model, err := models.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, model.Trained)
	assert.False(t, model.IsTraining)
	assert.Equal(t, 100, model.TrainingProgress)
	assert.Equal(t, 60, model.SamplesUsed)
	assert.NotNil(t, model.TrainedAt)
	require.NotNil(t, model.ModelData)
	assert.Len(t, model.ModelData.Weights, ml.FeatureCount())
	assert.Equal(t, ml.FeatureNames(), model.ModelData.FeatureNames)

	// perfectly separable pool, held-out tail included
	assert.Greater(t, model.Accuracy, 0.9)

	assert.Contains(t, events.eventTypes(), entities.PipelineEventTypeTrainingCompleted)
}

func TestTrainingWorker_TrainedModelScoresHeldOutSamples(t *testing.T) {
	ctx := context.Background()
	clients := NewMockClientRepository()
	seedSeparablePool(t, clients, 60)
	models := NewMockModelRepository()
	require.NoError(t, models.Create(ctx, &entities.PredictionModel{ID: "m1", IsTraining: true}))

	worker := newTrainingWorker(models, clients, &MockEventBus{})
	_, err := runJob(t, worker.Handle, services.TrainingJobPayload{ModelID: "m1"})
	require.NoError(t, err)

	model, err := models.GetByID(ctx, "m1")
	require.NoError(t, err)
	classifier := ml.Model{
		Weights:      model.ModelData.Weights,
		Bias:         model.ModelData.Bias,
		FeatureNames: model.ModelData.FeatureNames,
	}

	closing := validCategoryData()
	assert.Greater(t, classifier.Probability(ml.Encode(closing)), 0.5)

	losing := validCategoryData()
	losing.Industry = "Salud"
	losing.MainPainPoint = "Seguimiento manual"
	assert.Less(t, classifier.Probability(ml.Encode(losing)), 0.5)
}

func TestTrainingWorker_EmptyPoolReleasesRow(t *testing.T) {
	ctx := context.Background()
	clients := NewMockClientRepository()
	models := NewMockModelRepository()
	events := &MockEventBus{}
	require.NoError(t, models.Create(ctx, &entities.PredictionModel{ID: "m1", IsTraining: true}))

	worker := newTrainingWorker(models, clients, events)
	_, err := runJob(t, worker.Handle, services.TrainingJobPayload{ModelID: "m1"})
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeInsufficientData))

	model, getErr := models.GetByID(ctx, "m1")
	require.NoError(t, getErr)
	assert.False(t, model.IsTraining)
	assert.False(t, model.Trained)
	assert.NotEmpty(t, model.LastError)

	assert.Contains(t, events.eventTypes(), entities.PipelineEventTypeTrainingFailed)
}

func TestTrainingWorker_UnknownModelFailsJob(t *testing.T) {
	worker := newTrainingWorker(NewMockModelRepository(), NewMockClientRepository(), &MockEventBus{})
	_, err := runJob(t, worker.Handle, services.TrainingJobPayload{ModelID: "ghost"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}
