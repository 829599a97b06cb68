package database

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/doug-martin/goqu/v9"

	"github.com/dealsight/backend/internal/domain/entities"
	"github.com/dealsight/backend/internal/domain/repositories"
	"github.com/dealsight/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/dealsight/backend/pkg/errors"
)

// PredictionModelAdapter implements the PredictionModelRepository interface
type PredictionModelAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewPredictionModelAdapter creates a new prediction model adapter
func NewPredictionModelAdapter(client *postgres.Client) repositories.PredictionModelRepository {
	return &PredictionModelAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create inserts a new training-attempt row
func (a *PredictionModelAdapter) Create(ctx context.Context, model *entities.PredictionModel) error {
	record, err := modelRecord(model)
	if err != nil {
		return err
	}
	record["id"] = model.ID
	record["created_at"] = model.CreatedAt

	query, args, err := a.db.Insert("prediction_models").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err = a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create prediction model", err)
	}
	return nil
}

// GetByID retrieves a model row by ID
func (a *PredictionModelAdapter) GetByID(ctx context.Context, id string) (*entities.PredictionModel, error) {
	return a.getOne(ctx, goqu.Ex{"id": id}, "", "prediction model not found")
}

// Update persists progress, results and errors for an existing row
func (a *PredictionModelAdapter) Update(ctx context.Context, model *entities.PredictionModel) error {
	record, err := modelRecord(model)
	if err != nil {
		return err
	}

	query, args, err := a.db.Update("prediction_models").
		Set(record).
		Where(goqu.Ex{"id": model.ID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update prediction model", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to check update result", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("prediction model not found")
	}
	return nil
}

// GetLatest returns the most recently created row
func (a *PredictionModelAdapter) GetLatest(ctx context.Context) (*entities.PredictionModel, error) {
	return a.getOne(ctx, nil, "created_at", "no prediction models exist")
}

// GetLatestTrained returns the current model, ordered by trained_at
func (a *PredictionModelAdapter) GetLatestTrained(ctx context.Context) (*entities.PredictionModel, error) {
	return a.getOne(ctx, goqu.Ex{"trained": true}, "trained_at", "no trained model exists")
}

// FindTraining returns the in-progress training row if any
func (a *PredictionModelAdapter) FindTraining(ctx context.Context) (*entities.PredictionModel, error) {
	return a.getOne(ctx, goqu.Ex{"is_training": true}, "created_at", "no training in progress")
}

func (a *PredictionModelAdapter) getOne(ctx context.Context, where goqu.Ex, orderBy, notFound string) (*entities.PredictionModel, error) {
	ds := a.db.Select(modelColumns()...).From("prediction_models")
	if where != nil {
		ds = ds.Where(where)
	}
	if orderBy != "" {
		ds = ds.Order(goqu.I(orderBy).Desc())
	}
	ds = ds.Limit(1)

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	model, err := scanModel(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(notFound)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get prediction model", err)
	}
	return model, nil
}

func modelRecord(model *entities.PredictionModel) (goqu.Record, error) {
	var data interface{}
	if model.ModelData != nil {
		raw, err := json.Marshal(model.ModelData)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to encode model data", err)
		}
		data = raw
	}

	return goqu.Record{
		"trained":             model.Trained,
		"is_training":         model.IsTraining,
		"training_progress":   model.TrainingProgress,
		"training_started_at": model.TrainingStartedAt,
		"training_job_id":     sql.NullString{String: model.TrainingJobID, Valid: model.TrainingJobID != ""},
		"samples_used":        model.SamplesUsed,
		"accuracy":            model.Accuracy,
		"model_data":          data,
		"trained_at":          model.TrainedAt,
		"last_error":          sql.NullString{String: model.LastError, Valid: model.LastError != ""},
	}, nil
}

func modelColumns() []interface{} {
	return []interface{}{
		"id", "trained", "is_training", "training_progress",
		"training_started_at", "training_job_id", "samples_used",
		"accuracy", "model_data", "trained_at", "last_error", "created_at",
	}
}

func scanModel(row rowScanner) (*entities.PredictionModel, error) {
	model := &entities.PredictionModel{}
	var startedAt, trainedAt sql.NullTime
	var jobID, lastError sql.NullString
	var data []byte

	err := row.Scan(
		&model.ID,
		&model.Trained,
		&model.IsTraining,
		&model.TrainingProgress,
		&startedAt,
		&jobID,
		&model.SamplesUsed,
		&model.Accuracy,
		&data,
		&trainedAt,
		&lastError,
		&model.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		t := startedAt.Time
		model.TrainingStartedAt = &t
	}
	if trainedAt.Valid {
		t := trainedAt.Time
		model.TrainedAt = &t
	}
	model.TrainingJobID = jobID.String
	model.LastError = lastError.String
	if len(data) > 0 {
		model.ModelData = &entities.ModelData{}
		if err := json.Unmarshal(data, model.ModelData); err != nil {
			return nil, err
		}
	}
	return model, nil
}
