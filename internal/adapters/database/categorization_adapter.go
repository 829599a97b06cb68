package database

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"

	"github.com/dealsight/backend/internal/domain/entities"
	"github.com/dealsight/backend/internal/domain/repositories"
	"github.com/dealsight/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/dealsight/backend/pkg/errors"
)

// categoryFields are the enum-backed columns the analytics report may group
// by. The field name doubles as the JSONB key inside data.
var categoryFields = map[string]bool{
	"industry":         true,
	"company_size":     true,
	"main_pain_point":  true,
	"discovery_source": true,
	"use_case":         true,
	"volume_trend":     true,
}

// CategorizationAdapter implements the CategorizationRepository interface
type CategorizationAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewCategorizationAdapter creates a new categorization adapter
func NewCategorizationAdapter(client *postgres.Client) repositories.CategorizationRepository {
	return &CategorizationAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create inserts a categorization row. The unique client_id constraint makes
// a second categorization for the same client a CONFLICT.
func (a *CategorizationAdapter) Create(ctx context.Context, categorization *entities.Categorization) error {
	data, err := json.Marshal(categorization.Data)
	if err != nil {
		return apperrors.NewInternalError("failed to encode category data", err)
	}

	query, args, err := a.db.Insert("categorizations").Rows(goqu.Record{
		"id":             categorization.ID,
		"client_id":      categorization.ClientID,
		"data":           data,
		"llm_provider":   categorization.LLMProvider,
		"model":          categorization.Model,
		"prompt_version": categorization.PromptVersion,
		"processed_at":   categorization.ProcessedAt,
	}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err = a.client.DB().ExecContext(ctx, query, args...); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return apperrors.NewConflictError("client is already categorized")
		}
		return apperrors.NewInternalError("failed to create categorization", err)
	}
	return nil
}

// GetByClientID retrieves the categorization for one client
func (a *CategorizationAdapter) GetByClientID(ctx context.Context, clientID string) (*entities.Categorization, error) {
	query, args, err := a.db.Select(categorizationColumns()...).
		From("categorizations").
		Where(goqu.Ex{"client_id": clientID}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	categorization, err := scanCategorization(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("client has no categorization")
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get categorization", err)
	}
	return categorization, nil
}

// GetByClientIDs retrieves categorizations for multiple clients keyed by
// client ID. Uncategorized clients are absent from the result.
func (a *CategorizationAdapter) GetByClientIDs(ctx context.Context, clientIDs []string) (map[string]*entities.Categorization, error) {
	result := make(map[string]*entities.Categorization, len(clientIDs))
	if len(clientIDs) == 0 {
		return result, nil
	}

	query, args, err := a.db.Select(categorizationColumns()...).
		From("categorizations").
		Where(goqu.Ex{"client_id": clientIDs}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get categorizations", err)
	}
	defer rows.Close()

	for rows.Next() {
		categorization, err := scanCategorization(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan categorization", err)
		}
		result[categorization.ClientID] = categorization
	}
	return result, rows.Err()
}

// CountByField aggregates counts and closure rates grouped by one category
// field pulled out of the JSONB data column.
func (a *CategorizationAdapter) CountByField(ctx context.Context, field string) ([]repositories.FieldCount, error) {
	if !categoryFields[field] {
		return nil, apperrors.NewValidationError("unknown category field: " + field)
	}

	value := goqu.L("cat.data ->> ?", field)
	query, args, err := a.db.Select(
		value.As("value"),
		goqu.COUNT("*").As("count"),
		goqu.L("COUNT(*) FILTER (WHERE c.closed)").As("closed_count"),
	).
		From(goqu.T("categorizations").As("cat")).
		InnerJoin(
			goqu.T("clients").As("c"),
			goqu.On(goqu.Ex{"c.id": goqu.I("cat.client_id")}),
		).
		GroupBy(value).
		Order(goqu.I("count").Desc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build aggregation query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to aggregate categorizations", err)
	}
	defer rows.Close()

	var counts []repositories.FieldCount
	for rows.Next() {
		var fc repositories.FieldCount
		if err := rows.Scan(&fc.Value, &fc.Count, &fc.ClosedCount); err != nil {
			return nil, apperrors.NewInternalError("failed to scan aggregation row", err)
		}
		if fc.Count > 0 {
			fc.ClosureRate = float64(fc.ClosedCount) / float64(fc.Count)
		}
		counts = append(counts, fc)
	}
	return counts, rows.Err()
}

func categorizationColumns() []interface{} {
	return []interface{}{
		"id", "client_id", "data", "llm_provider", "model",
		"prompt_version", "processed_at",
	}
}

func scanCategorization(row rowScanner) (*entities.Categorization, error) {
	categorization := &entities.Categorization{}
	var data []byte

	err := row.Scan(
		&categorization.ID,
		&categorization.ClientID,
		&data,
		&categorization.LLMProvider,
		&categorization.Model,
		&categorization.PromptVersion,
		&categorization.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &categorization.Data); err != nil {
		return nil, err
	}
	return categorization, nil
}
