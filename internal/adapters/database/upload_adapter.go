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

// UploadAdapter implements the UploadRepository interface
type UploadAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewUploadAdapter creates a new upload adapter
func NewUploadAdapter(client *postgres.Client) repositories.UploadRepository {
	return &UploadAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create inserts a new upload row
func (a *UploadAdapter) Create(ctx context.Context, upload *entities.Upload) error {
	diagnostics, err := marshalDiagnostics(upload.Errors)
	if err != nil {
		return err
	}

	query, args, err := a.db.Insert("uploads").Rows(goqu.Record{
		"id":             upload.ID,
		"filename":       upload.Filename,
		"status":         upload.Status,
		"total_rows":     upload.TotalRows,
		"processed_rows": upload.ProcessedRows,
		"errors":         diagnostics,
		"created_at":     upload.CreatedAt,
		"completed_at":   upload.CompletedAt,
	}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err = a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create upload", err)
	}
	return nil
}

// GetByID retrieves an upload by ID
func (a *UploadAdapter) GetByID(ctx context.Context, id string) (*entities.Upload, error) {
	query, args, err := a.db.Select(uploadColumns()...).
		From("uploads").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	upload, err := scanUpload(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("upload not found")
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get upload", err)
	}
	return upload, nil
}

// Update persists status, counters and diagnostics. Rows already in a
// terminal status are left untouched; updating one is a CONFLICT.
func (a *UploadAdapter) Update(ctx context.Context, upload *entities.Upload) error {
	diagnostics, err := marshalDiagnostics(upload.Errors)
	if err != nil {
		return err
	}

	query, args, err := a.db.Update("uploads").
		Set(goqu.Record{
			"status":         upload.Status,
			"total_rows":     upload.TotalRows,
			"processed_rows": upload.ProcessedRows,
			"errors":         diagnostics,
			"completed_at":   upload.CompletedAt,
		}).
		Where(
			goqu.Ex{"id": upload.ID},
			goqu.Ex{"status": goqu.Op{"notIn": []string{
				string(entities.UploadStatusCompleted),
				string(entities.UploadStatusFailed),
			}}},
		).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update upload", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to check update result", err)
	}
	if affected == 0 {
		return apperrors.NewConflictError("upload is already in a terminal status")
	}
	return nil
}

// List retrieves uploads, most recent first
func (a *UploadAdapter) List(ctx context.Context, filter repositories.UploadFilter) ([]*entities.Upload, error) {
	ds := a.db.Select(uploadColumns()...).
		From("uploads").
		Order(goqu.I("created_at").Desc())

	if filter.Status != "" {
		ds = ds.Where(goqu.Ex{"status": filter.Status})
	}
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list uploads", err)
	}
	defer rows.Close()

	var uploads []*entities.Upload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan upload", err)
		}
		uploads = append(uploads, upload)
	}
	return uploads, rows.Err()
}

func uploadColumns() []interface{} {
	return []interface{}{
		"id", "filename", "status", "total_rows", "processed_rows",
		"errors", "created_at", "completed_at",
	}
}

func marshalDiagnostics(d *entities.UploadDiagnostics) (interface{}, error) {
	if d == nil {
		return nil, nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode upload diagnostics", err)
	}
	return raw, nil
}

func scanUpload(row rowScanner) (*entities.Upload, error) {
	upload := &entities.Upload{}
	var diagnostics []byte
	var completedAt sql.NullTime

	err := row.Scan(
		&upload.ID,
		&upload.Filename,
		&upload.Status,
		&upload.TotalRows,
		&upload.ProcessedRows,
		&diagnostics,
		&upload.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(diagnostics) > 0 {
		upload.Errors = &entities.UploadDiagnostics{}
		if err := json.Unmarshal(diagnostics, upload.Errors); err != nil {
			return nil, err
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		upload.CompletedAt = &t
	}
	return upload, nil
}
