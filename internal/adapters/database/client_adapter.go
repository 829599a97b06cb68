package database

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/lib/pq"

	"github.com/dealsight/backend/internal/domain/entities"
	"github.com/dealsight/backend/internal/domain/repositories"
	"github.com/dealsight/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/dealsight/backend/pkg/errors"
)

const uniqueViolation = "23505"

// ClientAdapter implements the ClientRepository interface
type ClientAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewClientAdapter creates a new client adapter
func NewClientAdapter(client *postgres.Client) repositories.ClientRepository {
	return &ClientAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

func clientRecord(c *entities.Client) goqu.Record {
	return goqu.Record{
		"id":            c.ID,
		"name":          c.Name,
		"email":         c.Email,
		"phone":         c.Phone,
		"meeting_date":  sql.NullTime{Time: c.MeetingDate, Valid: !c.MeetingDate.IsZero()},
		"seller":        c.Seller,
		"closed":        c.Closed,
		"transcription": c.Transcription,
		"upload_id":     c.UploadID,
		"created_at":    c.CreatedAt,
	}
}

// Create inserts a single client. A duplicate (email, phone) pair surfaces
// as a CONFLICT error so callers can classify the row.
func (a *ClientAdapter) Create(ctx context.Context, client *entities.Client) error {
	query, args, err := a.db.Insert("clients").Rows(clientRecord(client)).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err = a.client.DB().ExecContext(ctx, query, args...); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return apperrors.NewConflictError("client with this email and phone already exists")
		}
		return apperrors.NewInternalError("failed to create client", err)
	}
	return nil
}

// CreateManySkipDuplicates bulk-inserts clients with ON CONFLICT DO NOTHING
// on the (email, phone) unique constraint and returns how many rows actually
// landed.
func (a *ClientAdapter) CreateManySkipDuplicates(ctx context.Context, clients []*entities.Client) (int, error) {
	if len(clients) == 0 {
		return 0, nil
	}

	records := make([]interface{}, 0, len(clients))
	for _, c := range clients {
		records = append(records, clientRecord(c))
	}

	query, args, err := a.db.Insert("clients").
		Rows(records...).
		OnConflict(goqu.DoNothing()).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build bulk insert query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to bulk insert clients", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to count inserted clients", err)
	}
	return int(inserted), nil
}

// GetByID retrieves a client by ID
func (a *ClientAdapter) GetByID(ctx context.Context, id string) (*entities.Client, error) {
	query, args, err := a.db.Select(clientColumns()...).
		From("clients").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	client, err := scanClient(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("client not found")
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get client", err)
	}
	return client, nil
}

// FindByEmailPhonePairs returns the subset of keys already present in the
// store, matched as exact (email, phone) tuples in one query.
func (a *ClientAdapter) FindByEmailPhonePairs(ctx context.Context, keys []repositories.EmailPhoneKey) ([]repositories.EmailPhoneKey, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	conditions := make([]goqu.Expression, 0, len(keys))
	for _, k := range keys {
		conditions = append(conditions, goqu.Ex{"email": k.Email, "phone": k.Phone})
	}

	query, args, err := a.db.Select("email", "phone").
		From("clients").
		Where(goqu.Or(conditions...)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to find clients by email and phone", err)
	}
	defer rows.Close()

	var existing []repositories.EmailPhoneKey
	for rows.Next() {
		var k repositories.EmailPhoneKey
		if err := rows.Scan(&k.Email, &k.Phone); err != nil {
			return nil, apperrors.NewInternalError("failed to scan client key", err)
		}
		existing = append(existing, k)
	}
	return existing, rows.Err()
}

// ListUncategorizedByUpload returns clients in an upload without a
// categorization, in insertion order.
func (a *ClientAdapter) ListUncategorizedByUpload(ctx context.Context, uploadID string) ([]*entities.Client, error) {
	query, args, err := a.db.Select(prefixed("c", clientColumns())...).
		From(goqu.T("clients").As("c")).
		LeftJoin(
			goqu.T("categorizations").As("cat"),
			goqu.On(goqu.Ex{"cat.client_id": goqu.I("c.id")}),
		).
		Where(goqu.Ex{"c.upload_id": uploadID, "cat.id": nil}).
		Order(goqu.I("c.created_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.queryClients(ctx, query, args)
}

// GetByIDs retrieves multiple clients by ID
func (a *ClientAdapter) GetByIDs(ctx context.Context, ids []string) ([]*entities.Client, error) {
	if len(ids) == 0 {
		return []*entities.Client{}, nil
	}

	query, args, err := a.db.Select(clientColumns()...).
		From("clients").
		Where(goqu.Ex{"id": ids}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.queryClients(ctx, query, args)
}

// CountByUpload counts all clients in an upload
func (a *ClientAdapter) CountByUpload(ctx context.Context, uploadID string) (int, error) {
	return a.count(ctx, goqu.Ex{"upload_id": uploadID}, false)
}

// CountCategorizedByUpload counts categorized clients in an upload
func (a *ClientAdapter) CountCategorizedByUpload(ctx context.Context, uploadID string) (int, error) {
	return a.count(ctx, goqu.Ex{"c.upload_id": uploadID}, true)
}

// CountCategorized counts the full labeled pool across all uploads
func (a *ClientAdapter) CountCategorized(ctx context.Context) (int, error) {
	return a.count(ctx, nil, true)
}

func (a *ClientAdapter) count(ctx context.Context, where goqu.Ex, categorizedOnly bool) (int, error) {
	ds := a.db.Select(goqu.COUNT("*")).From(goqu.T("clients").As("c"))
	if categorizedOnly {
		ds = ds.InnerJoin(
			goqu.T("categorizations").As("cat"),
			goqu.On(goqu.Ex{"cat.client_id": goqu.I("c.id")}),
		)
	}
	if where != nil {
		ds = ds.Where(where)
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build count query", err)
	}

	var count int
	if err := a.client.DB().QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, apperrors.NewInternalError("failed to count clients", err)
	}
	return count, nil
}

// ListTrainingSamples returns every categorized client's category data and
// closure label, in insertion order. Order stability matters to the training
// split, so the sort key is fixed.
func (a *ClientAdapter) ListTrainingSamples(ctx context.Context) ([]*entities.TrainingSample, error) {
	query, args, err := a.db.Select("c.id", "cat.data", "c.closed").
		From(goqu.T("clients").As("c")).
		InnerJoin(
			goqu.T("categorizations").As("cat"),
			goqu.On(goqu.Ex{"cat.client_id": goqu.I("c.id")}),
		).
		Order(goqu.I("c.created_at").Asc(), goqu.I("c.id").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list training samples", err)
	}
	defer rows.Close()

	var samples []*entities.TrainingSample
	for rows.Next() {
		sample := &entities.TrainingSample{}
		var raw []byte
		if err := rows.Scan(&sample.ClientID, &raw, &sample.Closed); err != nil {
			return nil, apperrors.NewInternalError("failed to scan training sample", err)
		}
		if err := json.Unmarshal(raw, &sample.Data); err != nil {
			return nil, apperrors.NewInternalError("failed to decode category data", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func (a *ClientAdapter) queryClients(ctx context.Context, query string, args []interface{}) ([]*entities.Client, error) {
	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query clients", err)
	}
	defer rows.Close()

	var clients []*entities.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan client", err)
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

func clientColumns() []interface{} {
	return []interface{}{
		"id", "name", "email", "phone", "meeting_date",
		"seller", "closed", "transcription", "upload_id", "created_at",
	}
}

func prefixed(alias string, cols []interface{}) []interface{} {
	out := make([]interface{}, len(cols))
	for i, c := range cols {
		out[i] = goqu.I(alias + "." + c.(string))
	}
	return out
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClient(row rowScanner) (*entities.Client, error) {
	client := &entities.Client{}
	var meetingDate sql.NullTime

	err := row.Scan(
		&client.ID,
		&client.Name,
		&client.Email,
		&client.Phone,
		&meetingDate,
		&client.Seller,
		&client.Closed,
		&client.Transcription,
		&client.UploadID,
		&client.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if meetingDate.Valid {
		client.MeetingDate = meetingDate.Time
	}
	return client, nil
}
