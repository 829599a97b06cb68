package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dealsight/backend/internal/domain/entities"
	"github.com/dealsight/backend/internal/domain/repositories"
	"github.com/dealsight/backend/internal/infrastructure/observability"
	"github.com/dealsight/backend/internal/ingest"
	apperrors "github.com/dealsight/backend/pkg/errors"
)

// RequiredColumns are the header columns an upload must carry.
var RequiredColumns = []string{"Name", "Email", "Phone", "MeetingDate", "Seller", "closed", "Transcription"}

// UploadResult is the per-file ingestion outcome returned to the caller.
type UploadResult struct {
	Total         int                       `json:"total"`
	ProcessedRows int                       `json:"processed_rows"`
	Duplicates    int                       `json:"duplicates"`
	Errors        int                       `json:"errors"`
	ErrorDetails  []entities.RowErrorDetail `json:"error_details,omitempty"`
	Warning       string                    `json:"warning,omitempty"`
}

// UploadIngestionService parses uploaded spreadsheet exports, deduplicates
// rows against existing clients by the (email, phone) key, and inserts new
// clients in batches.
type UploadIngestionService struct {
	uploads    repositories.UploadRepository
	clients    repositories.ClientRepository
	dispatcher *CategorizationDispatcher
	metrics    *observability.Metrics
	batchSize  int
}

// NewUploadIngestionService creates a new upload ingestion service
func NewUploadIngestionService(
	uploads repositories.UploadRepository,
	clients repositories.ClientRepository,
	dispatcher *CategorizationDispatcher,
	metrics *observability.Metrics,
	batchSize int,
) *UploadIngestionService {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &UploadIngestionService{
		uploads:    uploads,
		clients:    clients,
		dispatcher: dispatcher,
		metrics:    metrics,
		batchSize:  batchSize,
	}
}

// Process runs the full ingestion pipeline for one uploaded file. The upload
// row must already exist in pending status; Process moves it to processing
// and then to its terminal status. After a successful import the
// categorization jobs are enqueued before Process returns; the jobs
// themselves run on the queue's workers.
func (s *UploadIngestionService) Process(ctx context.Context, uploadID, filename string, data []byte) (*UploadResult, error) {
	logger := observability.LoggerFromContext(ctx)

	upload, err := s.uploads.GetByID(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	rows, err := ingest.ParseRows(filename, data)
	if err != nil {
		s.failUpload(ctx, upload, err.Error(), nil)
		return nil, err
	}
	if len(rows) == 0 {
		s.failUpload(ctx, upload, "file contains no data rows", nil)
		return &UploadResult{}, nil
	}

	if missing := rows[0].Columns(RequiredColumns); len(missing) > 0 {
		s.failUpload(ctx, upload, "missing required columns: "+strings.Join(missing, ", "), missing)
		return &UploadResult{Total: len(rows)}, nil
	}

	upload.Status = entities.UploadStatusProcessing
	upload.TotalRows = len(rows)
	if err := s.uploads.Update(ctx, upload); err != nil {
		return nil, err
	}

	existing, err := s.lookupExistingKeys(ctx, rows)
	if err != nil {
		s.failUpload(ctx, upload, "could not check for duplicate clients", nil)
		return nil, err
	}

	result := &UploadResult{Total: len(rows)}
	batch := make([]*entities.Client, 0, s.batchSize)

	for _, row := range rows {
		email := strings.TrimSpace(row["Email"])
		phone := strings.TrimSpace(row["Phone"])
		if email == "" || phone == "" {
			result.Errors++
			result.ErrorDetails = append(result.ErrorDetails, entities.RowErrorDetail{
				Email:  email,
				Reason: "missing email or phone",
			})
			continue
		}

		key := repositories.EmailPhoneKey{Email: email, Phone: phone}
		if existing[key] {
			result.Duplicates++
			continue
		}
		existing[key] = true

		batch = append(batch, &entities.Client{
			ID:            uuid.New().String(),
			Name:          strings.TrimSpace(row["Name"]),
			Email:         email,
			Phone:         phone,
			MeetingDate:   ingest.ParseMeetingDate(row["MeetingDate"]),
			Seller:        strings.TrimSpace(row["Seller"]),
			Closed:        ingest.ParseClosed(row["closed"]),
			Transcription: row["Transcription"],
			UploadID:      uploadID,
			CreatedAt:     time.Now().UTC(),
		})

		if len(batch) >= s.batchSize {
			s.flushBatch(ctx, batch, result)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		s.flushBatch(ctx, batch, result)
	}

	observability.RecordRowOutcome(ctx, s.metrics, "created", result.ProcessedRows)
	observability.RecordRowOutcome(ctx, s.metrics, "duplicate", result.Duplicates)
	observability.RecordRowOutcome(ctx, s.metrics, "error", result.Errors)

	s.finishUpload(ctx, upload, result)

	if result.ProcessedRows > 0 && s.dispatcher != nil {
		// Enqueue-and-return: the caller waits for enqueue confirmation,
		// never for the jobs themselves. A dispatch failure does not undo a
		// successful import; POST /api/uploads/{id}/categorize re-dispatches.
		outcome, err := s.dispatcher.QueueForUpload(ctx, uploadID)
		if err != nil {
			logger.Warn().Err(err).Str("upload_id", uploadID).
				Msg("failed to queue categorization for upload")
		} else {
			logger.Info().Str("upload_id", uploadID).
				Int("jobs_created", outcome.JobsCreated).
				Msg("queued categorization jobs")
		}
	}

	return result, nil
}

// lookupExistingKeys collects the (email, phone) keys of all rows and asks
// the store which already exist, in one batched query.
func (s *UploadIngestionService) lookupExistingKeys(ctx context.Context, rows []ingest.Row) (map[repositories.EmailPhoneKey]bool, error) {
	seen := make(map[repositories.EmailPhoneKey]bool, len(rows))
	keys := make([]repositories.EmailPhoneKey, 0, len(rows))
	for _, row := range rows {
		key := repositories.EmailPhoneKey{
			Email: strings.TrimSpace(row["Email"]),
			Phone: strings.TrimSpace(row["Phone"]),
		}
		if key.Email == "" || key.Phone == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}

	existing, err := s.clients.FindByEmailPhonePairs(ctx, keys)
	if err != nil {
		return nil, err
	}

	known := make(map[repositories.EmailPhoneKey]bool, len(existing))
	for _, key := range existing {
		known[key] = true
	}
	return known, nil
}

// flushBatch bulk-inserts staged clients. If the bulk insert fails it falls
// back to per-row inserts so each row's outcome can be classified.
func (s *UploadIngestionService) flushBatch(ctx context.Context, batch []*entities.Client, result *UploadResult) {
	inserted, err := s.clients.CreateManySkipDuplicates(ctx, batch)
	if err == nil {
		result.ProcessedRows += inserted
		// rows skipped by the store were inserted concurrently elsewhere
		result.Duplicates += len(batch) - inserted
		return
	}

	logger := observability.LoggerFromContext(ctx)
	logger.Warn().Err(err).Int("batch_size", len(batch)).
		Msg("bulk insert failed, falling back to per-row inserts")

	for _, client := range batch {
		switch createErr := s.clients.Create(ctx, client); {
		case createErr == nil:
			result.ProcessedRows++
		case apperrors.IsType(createErr, apperrors.ErrorTypeConflict):
			result.Duplicates++
		default:
			result.Errors++
			result.ErrorDetails = append(result.ErrorDetails, entities.RowErrorDetail{
				Email:  client.Email,
				Reason: createErr.Error(),
			})
		}
	}
}

// finishUpload derives the terminal status from the accumulated counts and
// persists it together with diagnostics.
func (s *UploadIngestionService) finishUpload(ctx context.Context, upload *entities.Upload, result *UploadResult) {
	now := time.Now().UTC()
	upload.ProcessedRows = result.ProcessedRows
	upload.CompletedAt = &now

	switch {
	case result.ProcessedRows == 0 && result.Errors == result.Total:
		upload.Status = entities.UploadStatusFailed
		upload.Errors = &entities.UploadDiagnostics{
			Message:      "no rows could be imported",
			ErrorDetails: result.ErrorDetails,
		}
	case result.ProcessedRows == 0 && result.Errors > 0:
		upload.Status = entities.UploadStatusCompleted
		result.Warning = fmt.Sprintf("%d of %d rows could not be imported", result.Errors, result.Total)
		upload.Errors = &entities.UploadDiagnostics{
			Message:      result.Warning,
			ErrorDetails: result.ErrorDetails,
		}
	case result.ProcessedRows == 0:
		upload.Status = entities.UploadStatusCompleted
		upload.Errors = &entities.UploadDiagnostics{Message: "all rows were duplicates of existing clients"}
	case result.Errors > 0:
		upload.Status = entities.UploadStatusCompleted
		result.Warning = fmt.Sprintf("%d of %d rows could not be imported", result.Errors, result.Total)
		upload.Errors = &entities.UploadDiagnostics{
			Message:      result.Warning,
			ErrorDetails: result.ErrorDetails,
		}
	default:
		upload.Status = entities.UploadStatusCompleted
	}

	if err := s.uploads.Update(ctx, upload); err != nil {
		observability.LoggerFromContext(ctx).Error().Err(err).
			Str("upload_id", upload.ID).Msg("failed to finalize upload status")
	}
}

func (s *UploadIngestionService) failUpload(ctx context.Context, upload *entities.Upload, message string, missingCols []string) {
	now := time.Now().UTC()
	upload.Status = entities.UploadStatusFailed
	upload.CompletedAt = &now
	upload.Errors = &entities.UploadDiagnostics{Message: message, MissingCols: missingCols}

	if err := s.uploads.Update(ctx, upload); err != nil {
		observability.LoggerFromContext(ctx).Error().Err(err).
			Str("upload_id", upload.ID).Msg("failed to mark upload as failed")
	}
}
