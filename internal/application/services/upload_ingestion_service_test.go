package services_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealsight/backend/internal/application/services"
	"github.com/dealsight/backend/internal/domain/entities"
	"github.com/dealsight/backend/internal/jobqueue"
)

const csvHeader = "Name,Email,Phone,MeetingDate,Seller,closed,Transcription\n"

func newPendingUpload(t *testing.T, uploads *MockUploadRepository, id string) {
	t.Helper()
	require.NoError(t, uploads.Create(context.Background(), &entities.Upload{
		ID:        id,
		Filename:  "meetings.csv",
		Status:    entities.UploadStatusPending,
		CreatedAt: time.Now().UTC(),
	}))
}

func TestProcess_FreshUpload(t *testing.T) {
	ctx := context.Background()
	uploads := NewMockUploadRepository()
	clients := NewMockClientRepository()

	// one pre-existing client that row 8 collides with
	require.NoError(t, clients.Create(ctx, &entities.Client{
		ID: "existing", Email: "old@x.mx", Phone: "5550000000", UploadID: "earlier",
	}))

	file := csvHeader
	for i := 1; i <= 7; i++ {
		file += fmt.Sprintf("Lead %d,lead%d@x.mx,555000%04d,2024-03-01,Luis,TRUE,transcript %d\n", i, i, i, i)
	}
	file += "Dup Of Existing,old@x.mx,5550000000,2024-03-01,Luis,FALSE,already known\n"
	file += "Dup In File,lead1@x.mx,5550000001,2024-03-01,Luis,FALSE,repeat of row one\n"
	file += "No Phone,nophone@x.mx,,2024-03-01,Luis,FALSE,missing phone\n"

	svc := services.NewUploadIngestionService(uploads, clients, nil, nil, 3)
	newPendingUpload(t, uploads, "upload-1")

	result, err := svc.Process(ctx, "upload-1", "meetings.csv", []byte(file))
	require.NoError(t, err)

	assert.Equal(t, 10, result.Total)
	assert.Equal(t, 7, result.ProcessedRows)
	assert.Equal(t, 2, result.Duplicates)
	assert.Equal(t, 1, result.Errors)
	require.Len(t, result.ErrorDetails, 1)
	assert.Equal(t, "nophone@x.mx", result.ErrorDetails[0].Email)
	assert.Equal(t, "missing email or phone", result.ErrorDetails[0].Reason)
	assert.NotEmpty(t, result.Warning)

	upload, err := uploads.GetByID(ctx, "upload-1")
	require.NoError(t, err)
	assert.Equal(t, entities.UploadStatusCompleted, upload.Status)
	assert.Equal(t, 10, upload.TotalRows)
	assert.Equal(t, 7, upload.ProcessedRows)
	assert.NotNil(t, upload.CompletedAt)

	// the dispatcher sees exactly the freshly created clients
	queue := jobqueue.NewManager()
	defer queue.Close()
	dispatcher := services.NewCategorizationDispatcher(queue, clients, NewMockCategorizationRepository())
	outcome, err := dispatcher.QueueForUpload(ctx, "upload-1")
	require.NoError(t, err)
	assert.Equal(t, 7, outcome.JobsCreated)
}

func TestProcess_ReimportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	uploads := NewMockUploadRepository()
	clients := NewMockClientRepository()
	svc := services.NewUploadIngestionService(uploads, clients, nil, nil, 50)

	file := csvHeader +
		"Ana,ana@x.mx,5511000001,2024-03-01,Luis,TRUE,transcript a\n" +
		"Beto,beto@x.mx,5511000002,2024-03-01,Luis,FALSE,transcript b\n"

	newPendingUpload(t, uploads, "upload-1")
	first, err := svc.Process(ctx, "upload-1", "meetings.csv", []byte(file))
	require.NoError(t, err)
	assert.Equal(t, 2, first.ProcessedRows)

	newPendingUpload(t, uploads, "upload-2")
	second, err := svc.Process(ctx, "upload-2", "meetings.csv", []byte(file))
	require.NoError(t, err)

	assert.Zero(t, second.ProcessedRows)
	assert.Equal(t, 2, second.Duplicates)
	assert.Zero(t, second.Errors)

	upload, err := uploads.GetByID(ctx, "upload-2")
	require.NoError(t, err)
	assert.Equal(t, entities.UploadStatusCompleted, upload.Status)
	require.NotNil(t, upload.Errors)
	assert.Contains(t, upload.Errors.Message, "duplicates")
}

func TestProcess_MissingColumnsFailsUpload(t *testing.T) {
	ctx := context.Background()
	uploads := NewMockUploadRepository()
	svc := services.NewUploadIngestionService(uploads, NewMockClientRepository(), nil, nil, 50)

	newPendingUpload(t, uploads, "upload-1")
	result, err := svc.Process(ctx, "upload-1", "meetings.csv",
		[]byte("Name,Email\nAna,ana@x.mx\n"))
	require.NoError(t, err)
	assert.Zero(t, result.ProcessedRows)

	upload, err := uploads.GetByID(ctx, "upload-1")
	require.NoError(t, err)
	assert.Equal(t, entities.UploadStatusFailed, upload.Status)
	require.NotNil(t, upload.Errors)
	assert.Contains(t, upload.Errors.MissingCols, "Phone")
	assert.Contains(t, upload.Errors.MissingCols, "Transcription")
}

func TestProcess_EmptyFileFailsUpload(t *testing.T) {
	ctx := context.Background()
	uploads := NewMockUploadRepository()
	svc := services.NewUploadIngestionService(uploads, NewMockClientRepository(), nil, nil, 50)

	newPendingUpload(t, uploads, "upload-1")
	result, err := svc.Process(ctx, "upload-1", "meetings.csv", []byte(csvHeader))
	require.NoError(t, err)
	assert.Zero(t, result.Total)

	upload, err := uploads.GetByID(ctx, "upload-1")
	require.NoError(t, err)
	assert.Equal(t, entities.UploadStatusFailed, upload.Status)
}

func TestProcess_AllErrorRowsFailsUpload(t *testing.T) {
	ctx := context.Background()
	uploads := NewMockUploadRepository()
	svc := services.NewUploadIngestionService(uploads, NewMockClientRepository(), nil, nil, 50)

	file := csvHeader +
		"Ana,,5511000001,2024-03-01,Luis,TRUE,transcript a\n" +
		"Beto,beto@x.mx,,2024-03-01,Luis,FALSE,transcript b\n"

	newPendingUpload(t, uploads, "upload-1")
	result, err := svc.Process(ctx, "upload-1", "meetings.csv", []byte(file))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Errors)
	assert.Zero(t, result.ProcessedRows)

	upload, err := uploads.GetByID(ctx, "upload-1")
	require.NoError(t, err)
	assert.Equal(t, entities.UploadStatusFailed, upload.Status)
}

func TestProcess_ParsesDatesAndClosureLabels(t *testing.T) {
	ctx := context.Background()
	uploads := NewMockUploadRepository()
	clients := NewMockClientRepository()
	svc := services.NewUploadIngestionService(uploads, clients, nil, nil, 50)

	file := csvHeader +
		"Ana,ana@x.mx,5511000001,45370,Luis,TRUE,transcript a\n"

	newPendingUpload(t, uploads, "upload-1")
	_, err := svc.Process(ctx, "upload-1", "meetings.csv", []byte(file))
	require.NoError(t, err)

	created, err := clients.ListUncategorizedByUpload(ctx, "upload-1")
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.True(t, created[0].Closed)
	assert.Equal(t,
		time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 45370-2),
		created[0].MeetingDate)
}
