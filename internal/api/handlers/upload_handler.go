package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dealsight/backend/internal/application/services"
	"github.com/dealsight/backend/internal/domain/entities"
	"github.com/dealsight/backend/internal/domain/repositories"
)

// maxUploadBytes caps the accepted spreadsheet size at 32 MiB.
const maxUploadBytes = 32 << 20

// UploadHandler handles upload ingestion HTTP requests
type UploadHandler struct {
	uploads    repositories.UploadRepository
	ingestion  *services.UploadIngestionService
	dispatcher *services.CategorizationDispatcher
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(
	uploads repositories.UploadRepository,
	ingestion *services.UploadIngestionService,
	dispatcher *services.CategorizationDispatcher,
) *UploadHandler {
	return &UploadHandler{
		uploads:    uploads,
		ingestion:  ingestion,
		dispatcher: dispatcher,
	}
}

// CreateUpload handles POST /api/uploads. It accepts a multipart form with a
// single "file" field, runs the ingestion pipeline, and returns the per-row
// outcome. Categorization jobs are enqueued before the response; they run on
// the queue's workers and are observed via the progress endpoint.
func (h *UploadHandler) CreateUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondWithError(w, http.StatusBadRequest, "request is not a valid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "form field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}
	if len(data) > maxUploadBytes {
		respondWithError(w, http.StatusRequestEntityTooLarge, "uploaded file exceeds the 32 MiB limit")
		return
	}

	upload := &entities.Upload{
		ID:        uuid.New().String(),
		Filename:  header.Filename,
		Status:    entities.UploadStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.uploads.Create(r.Context(), upload); err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to register upload")
		return
	}

	result, err := h.ingestion.Process(r.Context(), upload.ID, header.Filename, data)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	stored, err := h.uploads.GetByID(r.Context(), upload.ID)
	if err != nil {
		stored = upload
	}

	respondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"upload": stored,
		"result": result,
	})
}

// ListUploads handles GET /api/uploads
func (h *UploadHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	filter := repositories.UploadFilter{
		Status: entities.UploadStatus(r.URL.Query().Get("status")),
		Limit:  30,
		Offset: 0,
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 && n <= 200 {
			filter.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	uploads, err := h.uploads.List(r.Context(), filter)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list uploads")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"uploads": uploads,
		"count":   len(uploads),
	})
}

// GetUpload handles GET /api/uploads/{id}
func (h *UploadHandler) GetUpload(w http.ResponseWriter, r *http.Request) {
	uploadID := r.PathValue("id")
	if uploadID == "" {
		respondWithError(w, http.StatusBadRequest, "upload ID is required")
		return
	}

	upload, err := h.uploads.GetByID(r.Context(), uploadID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, upload)
}

// GetProgress handles GET /api/uploads/{id}/progress. Progress is computed
// from the retained categorization job snapshots for the upload.
func (h *UploadHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	uploadID := r.PathValue("id")
	if uploadID == "" {
		respondWithError(w, http.StatusBadRequest, "upload ID is required")
		return
	}

	if _, err := h.uploads.GetByID(r.Context(), uploadID); err != nil {
		respondWithAppError(w, err)
		return
	}

	progress, err := h.dispatcher.UploadProgress(r.Context(), uploadID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to compute upload progress")
		return
	}

	respondWithJSON(w, http.StatusOK, progress)
}

// Categorize handles POST /api/uploads/{id}/categorize. It enqueues one
// categorization job per client of the upload that has no categorization yet,
// which makes re-dispatch after worker failures safe.
func (h *UploadHandler) Categorize(w http.ResponseWriter, r *http.Request) {
	uploadID := r.PathValue("id")
	if uploadID == "" {
		respondWithError(w, http.StatusBadRequest, "upload ID is required")
		return
	}

	if _, err := h.uploads.GetByID(r.Context(), uploadID); err != nil {
		respondWithAppError(w, err)
		return
	}

	outcome, err := h.dispatcher.QueueForUpload(r.Context(), uploadID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, outcome)
}
