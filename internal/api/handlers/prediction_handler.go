package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dealsight/backend/internal/application/services"
)

// PredictionHandler handles model training and live prediction requests
type PredictionHandler struct {
	predictions *services.PredictionService
}

// NewPredictionHandler creates a new prediction handler
func NewPredictionHandler(predictions *services.PredictionService) *PredictionHandler {
	return &PredictionHandler{predictions: predictions}
}

// GetStatus handles GET /api/prediction/status
func (h *PredictionHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.predictions.Status(r.Context())
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}

// Train handles POST /api/prediction/train. Training is rejected while
// another run is active or while fewer labeled samples exist than the model
// minimum; both come back as typed errors.
func (h *PredictionHandler) Train(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.predictions.StartTraining(r.Context())
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, outcome)
}

type predictRequest struct {
	Transcription string `json:"transcription"`
}

// Predict handles POST /api/prediction/predict
func (h *PredictionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}

	if strings.TrimSpace(req.Transcription) == "" {
		respondWithError(w, http.StatusBadRequest, "transcription is required")
		return
	}

	result, err := h.predictions.Predict(r.Context(), req.Transcription)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
