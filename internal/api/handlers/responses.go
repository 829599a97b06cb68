package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/dealsight/backend/pkg/errors"
)

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		return
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{"error": message})
}

// respondWithAppError maps typed application errors onto HTTP status codes
// and a JSON body carrying the error discriminant. Business-rule rejections
// (insufficient data, training in progress, model not trained,
// uncategorizable transcript) are expected negative outcomes and map to 4xx
// with their type and any structured details exposed so clients can branch
// on them.
func respondWithAppError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	body := map[string]interface{}{
		"error":   string(appErr.Type),
		"message": appErr.Message,
	}
	for key, value := range appErr.Details {
		if key == "error" || key == "message" {
			continue
		}
		body[key] = value
	}

	switch appErr.Type {
	case apperrors.ErrorTypeNotFound:
		respondWithJSON(w, http.StatusNotFound, body)
	case apperrors.ErrorTypeValidation:
		respondWithJSON(w, http.StatusBadRequest, body)
	case apperrors.ErrorTypeConflict,
		apperrors.ErrorTypeTrainingInProgress:
		respondWithJSON(w, http.StatusConflict, body)
	case apperrors.ErrorTypeInsufficientData,
		apperrors.ErrorTypeModelNotTrained,
		apperrors.ErrorTypeInsufficientCategorization:
		respondWithJSON(w, http.StatusUnprocessableEntity, body)
	case apperrors.ErrorTypeExternal:
		respondWithJSON(w, http.StatusBadGateway, body)
	default:
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}
