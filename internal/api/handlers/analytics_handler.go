package handlers

import (
	"net/http"

	"github.com/dealsight/backend/internal/application/services"
)

// AnalyticsHandler serves aggregated categorization reports
type AnalyticsHandler struct {
	analytics *services.AnalyticsService
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(analytics *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// GetCategories handles GET /api/analytics/categories
func (h *AnalyticsHandler) GetCategories(w http.ResponseWriter, r *http.Request) {
	report, err := h.analytics.Categories(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to build categories report")
		return
	}

	respondWithJSON(w, http.StatusOK, report)
}
