package routes

import (
	"net/http"

	"github.com/dealsight/backend/internal/api/handlers"
	"github.com/dealsight/backend/internal/api/middleware"
	"github.com/dealsight/backend/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	uploadHandler     *handlers.UploadHandler
	predictionHandler *handlers.PredictionHandler
	analyticsHandler  *handlers.AnalyticsHandler

	cacheMiddleware *middleware.CacheMiddleware
	metrics         *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	uploadHandler *handlers.UploadHandler,
	predictionHandler *handlers.PredictionHandler,
	analyticsHandler *handlers.AnalyticsHandler,
	cacheMiddleware *middleware.CacheMiddleware,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:               http.NewServeMux(),
		uploadHandler:     uploadHandler,
		predictionHandler: predictionHandler,
		analyticsHandler:  analyticsHandler,
		cacheMiddleware:   cacheMiddleware,
		metrics:           metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	// Health check endpoint
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Upload ingestion endpoints
	r.mux.HandleFunc("POST /api/uploads", r.uploadHandler.CreateUpload)
	r.mux.HandleFunc("GET /api/uploads", r.uploadHandler.ListUploads)
	r.mux.HandleFunc("GET /api/uploads/{id}", r.uploadHandler.GetUpload)
	r.mux.HandleFunc("GET /api/uploads/{id}/progress", r.uploadHandler.GetProgress)
	r.mux.HandleFunc("POST /api/uploads/{id}/categorize", r.uploadHandler.Categorize)

	// Prediction endpoints
	r.mux.HandleFunc("GET /api/prediction/status", r.predictionHandler.GetStatus)
	r.mux.HandleFunc("POST /api/prediction/train", r.predictionHandler.Train)
	r.mux.HandleFunc("POST /api/prediction/predict", r.predictionHandler.Predict)

	// Analytics endpoints
	r.mux.HandleFunc("GET /api/analytics/categories", r.analyticsHandler.GetCategories)

	// Apply middleware in reverse order (last middleware wraps first)
	// CORS must be outermost so cached responses also get CORS headers.
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)

	if r.cacheMiddleware != nil {
		handler = r.cacheMiddleware.Middleware(handler)
	}

	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.CORSMiddleware(handler)

	return handler
}
