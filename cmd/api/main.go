package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dealsight/backend/internal/adapters/cache"
	"github.com/dealsight/backend/internal/adapters/database"
	"github.com/dealsight/backend/internal/adapters/events"
	"github.com/dealsight/backend/internal/api/handlers"
	"github.com/dealsight/backend/internal/api/middleware"
	"github.com/dealsight/backend/internal/api/routes"
	"github.com/dealsight/backend/internal/application/services"
	"github.com/dealsight/backend/internal/domain/providers"
	"github.com/dealsight/backend/internal/infrastructure/clients/openai"
	"github.com/dealsight/backend/internal/infrastructure/clients/postgres"
	"github.com/dealsight/backend/internal/infrastructure/clients/redis"
	"github.com/dealsight/backend/internal/infrastructure/observability"
	"github.com/dealsight/backend/internal/jobqueue"
	"github.com/dealsight/backend/internal/ml"
	"github.com/dealsight/backend/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Env)
	logger := observability.GetLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(
			ctx,
			cfg.OTEL.ServiceName,
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			logger.Info().Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()
	logger.Info().Msg("PostgreSQL client initialized")

	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		// The application degrades without Redis: no model cache, no
		// cross-instance invalidation events.
		logger.Warn().Err(err).Msg("failed to initialize Redis client, continuing without cache")
		redisClient = nil
	} else {
		defer redisClient.Close()
		logger.Info().Msg("Redis client initialized")
	}

	var cacheProvider providers.CacheProvider
	var eventBus providers.EventBus
	if redisClient != nil {
		cacheProvider = cache.NewRedisAdapter(redisClient)
		eventBus = events.NewRedisEventBus(redisClient)
		logger.Info().Msg("event bus initialized")
	}

	if cfg.OpenAI.APIKey == "" {
		logger.Fatal().Msg("OPENAI_API_KEY is required for transcript categorization")
	}
	oracle, err := openai.NewClient(&cfg.OpenAI)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize OpenAI client")
	}

	// Adapters
	uploadAdapter := database.NewUploadAdapter(pgClient)
	clientAdapter := database.NewClientAdapter(pgClient)
	categorizationAdapter := database.NewCategorizationAdapter(pgClient)
	modelAdapter := database.NewPredictionModelAdapter(pgClient)

	// Job queue and services
	queue := jobqueue.NewManager()
	defer queue.Close()

	dispatcher := services.NewCategorizationDispatcher(queue, clientAdapter, categorizationAdapter)
	ingestionService := services.NewUploadIngestionService(
		uploadAdapter,
		clientAdapter,
		dispatcher,
		metrics,
		cfg.Pipeline.InsertBatchSize,
	)
	predictionService := services.NewPredictionService(
		modelAdapter,
		clientAdapter,
		oracle,
		queue,
		cacheProvider,
		eventBus,
		cfg.Pipeline.MinTrainingSamples,
	)
	analyticsService := services.NewAnalyticsService(categorizationAdapter)

	// Workers
	categorizationWorker := services.NewCategorizationWorker(
		clientAdapter,
		categorizationAdapter,
		oracle,
		predictionService,
		eventBus,
		metrics,
	)
	if err := categorizationWorker.Register(queue, cfg.Pipeline.CategorizationConcurrency); err != nil {
		logger.Fatal().Err(err).Msg("failed to register categorization worker")
	}

	trainingWorker := services.NewTrainingWorker(
		modelAdapter,
		clientAdapter,
		eventBus,
		predictionService,
		metrics,
		cfg.Pipeline.TrainSplit,
		ml.TrainOptions{
			Epochs:       cfg.Pipeline.TrainingEpochs,
			LearningRate: cfg.Pipeline.LearningRate,
		},
	)
	if err := trainingWorker.Register(queue); err != nil {
		logger.Fatal().Err(err).Msg("failed to register training worker")
	}

	// Invalidate the cached model when a training run completes anywhere
	if eventBus != nil {
		go func() {
			if err := predictionService.WatchEvents(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("model invalidation watcher stopped")
			}
		}()
	}

	// Handlers and router
	uploadHandler := handlers.NewUploadHandler(uploadAdapter, ingestionService, dispatcher)
	predictionHandler := handlers.NewPredictionHandler(predictionService)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)

	var cacheMiddleware *middleware.CacheMiddleware
	if cacheProvider != nil {
		cacheMiddleware = middleware.NewCacheMiddleware(cacheProvider)
	}

	router := routes.NewRouter(
		uploadHandler,
		predictionHandler,
		analyticsHandler,
		cacheMiddleware,
		metrics,
	)
	handler := router.SetupRoutes()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: handler,
		// Uploads can carry multi-megabyte spreadsheets and ingestion runs
		// synchronously, so the write timeout is generous.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", serverAddr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during server shutdown")
	}

	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing event bus")
		}
	}

	logger.Info().Msg("server stopped")
}
