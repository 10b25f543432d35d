package router

import (
	"context"
	"net/http"
	"strings"

	"busmate/internal/api/v1/handler"
	"busmate/internal/config"
	"busmate/internal/middleware"
	"busmate/internal/pgmq"
	"busmate/internal/pubsub"
	"busmate/internal/repository"
	"busmate/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

func New(cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, error) {
	logger.Info().Str("environment", cfg.Environment).Msg("Router initializing")

	// Open DB connection pool.
	dsn := cfg.DBConnectionString
	// In a development environment, we want to ensure that SSL is disabled for
	// local testing. In production, the connection string should be provided
	// with the correct SSL settings.
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		separator := " "
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			if strings.Contains(dsn, "?") {
				separator = "&"
			} else {
				separator = "?"
			}
		}
		dsn += separator + "sslmode=disable"
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create DB pool")
		return nil, nil, err
	}
	if err := pool.Ping(context.Background()); err != nil {
		logger.Error().Err(err).Msg("Failed to ping DB")
		return nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	// Initialize validator.
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Initialize Pub/Sub publisher. Without a GCP project, events are dropped.
	var publisher pubsub.Publisher
	if cfg.GCPProjectID != "" {
		p, err := pubsub.NewPublisher(context.Background(), cfg.GCPProjectID)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create Pub/Sub publisher")
			return nil, nil, err
		}
		publisher = p
	} else {
		logger.Warn().Msg("No GCP project configured, booking events disabled")
		publisher = pubsub.NopPublisher{}
	}

	// Initialize repositories, services, handlers.
	userRepo := repository.NewUserRepo(pool)
	accessRepo := repository.NewAccessRepo(pool)
	bookingRepo := repository.NewBookingRepo(pool)
	chatRepo := repository.NewChatRepo(pool)

	queue := pgmq.New(pool)
	travelClient := service.NewTravelClient(cfg.TravelAPIBaseURL, cfg.TravelAPIKey, logger)
	provider := buildTurnProvider(cfg, logger)

	admissionSvc := service.NewAdmissionService(userRepo, accessRepo, cfg.DailyUserLimit, cfg.UserRequestLimit, logger)
	userSvc := service.NewUserService(userRepo, accessRepo, cfg.DailyUserLimit, logger)
	bookingSvc := service.NewBookingService(bookingRepo, userRepo, publisher, cfg.BookingEventsTopic, queue, cfg.ETicketQueueName, logger)
	chatSvc := service.NewChatService(chatRepo, userRepo, provider, travelClient, bookingSvc, cfg.AgentMaxTurns, logger)

	chatHandler := handler.NewChatHandler(chatSvc, admissionSvc, validate, logger)
	adminHandler := handler.NewAdminHandler(userSvc, bookingSvc, chatSvc, validate, logger)

	// Create ServeMux router and mount the API v1 routes under /v1.
	mux := http.NewServeMux()

	apiV1Mux := http.NewServeMux()
	chatHandler.RegisterRoutes(apiV1Mux)
	adminHandler.RegisterRoutes(apiV1Mux)
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Apply CORS middleware.
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(c.Handler(mux)), pool, nil
}

// buildTurnProvider picks Gemini when an API key can be resolved, directly or
// through Secret Manager, and falls back to the scripted demo assistant.
func buildTurnProvider(cfg *config.Config, logger zerolog.Logger) service.TurnProvider {
	apiKey := cfg.GeminiAPIKey
	if apiKey == "" && cfg.GCPProjectID != "" {
		ctx := context.Background()
		sm, err := service.NewSecretManagerService(ctx, cfg.GCPProjectID)
		if err != nil {
			logger.Warn().Err(err).Msg("Secret Manager unavailable")
		} else {
			defer func() {
				_ = sm.Close()
			}()
			key, err := sm.GetAPIKey(ctx, cfg.GeminiSecretName)
			if err != nil {
				logger.Warn().Err(err).Msg("Fetching Gemini API key from Secret Manager failed")
			} else {
				apiKey = key
			}
		}
	}

	if apiKey == "" {
		logger.Warn().Msg("No Gemini API key configured, running in demo mode")
		return service.NewDemoProvider()
	}
	logger.Info().Str("model", cfg.GeminiModel).Msg("Gemini provider configured")
	return service.NewGeminiProvider(apiKey, cfg.GeminiModel, logger)
}
