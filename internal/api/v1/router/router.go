package router

import (
	"context"
	"net/http"
	"strings"

	"app/internal/analytics"
	"app/internal/api/v1/handler"
	"app/internal/config"
	"app/internal/messaging"
	"app/internal/middleware"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// New wires repositories, services and handlers and returns the HTTP handler,
// the DB pool and the OTP service (the expiration sweep loop in the entry
// point drives it).
func New(cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, service.OTPService, error) {
	dsn := cfg.DBConnectionString
	// Local development usually runs Postgres without TLS; production DSNs
	// carry their own SSL settings.
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		dsn += separator + "sslmode=disable"
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open DB pool")
		return nil, nil, nil, err
	}
	if err := pool.Ping(context.Background()); err != nil {
		logger.Error().Err(err).Msg("Failed to ping DB")
		return nil, nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	validate := validator.New(validator.WithRequiredStructEnabled())

	// Analytics sink: best-effort Pub/Sub when a project is configured,
	// otherwise a no-op.
	var sink analytics.Sink = analytics.NopSink{}
	if cfg.GCPProjectID != "" {
		pubsubSink, err := analytics.NewPubSubSink(context.Background(), cfg, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create analytics sink")
			return nil, nil, nil, err
		}
		sink = pubsubSink
	}

	// Transport and code-generation strategies are fixed here, once; no
	// handler branches on environment at request time.
	var sender messaging.Sender
	if cfg.SMSGatewayURL != "" {
		sender = messaging.NewGatewaySender(cfg)
	} else {
		sender = messaging.NewSandboxSender(logger)
	}
	var codeGen service.CodeGenerator = service.RandomCodeGenerator{}
	if cfg.Environment == "development" && cfg.OTPFixedCode != "" {
		codeGen = service.FixedCodeGenerator{Code: cfg.OTPFixedCode}
	}

	otpRepo := repository.NewOTPRepo(pool)
	identityRepo := repository.NewIdentityRepo(pool)
	profileRepo := repository.NewProfileRepo(pool)
	subRepo := repository.NewSubscriptionRepo(pool)
	txRepo := repository.NewTransactionRepo(pool)

	otpSvc := service.NewOTPService(cfg, otpRepo, sender, sink, codeGen, logger)
	profileSvc := service.NewProfileService(identityRepo, profileRepo, logger)
	subSvc := service.NewSubscriptionService(subRepo, txRepo, logger)
	stripeSvc := service.NewStripeService(cfg, profileRepo, subSvc, logger)

	authHandler := handler.NewAuthHandler(otpSvc, profileSvc, cfg.JWTSecret, validate, logger)
	profileHandler := handler.NewProfileHandler(profileSvc, validate, logger)
	subscriptionHandler := handler.NewSubscriptionHandler(stripeSvc, subSvc, logger)

	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret, logger)

	apiV1Mux := http.NewServeMux()
	authHandler.RegisterRoutes(apiV1Mux)
	profileHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	subscriptionHandler.RegisterRoutes(apiV1Mux, authMiddleware)

	mux := http.NewServeMux()
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(logger, c.Handler(mux)), pool, otpSvc, nil
}
