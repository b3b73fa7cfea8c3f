// The sweeper removes expired OTP challenges on a fixed interval. Deployments
// that schedule the sweep externally run this binary instead of relying on
// the in-process loop of the API server.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"app/internal/analytics"
	"app/internal/config"
	"app/internal/logger"
	"app/internal/messaging"
	"app/internal/repository"
	"app/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	logger := logger.New()

	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), cfg.DBConnectionString)
	if err != nil {
		logger.Fatal().Msgf("Failed to open DB pool: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		logger.Fatal().Msgf("Failed to ping DB: %v", err)
	}
	logger.Info().Msg("Database connection established")

	var sink analytics.Sink = analytics.NopSink{}
	if cfg.GCPProjectID != "" {
		pubsubSink, err := analytics.NewPubSubSink(context.Background(), cfg, logger)
		if err != nil {
			logger.Fatal().Msgf("Failed to create analytics sink: %v", err)
		}
		defer pubsubSink.Close()
		sink = pubsubSink
	}

	// The sweeper never issues codes; the sandbox sender and random generator
	// only satisfy construction.
	otpRepo := repository.NewOTPRepo(pool)
	otpSvc := service.NewOTPService(cfg, otpRepo, messaging.NewSandboxSender(logger), sink, service.RandomCodeGenerator{}, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	interval := time.Duration(cfg.OTPSweepIntervalSec) * time.Second
	logger.Info().Dur("interval", interval).Msg("Starting OTP sweeper")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Sweeper stopped gracefully")
			return
		case now := <-ticker.C:
			sweepCtx, sweepCancel := context.WithTimeout(ctx, 30*time.Second)
			count, err := otpSvc.SweepExpired(sweepCtx, now.UTC())
			sweepCancel()
			if err != nil {
				logger.Error().Err(err).Msg("OTP sweep failed")
				continue
			}
			logger.Info().Int("count", count).Msg("Sweep pass complete")
		}
	}
}
