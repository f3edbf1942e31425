// Command sweeper runs a single reconciliation pass over stuck pending
// purchases and exits. The API binary runs the same pass on a ticker; this
// one exists for manual repair and cron-style scheduling.
package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jobdesk/jobdesk-api/internal/config"
	"github.com/jobdesk/jobdesk-api/internal/domain/credit"
	"github.com/jobdesk/jobdesk-api/internal/domain/purchase"
	"github.com/jobdesk/jobdesk-api/internal/pkg/checkout"
	"github.com/jobdesk/jobdesk-api/internal/pkg/database"
	"github.com/jobdesk/jobdesk-api/internal/pkg/logger"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Development: cfg.IsDevelopment()}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	checkoutClient := checkout.NewClient(checkout.Config{
		BaseURL:    cfg.CheckoutBaseURL,
		MerchantID: cfg.CheckoutMerchantID,
		SecretKey:  cfg.CheckoutSecretKey,
	})

	creditService := credit.NewService(db)
	purchaseService := purchase.NewService(
		purchase.NewRepository(db),
		creditService,
		checkoutClient,
		cfg.FrontendURL+"/billing/return",
		cfg.BackendURL+"/api/v1/webhooks/checkout",
	)

	sweeper := purchase.NewSweepWorker(purchaseService, checkoutClient, rdb, cfg.SweepInterval, cfg.SweepThreshold)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	completed, failed, err := sweeper.RunOnce(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Reconciliation sweep failed")
	}

	log.Info().
		Int("completed", completed).
		Int("failed", failed).
		Msg("Reconciliation sweep done")
}
