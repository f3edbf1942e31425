package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/jobdesk/jobdesk-api/internal/config"
	"github.com/jobdesk/jobdesk-api/internal/domain/credit"
	"github.com/jobdesk/jobdesk-api/internal/domain/purchase"
	"github.com/jobdesk/jobdesk-api/internal/middleware"
	"github.com/jobdesk/jobdesk-api/internal/pkg/checkout"
	"github.com/jobdesk/jobdesk-api/internal/pkg/database"
	"github.com/jobdesk/jobdesk-api/internal/pkg/jwt"
	"github.com/jobdesk/jobdesk-api/internal/pkg/logger"
	"github.com/jobdesk/jobdesk-api/internal/pkg/response"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Development: cfg.IsDevelopment()}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting JobDesk billing API")

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

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	checkoutClient := checkout.NewClient(checkout.Config{
		BaseURL:    cfg.CheckoutBaseURL,
		MerchantID: cfg.CheckoutMerchantID,
		SecretKey:  cfg.CheckoutSecretKey,
	})

	// ---------- Services ----------
	creditService := credit.NewService(db)
	purchaseRepo := purchase.NewRepository(db)
	purchaseService := purchase.NewService(
		purchaseRepo,
		creditService,
		checkoutClient,
		cfg.FrontendURL+"/billing/return",
		cfg.BackendURL+"/api/v1/webhooks/checkout",
	)

	// ---------- Handlers ----------
	creditHandler := credit.NewHandler(creditService)
	purchaseHandler := purchase.NewHandler(purchaseService, cfg.CheckoutSecretKey)

	authMiddleware := middleware.Auth(jwtService)

	// ---------- Background workers ----------
	sweeper := purchase.NewSweepWorker(purchaseService, checkoutClient, rdb, cfg.SweepInterval, cfg.SweepThreshold)
	sweeper.Start()
	defer sweeper.Stop()

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/billing", purchaseHandler.Routes(authMiddleware))
		r.Mount("/credits", creditHandler.Routes(authMiddleware))
		r.Mount("/webhooks", purchaseHandler.WebhookRoutes())
		r.Mount("/admin", purchaseHandler.AdminRoutes(authMiddleware, middleware.RequireAdmin()))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
