package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/dealdesk/be-deal-approvals/internal/client"
	"github.com/dealdesk/be-deal-approvals/internal/config"
	"github.com/dealdesk/be-deal-approvals/internal/database"
	"github.com/dealdesk/be-deal-approvals/internal/handler"
	"github.com/dealdesk/be-deal-approvals/internal/logger"
	"github.com/dealdesk/be-deal-approvals/internal/middleware"
	"github.com/dealdesk/be-deal-approvals/internal/repository"
	"github.com/dealdesk/be-deal-approvals/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Deal Approvals Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := runMigrations(cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}
	log.Info().Msg("Database migrations applied")

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	publisher, err := client.NewNotificationPublisher(cfg.NATS.URL, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer publisher.Close()

	dealRepo := repository.NewDealRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	dealService := service.NewDealService(dealRepo, approvalRepo, auditRepo, publisher, cfg.Workflow, log)
	approvalService := service.NewApprovalService(dealRepo, approvalRepo, auditRepo, publisher, log)
	queueService := service.NewQueueService(approvalRepo, cfg.Workflow, log)

	httpHandler := handler.NewHTTPHandler(dealService, approvalService, queueService, log)

	var h http.Handler = httpHandler.Routes()
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.RequestID(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}

// runMigrations applies pending schema migrations before the pool opens.
func runMigrations(cfg *config.Config) error {
	m, err := migrate.New(cfg.Database.MigrationsURL, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
