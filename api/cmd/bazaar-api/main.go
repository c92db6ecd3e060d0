package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bazaar/api/internal/api/handlers"
	"bazaar/api/internal/api/middleware"
	"bazaar/api/internal/api/router"
	"bazaar/api/internal/config"
	"bazaar/api/internal/core/services"
	"bazaar/api/internal/db/postgres"
	"bazaar/api/internal/infrastructure/signer"
	"bazaar/api/internal/infrastructure/storage"
)

func main() {
	// --- 1. Telemetry & Configuration ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("booting bazaar api")
	cfg := config.Load()

	// --- 2. Outbound Infrastructure ---
	ctx := context.Background()

	dbPool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("FATAL: DB failed", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	catalogDB, err := postgres.NewSQLxDB(cfg.DatabaseURL)
	if err != nil {
		logger.Error("FATAL: catalog reader failed", "error", err)
		os.Exit(1)
	}
	defer catalogDB.Close()

	artifactStore, err := storage.NewS3Storage(ctx, cfg.S3Bucket, cfg.AWSRegion)
	if err != nil {
		logger.Error("FATAL: object storage failed", "error", err)
		os.Exit(1)
	}

	fallbackBase := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.AWSRegion)
	accessIssuer := signer.NewCDNSigner(cfg.CDNBaseURL, cfg.CDNKeyID, cfg.CDNSigningSecret, fallbackBase, logger)

	// --- 3. Dependency Injection ---

	// Repositories
	appRepo := postgres.NewAppRepository(dbPool)
	versionRepo := postgres.NewVersionRepository(dbPool)
	installationRepo := postgres.NewInstallationRepository(dbPool)
	accountRepo := postgres.NewAccountRepository(dbPool)
	catalogRepo := postgres.NewCatalogRepository(catalogDB)
	uow := postgres.NewUnitOfWork(dbPool)

	// Services
	authService := services.NewAuthService(accountRepo, cfg.JWTSecret, cfg.TokenTTL)
	appsService := services.NewAppsService(appRepo, versionRepo, artifactStore, uow, logger)
	installationsService := services.NewInstallationsService(appRepo, versionRepo, installationRepo, accessIssuer, uow, logger)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	appsHandler := handlers.NewAppsHandler(appsService)
	installationsHandler := handlers.NewInstallationsHandler(installationsService)
	catalogHandler := handlers.NewCatalogHandler(catalogRepo)

	authMiddleware := middleware.NewAuthMiddleware(authService, logger)

	// --- 4. HTTP Gateway ---
	mux := router.NewRouter(router.RouterConfig{
		AllowedOrigins:       cfg.AllowedOrigins,
		AuthHandler:          authHandler,
		AppsHandler:          appsHandler,
		InstallationsHandler: installationsHandler,
		CatalogHandler:       catalogHandler,
		AuthMiddleware:       authMiddleware,
		Logger:               logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// --- 5. Graceful Exit ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("bazaar api active", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("CRITICAL: server crashed", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ERROR: forced shutdown", "error", err)
	}
	logger.Info("bazaar api shutdown complete")
}
