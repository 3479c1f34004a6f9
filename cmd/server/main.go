// Package main provides the webhook receiver entry point for the
// webhook indexer service.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/webhook-indexer/internal/api"
	"github.com/webhook-indexer/internal/config"
	"github.com/webhook-indexer/internal/crypto"
	"github.com/webhook-indexer/internal/dispatch"
	"github.com/webhook-indexer/internal/helius"
	"github.com/webhook-indexer/internal/logging"
	"github.com/webhook-indexer/internal/metering"
	"github.com/webhook-indexer/internal/retry"
	"github.com/webhook-indexer/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	// The raw event archive is optional; dispatch works without it.
	var archive api.EventArchiver
	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer clickhouse.Close()

		eventArchive := storage.NewEventArchive(clickhouse)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := eventArchive.EnsureTable(ctx); err != nil {
			cancel()
			logger.WithError(err).Fatal("Failed to initialize event archive")
		}
		cancel()

		archive = eventArchive
		logger.Info("Raw event archive enabled")
	}

	logger.Info("Database connections established")

	// Credential cipher for tenant database passwords
	cipher, err := crypto.NewCipher(cfg.Crypto.Key)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize credential cipher")
	}

	// Initialize repositories
	userRepo := storage.NewUserRepository(postgres)
	databaseRepo := storage.NewDatabaseRepository(postgres)
	settingRepo := storage.NewSettingRepository(postgres)
	paramsRepo := storage.NewParamsRepository(postgres, userRepo)

	snapshots := storage.NewSnapshotService(databaseRepo, settingRepo, userRepo, cfg.Dispatch.SnapshotTTL)

	tenantPool, err := storage.NewTenantPool(&storage.TenantPoolOptions{
		Settings:  &cfg.TenantPool,
		Cipher:    cipher,
		Databases: databaseRepo,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tenant pool")
	}
	defer tenantPool.Close()

	// Initialize dispatch pipeline
	logger.Info("Initializing dispatch pipeline...")

	meter := metering.NewMeter(userRepo, redis, cfg.Dispatch.SnapshotTTL)
	heliusClient := helius.NewClient(&cfg.Helius)

	suspender, err := dispatch.NewSuspender(paramsRepo, heliusClient, redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize suspender")
	}

	dispatcher, err := dispatch.NewDispatcher(&dispatch.DispatcherConfig{
		Snapshots:     snapshots,
		Meter:         meter,
		Pool:          tenantPool,
		Suspender:     suspender,
		Ingestor:      dispatch.NewIngestor(),
		LowCreditMark: cfg.Dispatch.LowCreditMark,
		UnitTimeout:   cfg.Dispatch.UnitTimeout,
		Retry: &retry.Config{
			MaxAttempts: cfg.Dispatch.RetryAttempts,
			Delay:       cfg.Dispatch.RetryDelay,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize dispatcher")
	}

	logger.Info("Dispatch pipeline initialized")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownGrace,
		WebhookRPS:      cfg.Server.WebhookRPS,
		WebhookBurst:    cfg.Server.WebhookBurst,
	}

	server, err := api.NewServer(serverConfig, dispatcher, archive, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize server")
	}

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
