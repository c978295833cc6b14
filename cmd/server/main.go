// Package main provides the API server entry point for the opportunity scanner service.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opportunity-scanner/internal/api"
	"github.com/opportunity-scanner/internal/circuitbreaker"
	"github.com/opportunity-scanner/internal/config"
	"github.com/opportunity-scanner/internal/credits"
	"github.com/opportunity-scanner/internal/logging"
	"github.com/opportunity-scanner/internal/ratelimit"
	"github.com/opportunity-scanner/internal/scan"
	"github.com/opportunity-scanner/internal/scraper"
	"github.com/opportunity-scanner/internal/service"
	"github.com/opportunity-scanner/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Repositories
	userRepo := storage.NewUserRepository(postgres)
	nicheRepo := storage.NewNicheRepository(postgres)
	scanRepo := storage.NewScanRepository(postgres)
	creditRepo := storage.NewCreditRepository(postgres)
	oppRepo := storage.NewOpportunityRepository(postgres)
	eventRepo := storage.NewScanEventRepository(clickhouse)

	cacheService := storage.NewCacheService(redis, cfg.Cache.TTL)

	// Services
	logger.Info("Initializing services...")

	ledger := credits.NewLedger(creditRepo, cacheService, cfg.Tiers, logger)

	breakers := circuitbreaker.NewRegistry(scraper.DefaultBreakerConfig())
	adapters := scraper.NewDefaultAdapters(&cfg.Scraper, breakers)
	dispatcher := scraper.NewDispatcher(&cfg.Scraper, adapters, logger)

	sourceBudget, err := ratelimit.NewSourceBudget(&ratelimit.SourceBudgetConfig{
		Redis: redis.Client(),
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to build source budget")
	}
	dispatcher.SetBudget(sourceBudget)

	oppService := service.NewOpportunityService(oppRepo, cacheService, logger)
	nicheService := service.NewNicheService(nicheRepo, userRepo, cfg.Tiers)
	userService := service.NewUserService(userRepo)
	analyticsService := service.NewAnalyticsService(eventRepo, cacheService, logger)

	pool := scan.NewPool(cfg.Scan.Workers, logger)

	orchestrator, err := scan.NewOrchestrator(&scan.OrchestratorConfig{
		UserRepo:   userRepo,
		NicheRepo:  nicheRepo,
		ScanRepo:   scanRepo,
		Ledger:     ledger,
		Dispatcher: dispatcher,
		OppService: oppService,
		Analytics:  analyticsService,
		Pool:       pool,
		Tiers:      cfg.Tiers,
		CreditCost: cfg.Scan.CreditCost,
		Logger:     logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to build scan orchestrator")
	}

	logger.Info("Services initialized")

	serverCfg := api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimit:       cfg.RateLimit,
	}

	server := api.NewServer(
		serverCfg,
		orchestrator,
		oppService,
		ledger,
		nicheService,
		userService,
		analyticsService,
		logger,
	)
	server.SetSourceHealth(breakers)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	// Let in-flight scans finish before dropping the DB connections.
	pool.Stop()

	logger.Info("Server exited")
}
