// Package main provides the maintenance worker entry point for the
// opportunity scanner service. It runs the scan janitor, which flags
// running scans whose worker died before reaching a terminal state.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opportunity-scanner/internal/config"
	"github.com/opportunity-scanner/internal/logging"
	"github.com/opportunity-scanner/internal/scan"
	"github.com/opportunity-scanner/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	scanRepo := storage.NewScanRepository(postgres)

	janitor := scan.NewJanitor(scanRepo, cfg.Scan.OrphanDeadline, cfg.Scan.JanitorPoll, logger)

	ctx := context.Background()
	if err := janitor.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start scan janitor")
	}

	logger.WithFields(map[string]interface{}{
		"orphan_deadline": cfg.Scan.OrphanDeadline.String(),
		"poll_interval":   cfg.Scan.JanitorPoll.String(),
	}).Info("Scan janitor started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutdown signal received, stopping janitor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := janitor.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error stopping janitor")
	}

	logger.Info("Worker stopped")
}
