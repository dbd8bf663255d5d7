package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tesoro/internal/amqp"
	"tesoro/internal/config"
	"tesoro/internal/export"
	gsheet "tesoro/internal/export/google"
	mem "tesoro/internal/export/memory"
	"tesoro/internal/log"
	"tesoro/internal/services"
	"tesoro/internal/storage"
	"tesoro/internal/worker"
)

func main() {
	// Load .env for local development; in containers the environment is
	// already set.
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent(log.ComponentWorker)
	log.SetDefault(logger)

	logger.Info("Starting tesoro-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Pick the export target. Without a spreadsheet the worker still
	// drains the queue into an in-memory sink, which keeps local and test
	// environments honest about the full pipeline.
	var target export.LedgerAppender
	if cfg.GoogleSpreadsheetID != "" {
		sheetsClient, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		target = sheetsClient
		logger.Info("Google Sheets export target initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		target = mem.New()
		logger.Info("Google Sheets disabled, using in-memory export target")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncWorker := worker.NewSyncWorker(repo, target, cfg.SyncBatchSize)

	// Catch up on anything left pending while the worker was down.
	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Startup sync check failed", "error", err)
		// keep going; the periodic pass retries
	}

	go func() {
		handle := func(msg *amqp.EntrySyncMessage) error {
			return syncWorker.HandleSyncMessage(ctx, msg)
		}
		if err := amqpClient.ConsumeEntrySync(ctx, handle); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	// The scheduler re-enqueues rows whose inline publish was lost, and
	// the periodic pass exports directly in case the broker is down too.
	scheduler := services.NewSyncScheduler(repo, amqpClient, services.SyncSchedulerConfig{
		PollInterval: cfg.SyncInterval,
		BatchSize:    cfg.SyncBatchSize,
	})
	if err := scheduler.Start(ctx); err != nil {
		logger.Error("Failed to start sync scheduler", "error", err)
	}

	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := syncWorker.ProcessPending(ctx); err != nil {
					logger.Error("Periodic sync failed", "error", err)
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down worker...")
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("Sync scheduler stop failed", "error", err)
	}
	cancel()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout reached")
	case <-time.After(5 * time.Second):
		logger.Info("Worker shutdown complete")
	}
}
