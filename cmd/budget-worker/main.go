package main

import (
	"context"
	"os"
	"time"

	"budgettracker/internal/amqp"
	"budgettracker/internal/cli"
	applog "budgettracker/internal/log"
	"budgettracker/internal/sheets"
	"budgettracker/internal/sheets/google"
	"budgettracker/internal/worker"
)

const (
	shutdownTimeout = 30 * time.Second
	statsInterval   = 5 * time.Minute
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	logger.Info("Starting budget-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required to run the worker")
		os.Exit(1)
	}

	result := cli.InitBackend(context.Background(), logger, cfg)

	// Without a spreadsheet, transaction events are acknowledged and dropped.
	var mirror sheets.TransactionMirror
	if cfg.SheetsEnabled() {
		client, err := google.New(context.Background(), google.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, logger.WithComponent(applog.ComponentSheets).Logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		mirror = client
		logger.Info("Google Sheets mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	} else {
		logger.Info("Google Sheets disabled - no spreadsheet or credentials provided")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}

	eventWorker := worker.NewEventWorker(result.Snapshots, mirror, logger)

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(shutdownCtx context.Context) {
		if err := eventWorker.Stop(shutdownCtx); err != nil {
			logger.Error("Event worker stop error", applog.FieldError, err)
		}
		if err := amqpClient.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", applog.FieldError, err)
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Warn("Failed to close storage backend", applog.FieldError, err)
			}
		}
	})

	if err := eventWorker.Start(ctx, amqpClient); err != nil {
		logger.Error("Failed to start event worker", applog.FieldError, err)
		os.Exit(1)
	}

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cli.WaitForShutdown(ctx, done)
			st := eventWorker.Stats()
			logger.Info("budget-worker stopped", "processed", st.Processed, "failed", st.Failed, "skipped", st.Skipped)
			return
		case <-ticker.C:
			st := eventWorker.Stats()
			logger.Info("Event worker stats", "processed", st.Processed, "failed", st.Failed, "skipped", st.Skipped)
		}
	}
}
