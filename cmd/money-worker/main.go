package main

import (
	"context"
	"os"
	"time"

	"money/internal/amqp"
	"money/internal/cli"
	"money/internal/sheets"
	gsheet "money/internal/sheets/google"
	"money/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting money-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var exporter sheets.Exporter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleLedgerSheet, cfg.GoogleSummarySheet)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		amqpClient.Close()
	})

	w := worker.NewReconcileWorker(repo, exporter, cfg.Reconcile())

	go func() {
		err := amqpClient.ConsumeBatchReady(ctx, func(msg *amqp.BatchReadyMessage) error {
			return w.HandleBatchMessage(ctx, msg)
		})
		if err != nil && err != context.Canceled {
			logger.Error("Message consumption stopped", "error", err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
