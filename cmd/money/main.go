package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"money/internal/amqp"
	"money/internal/cli"
	"money/internal/sheets"
	gsheet "money/internal/sheets/google"
	"money/internal/worker"
)

func main() {
	var (
		creditPaths   []string
		checkingPaths []string
		overridesPath string
		weekOf        string
		export        bool
		publish       bool
	)
	flag.Func("credit", "path to a credit-card CSV export (repeatable)", func(v string) error {
		creditPaths = append(creditPaths, v)
		return nil
	})
	flag.Func("checking", "path to a checking-account CSV export (repeatable)", func(v string) error {
		checkingPaths = append(checkingPaths, v)
		return nil
	})
	flag.StringVar(&overridesPath, "overrides", "", "path to an overrides CSV (dataset,row,category)")
	flag.StringVar(&weekOf, "week", "", "reporting week start, YYYY-MM-DD (default today)")
	flag.BoolVar(&export, "export", false, "export the run to Google Sheets")
	flag.BoolVar(&publish, "publish", false, "publish the batch to AMQP instead of reconciling locally")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	if len(creditPaths) == 0 && len(checkingPaths) == 0 {
		logger.Error("No export files given; pass -credit and/or -checking")
		os.Exit(1)
	}

	cfg := cli.LoadAndValidateConfig(logger)
	ctx := context.Background()

	if publish {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer client.Close()

		msg := amqp.NewBatchReadyMessage(creditPaths, checkingPaths, overridesPath)
		msg.WeekOf = weekOf
		if err := client.PublishBatchReady(ctx, msg); err != nil {
			logger.Error("Failed to publish batch", "error", err)
			os.Exit(1)
		}
		return
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var exporter sheets.Exporter
	if export {
		if cfg.GoogleSpreadsheetID == "" {
			logger.Error("-export requires GOOGLE_SPREADSHEET_ID")
			os.Exit(1)
		}
		client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleLedgerSheet, cfg.GoogleSummarySheet)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		exporter = client
	}

	batch := worker.Batch{
		CreditPaths:   creditPaths,
		CheckingPaths: checkingPaths,
		OverridesPath: overridesPath,
	}
	if weekOf != "" {
		week, err := time.Parse("2006-01-02", weekOf)
		if err != nil {
			logger.Error("Invalid -week value, want YYYY-MM-DD", "value", weekOf)
			os.Exit(1)
		}
		batch.WeekOf = week
	}

	w := worker.NewReconcileWorker(repo, exporter, cfg.Reconcile())
	out, err := w.Process(ctx, batch)
	if err != nil {
		logger.Error("Reconciliation failed", "error", err)
		os.Exit(1)
	}

	fmt.Print(out.Summary.Render())
	if n := len(out.Result.ReviewQueue); n > 0 {
		fmt.Printf("\n%d transaction(s) need review; see the logs above.\n", n)
	}
}
