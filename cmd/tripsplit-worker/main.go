package main

import (
	"context"
	"log/slog"
	"os"

	"tripsplit/internal/amqp"
	"tripsplit/internal/cli"
	"tripsplit/internal/log"
	gsheet "tripsplit/internal/sheets/google"
	"tripsplit/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("tripsplit-worker exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	app, err := cli.Bootstrap(context.Background())
	if err != nil {
		return err
	}
	defer app.Close()

	cfg, logger := app.Config, app.Logger.WithComponent(log.ComponentWorker)
	if err := cfg.ValidateWorker(); err != nil {
		return err
	}

	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()

	logger.Info("Starting tripsplit-worker", log.FieldOperation, log.OpStartup)

	// Google Sheets export is optional.
	var exporter worker.Exporter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			return err
		}
		exporter = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	w := worker.NewAuditWorker(app.Store, exporter, logger)
	err = cli.IgnoreCanceled(client.ConsumeExpenseAdded(ctx, w.HandleExpenseAdded))
	logger.Info("Worker stopped", log.FieldOperation, log.OpShutdown)
	return err
}
