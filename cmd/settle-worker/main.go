package main

import (
	"os"

	"billbuddy/internal/amqp"
	"billbuddy/internal/cli"
	applog "billbuddy/internal/log"
	"billbuddy/internal/services"
	gsheet "billbuddy/internal/sheets/google"
	"billbuddy/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentWorker)
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Starting settle-worker")

	ctx, stop := cli.SignalContext()
	defer stop()

	st := cli.OpenStore(ctx, logger, cfg)

	// The worker only reads, so it neither publishes nor extracts.
	svc := services.NewLedgerService(st, nil, nil)
	defer svc.Close()

	var exporter worker.ReportExporter
	if cfg.SheetsEnabled() {
		sheets, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsFile: cfg.GoogleCredentialsFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		exporter = sheets
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	} else {
		exporter = worker.LogExporter{Logger: logger.WithComponent(applog.ComponentSheets).Logger}
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, logging settlements instead")
	}

	var consumer worker.Consumer
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		consumer = amqpClient
	} else {
		logger.Info("AMQP disabled - relying on periodic resync", "interval", cfg.ResyncInterval)
	}

	w := worker.NewSettlementWorker(svc, exporter, cfg.ResyncInterval)
	if err := w.Run(ctx, consumer); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker shutdown complete", "last_exported_revision", w.LastExported())
}
