package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"billbuddy/internal/amqp"
	"billbuddy/internal/cache"
	"billbuddy/internal/cli"
	"billbuddy/internal/extract"
	apphttp "billbuddy/internal/http"
	applog "billbuddy/internal/log"
	"billbuddy/internal/services"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentApp)

	ctx, stop := cli.SignalContext()
	defer stop()

	st := cli.OpenStore(ctx, logger, cfg)

	// AMQP is optional; without it the worker relies on its periodic resync.
	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without change messages", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	var extractor extract.Extractor
	if cfg.GeminiAPIKey != "" {
		gemini, err := extract.NewGemini(ctx, extract.GeminiConfig{
			APIKey:   cfg.GeminiAPIKey,
			Model:    cfg.GeminiModel,
			Endpoint: cfg.GeminiEndpoint,
		})
		if err != nil {
			logger.Error("Failed to initialize Gemini client", "error", err)
			os.Exit(1)
		}
		extractor = gemini
		logger.Info("Voice extraction enabled", "model", cfg.GeminiModel)
	} else {
		logger.Info("Voice extraction disabled - no GEMINI_API_KEY provided")
	}

	svc := services.NewLedgerService(st, publisher, extractor)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}()

	caches := cache.NewManager()
	caches.Register(svc.ReportCache())
	caches.StartCleanup(5 * time.Minute)
	defer caches.Stop()

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		MaxAudioBytes: cfg.MaxAudioBytes,
		Logger:        logger.WithComponent(applog.ComponentHTTP),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting billbuddy server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
