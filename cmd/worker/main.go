package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/paperless-pipeline/internal/bootstrap"
	"github.com/kirillkom/paperless-pipeline/internal/config"
	"github.com/kirillkom/paperless-pipeline/internal/observability/logging"
	"github.com/kirillkom/paperless-pipeline/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logging.Install("paperless-worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("paperless-worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{OnBreakerStateChange: workerMetrics.ObserveBreaker})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	slog.Info("worker_started",
		"broker", cfg.Broker,
		"ocr_response_queue", cfg.OCRResponseQueue,
		"genai_response_queue", cfg.GenAIResponseQueue,
		"stuck_timeout", cfg.StuckDocumentTimeout.String(),
	)
	if err := app.RunWorker(ctx, workerMetrics); err != nil {
		slog.Error("worker_failed", "error", err)
		app.Close()
		os.Exit(1)
	}
	slog.Info("worker_stopped")
}
