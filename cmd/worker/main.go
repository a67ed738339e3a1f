package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/source-knowledge/internal/bootstrap"
	"github.com/kirillkom/source-knowledge/internal/config"
	"github.com/kirillkom/source-knowledge/internal/observability/logging"
	"github.com/kirillkom/source-knowledge/internal/observability/metrics"
)

const (
	serviceName    = "source-knowledge-worker"
	processTimeout = 5 * time.Minute
)

func main() {
	cfg := config.Load()
	cfg.NATSEnabled = true
	slog.SetDefault(logging.NewLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, workerMetrics)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()
	if cfg.DocStoreBackend != "qdrant" {
		slog.Warn("worker_docstore_not_shared", "docstore", cfg.DocStoreBackend)
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeCorpusObjects(ctx, func(handlerCtx context.Context, key string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, processTimeout)
		defer cancel()

		start := time.Now()
		workerMetrics.StartFile()
		chunks, err := app.ProcessUC.ProcessByKey(processCtx, key)
		workerMetrics.FinishFile(time.Since(start), chunks, err)
		if err != nil {
			return err
		}
		slog.Info("corpus_processed", "key", key, "chunks", chunks, "duration_ms", time.Since(start).Milliseconds())
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
