package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/statute-rag/internal/bootstrap"
	"github.com/kirillkom/statute-rag/internal/config"
	"github.com/kirillkom/statute-rag/internal/observability/logging"
	"github.com/kirillkom/statute-rag/internal/observability/metrics"
)

const buildTimeout = 30 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	buildMetrics := metrics.NewBuildMetrics("worker")
	app, err := bootstrap.New(ctx, cfg,
		bootstrap.WithProfile(bootstrap.ProfileIndexing),
		bootstrap.WithLogger(logger),
		bootstrap.WithBuildObserver(buildMetrics),
		bootstrap.WithoutHistory(),
	)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           buildMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics_server_failed", "error", err.Error())
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSBuildSubject)
	err = app.Queue.SubscribeBuildRequested(ctx, func(handlerCtx context.Context, sourceID string) error {
		buildCtx, cancel := context.WithTimeout(handlerCtx, buildTimeout)
		defer cancel()
		return app.Builder.BuildFromSource(buildCtx, sourceID)
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("worker_subscribe_failed", "error", err.Error())
		os.Exit(1)
	}
}
