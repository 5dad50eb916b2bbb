package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/statute-rag/internal/adapters/http"
	"github.com/kirillkom/statute-rag/internal/bootstrap"
	"github.com/kirillkom/statute-rag/internal/config"
	"github.com/kirillkom/statute-rag/internal/observability/logging"
	"github.com/kirillkom/statute-rag/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg,
		bootstrap.WithProfile(bootstrap.ProfileServing),
		bootstrap.WithLogger(logger),
		bootstrap.WithRetrievalObserver(httpMetrics),
		bootstrap.WithBreakerListener(httpMetrics.BreakerStateChanged),
	)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close()

	if err := app.ReloadCorpus(ctx); err != nil {
		logger.Warn("corpus_load_failed", "error", err.Error())
	}
	go func() {
		err := app.Queue.SubscribeCorpusRebuilt(ctx, func(handlerCtx context.Context, chunkCount int) error {
			logger.Info("corpus_rebuilt_received", "chunks", chunkCount)
			return app.ReloadCorpus(handlerCtx)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("corpus_rebuilt_subscription_failed", "error", err.Error())
		}
	}()

	services := httpadapter.Services{
		Answerer: app.Answerer,
		Ingestor: app.Ingest,
		Sources:  app.Ingest,
		Status:   app.Corpus,
	}
	if app.Feedback != nil {
		services.Feedback = app.Feedback
		services.History = app.Feedback
	}
	router := httpadapter.NewRouter(cfg, services,
		httpadapter.WithMetrics(httpMetrics),
		httpadapter.WithLogger(logger),
	).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api_server_failed", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_failed", "error", err.Error())
	}
}
