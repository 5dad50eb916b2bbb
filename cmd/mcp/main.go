package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/statute-rag/internal/adapters/mcp"
	"github.com/kirillkom/statute-rag/internal/bootstrap"
	"github.com/kirillkom/statute-rag/internal/config"
	"github.com/kirillkom/statute-rag/internal/observability/logging"
)

// stdout carries the MCP protocol, so logs go to stderr.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewTextLogger(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg,
		bootstrap.WithProfile(bootstrap.ProfileServing),
		bootstrap.WithLogger(logger),
		bootstrap.WithoutQueue(),
	)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close()

	if err := app.ReloadCorpus(ctx); err != nil {
		logger.Warn("corpus_load_failed", "error", err.Error())
	}

	if err := mcpadapter.NewServer(app.Answerer, logger).ServeStdio(); err != nil {
		logger.Error("mcp_server_failed", "error", err.Error())
	}
}
