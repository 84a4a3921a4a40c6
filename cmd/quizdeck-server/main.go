// Package main provides the HTTP job server for quizdeck.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/quizdeck/internal/api"
	"github.com/raphaelgruber/quizdeck/internal/config"
	"github.com/raphaelgruber/quizdeck/internal/metrics"
	"github.com/raphaelgruber/quizdeck/internal/pipeline"
	"github.com/raphaelgruber/quizdeck/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	logger.Info("starting quizdeck-server",
		"port", cfg.ServerPort,
		"provider", cfg.LLMProvider,
		"model", cfg.LLMModel,
		"data_dir", cfg.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	p, err := pipeline.FromConfig(ctx, cfg, logger, collector)
	if err != nil {
		logger.Error("failed to create pipeline", "error", err)
		os.Exit(1)
	}

	jobs := service.NewJobManager(service.NewPipelineRunner(p), cfg.JobConcurrency, logger)
	server := api.NewServer(jobs, cfg.Paths(), collector, logger)

	if err := server.ListenAndServe(ctx, ":"+cfg.ServerPort); err != nil {
		logger.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := jobs.Shutdown(shutdownCtx); err != nil {
		logger.Warn("jobs still running at shutdown", "error", err)
	}
	logger.Info("server stopped")
}
