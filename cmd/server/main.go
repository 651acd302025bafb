// Package main is the entry point for the ragmux retrieval server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blueberrycongee/ragmux"
	"github.com/blueberrycongee/ragmux/internal/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting ragmux server", "version", ragmux.Version)

	cfgManager, err := config.NewManager(*configPath, logger)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	defer cfgManager.Close()
	cfg := cfgManager.Current()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := ragmux.New(ctx, ragmux.WithConfig(cfg), ragmux.WithLogger(logger))
	if err != nil {
		logger.Error("failed to build client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	// Retrieval tunables follow the config file without a restart.
	cfgManager.Subscribe(client.ApplyConfig)

	// Pay for model initialization at startup rather than on the first
	// request; a cold start here is a config problem worth failing fast on.
	if err := client.EnsureReady(ctx); err != nil {
		logger.Error("embedding model unavailable", "error", err)
		os.Exit(1)
	}

	h := newHandler(client, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", h.HealthLive)
	mux.HandleFunc("GET /health/ready", h.HealthReady)
	mux.HandleFunc("POST /v1/retrieve", h.Retrieve)
	mux.HandleFunc("POST /v1/ingest", h.Ingest)
	mux.HandleFunc("POST /v1/prefetch", h.Prefetch)
	mux.HandleFunc("POST /v1/scopes", h.RegisterScope)
	mux.HandleFunc("GET /v1/scopes", h.ListScopes)
	mux.HandleFunc("GET /v1/stats", h.Stats)
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      requestIDMiddleware(logger, mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
