package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"rampdash/internal/api"
	"rampdash/internal/config"
	"rampdash/internal/logging"
	"rampdash/pkg/rampdash"
)

func main() {
	var configPath string
	var host string
	var port int

	flag.StringVar(&configPath, "config", "", "Path to config file (optional)")
	flag.StringVar(&host, "host", "", "Host to bind the server to (overrides config)")
	flag.IntVar(&port, "port", 0, "Port to run the server on (overrides config)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger, writer, err := logging.NewLogger(cfg.Server.LogDir, slog.LevelInfo)
	if err != nil {
		slog.Error("failed to initialize logger", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("failed to close log writer", "err", err)
		}
	}()

	core, err := rampdash.New(rampdash.Options{
		Upstream: rampdash.ClientOptions{
			BaseURL:      cfg.Upstream.BaseURL,
			ClientID:     cfg.Upstream.ClientID,
			ClientSecret: cfg.Upstream.ClientSecret,
			Timeout:      cfg.Upstream.Timeout,
			MaxRetries:   cfg.Upstream.MaxRetries,
		},
		Classifier: rampdash.EngineOptions{
			APIKey:  cfg.Classifier.APIKey,
			Model:   cfg.Classifier.Model,
			BaseURL: cfg.Classifier.BaseURL,
		},
		PageSize:   cfg.Pagination.PageSize,
		ChunkSize:  cfg.Pagination.ChunkSize,
		CountLimit: cfg.Pagination.CountLimit,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to initialize core", "err", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	handler := middleware.Compress(5)(api.NewRouter(core, logger))

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("server starting", "addr", addr, "upstream", cfg.Upstream.BaseURL)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "err", err)
	}
}
