// Command docqueryd serves the extraction and search endpoints as a
// standalone HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lllllllleong/documentquery/internal/api"
	"github.com/Lllllllleong/documentquery/internal/config"
	"github.com/Lllllllleong/documentquery/internal/services"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()
	logger := config.SetupLogging(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	pipeline, err := services.NewPipelineFromConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize pipeline", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Error("Error closing clients", "error", err)
		}
	}()
	if !pipeline.InferenceAvailable() {
		logger.Warn("Vertex AI is not configured; extraction and search will report service unavailable")
	}

	srv := newServer(cfg, pipeline)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-quit:
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		logger.Error("HTTP server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", "error", err)
	}
	logger.Info("Server stopped gracefully")
}

// newServer builds the HTTP server for the pipeline.
func newServer(cfg *config.Config, pipeline *services.Pipeline) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(api.NewPipelineHandler(pipeline)),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
