package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/comigor/prompt-optimizer/internal/config"
	"github.com/comigor/prompt-optimizer/internal/llm"
	"github.com/comigor/prompt-optimizer/internal/logger"
	"github.com/comigor/prompt-optimizer/internal/relay"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		logger.L.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize upstream provider
	provider := llm.NewOpenAI(llm.NewClient(cfg.LLM), cfg.LLM)

	handler := relay.NewHandler(relay.NewOptimizer(provider, cfg.LLM), cfg.Relay)

	// No WriteTimeout: response bodies stay open for as long as the model generates.
	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.L.Info("starting server", "address", srv.Addr, "model", cfg.LLM.Model, "base_url", cfg.LLM.BaseURL)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.L.Error("server error", "error", err)
			os.Exit(1)
		}

	case sig := <-shutdown:
		logger.L.Info("start shutdown", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.L.Warn("graceful shutdown failed", "error", err)
			if err := srv.Close(); err != nil {
				logger.L.Error("forcing server close", "error", err)
			}
		}
	}
}
