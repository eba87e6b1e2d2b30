// Package main is the entry point for the claim-engine operational
// process.
//
// This process does not itself expose the engine to callers — spec.md §1
// names the HTTP surface that invokes the engine as an external
// collaborator — but it owns every ambient concern a production deployment
// needs around the engine: a durable store connection, the periodic
// consolidation sweep, health/readiness checks, and a Prometheus metrics
// endpoint.
//
// The process initializes:
//  1. Configuration from the environment
//  2. A PostgreSQL-backed store, fronted by a Redis read cache
//  3. The periodic consolidation scheduler
//  4. An HTTP server for health checks and metrics
//
// Lifecycle:
//  1. Load configuration from env
//  2. Initialize the store and scheduler
//  3. Start the HTTP server
//  4. Wait for shutdown signal
//  5. Gracefully drain and close resources
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dhali/claimengine/internal/config"
	"github.com/dhali/claimengine/internal/scheduler"
	"github.com/dhali/claimengine/internal/store"
	"github.com/dhali/claimengine/internal/store/postgres"
	"github.com/dhali/claimengine/internal/store/rediscache"
)

func main() {
	cfg := config.Load()

	logger := setupLogger(cfg.LogLevel, cfg.Environment)
	logger.Info().
		Str("environment", cfg.Environment).
		Msg("starting claim-engine service")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pgStore, err := postgres.Open(ctx, cfg.PostgresURL)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pgStore.Close()
	logger.Info().Msg("postgres store connected")

	cachedStore := rediscache.New(pgStore, cfg.RedisAddr, time.Minute)
	defer cachedStore.Close()
	var engineStore store.TransactionalStore = cachedStore
	logger.Info().Str("addr", cfg.RedisAddr).Msg("redis read-through cache attached")

	sched := scheduler.New(engineStore, logger)
	sched.Start(5 * time.Minute)
	defer sched.Stop()
	logger.Info().Msg("consolidation scheduler started")

	httpServer := createHTTPServer("8080", engineStore, logger)
	go func() {
		logger.Info().Str("port", "8080").Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutdown signal received, starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}
	logger.Info().Msg("http server stopped")

	logger.Info().Msg("shutdown complete")
}

// setupLogger creates a structured logger with appropriate configuration.
func setupLogger(levelStr, environment string) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var logger zerolog.Logger
	if environment == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			Level(level).
			With().
			Timestamp().
			Caller().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			Level(level).
			With().
			Timestamp().
			Str("service", "claimengine").
			Str("environment", environment).
			Logger()
	}

	return logger
}

// createHTTPServer creates an HTTP server for health checks and metrics.
func createHTTPServer(port string, s store.TransactionalStore, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		_, err := s.ListCollection(ctx, "payment_channels")
		if err != nil {
			logger.Warn().Err(err).Msg("readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready"))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
