package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"fraud_scoring/internal/analysis"
	"fraud_scoring/internal/api"
	"fraud_scoring/internal/config"
	"fraud_scoring/internal/drift"
	"fraud_scoring/internal/model"
	"fraud_scoring/internal/repository"
	"fraud_scoring/internal/repository/file"
	"fraud_scoring/internal/repository/redisstore"
	"fraud_scoring/internal/scoring"
	"fraud_scoring/internal/trainer"
	"fraud_scoring/pkg/metrics"
)

const (
	appName = "fraud_scoring"
)

type stores interface {
	repository.ThresholdStore
	repository.BaselineStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info("Starting application",
		slog.String("name", appName),
		slog.String("model_dir", cfg.ModelDir))

	metricsCollector := metrics.NewMetricsCollector(logger)
	store := setupStore(cfg, logger)

	registry := model.NewRegistry(cfg.ModelDir, logger)
	if err := registry.Reload(); err != nil {
		logger.Error("Failed to load model bundle, scoring unavailable until reload",
			slog.String("error", err.Error()))
	}
	metricsCollector.SetModelLoaded(registry.Loaded())

	thresholds := scoring.NewThresholdManager(store, initialThreshold(store, registry, logger), logger)
	metricsCollector.SetThreshold(thresholds.Get())

	engine := scoring.NewEngine(registry, cfg.MaxWorkers, logger)
	batch := scoring.NewBatchCoordinator(engine, thresholds, cfg.BatchWorkers, logger)
	monitor := drift.NewMonitor(store, logger)
	analyzer := setupAnalyzer(cfg, logger)

	trainCmd, trainArgs := cfg.TrainArgs()
	runner := trainer.NewRunner(trainCmd, trainArgs, registry, logger)

	apiHandler := api.NewAPIHandler(registry, engine, thresholds, batch, monitor, analyzer, runner, metricsCollector, logger)
	metricsServer := metricsCollector.StartMetricsServer(cfg.MetricsAddr)
	httpServer := startHTTPServer(cfg.Port, apiHandler, logger)

	waitForShutdown(logger, httpServer, metricsServer)
	logger.Info("Application shutdown complete")
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}

func setupStore(cfg *config.Config, logger *slog.Logger) stores {
	if cfg.RedisAddr != "" {
		logger.Info("Using redis store", slog.String("addr", cfg.RedisAddr))
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return redisstore.NewStore(client)
	}
	return file.NewStore(cfg.ModelDir)
}

func setupAnalyzer(cfg *config.Config, logger *slog.Logger) analysis.Provider {
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("OPENAI_API_KEY not set, narrative analysis disabled")
		return analysis.NoopProvider{}
	}
	return analysis.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIFraudModel, cfg.OpenAIAMLModel, logger)
}

// initialThreshold prefers the persisted live threshold over the bundle's
// trained optimum.
func initialThreshold(store repository.ThresholdStore, registry *model.Registry, logger *slog.Logger) float64 {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	threshold, err := store.LoadThreshold(ctx)
	if err == nil {
		return threshold
	}
	if !errors.Is(err, repository.ErrNotFound) {
		logger.Error("Failed to load persisted threshold", slog.String("error", err.Error()))
	}

	if bundle, err := registry.Bundle(); err == nil {
		return bundle.Metadata.OptimalThreshold
	}
	return 0.5
}

func startHTTPServer(port string, apiHandler *api.APIHandler, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	apiHandler.RegisterRoutes(mux)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name": "%s", "status": "ok"}`, appName)
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Hour,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(logger *slog.Logger, httpServer, metricsServer *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}
}
