package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"fraud_scoring/internal/config"
	"fraud_scoring/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info("Starting stream processor",
		slog.String("brokers", cfg.KafkaBrokers),
		slog.String("group_id", cfg.KafkaGroupID),
		slog.String("scoring_url", cfg.ScoringURL))

	client := stream.NewScoringClient(cfg.ScoringURL, cfg.ScoreTimeout, logger)
	processor := stream.NewProcessor(cfg, client, logger)

	if err := processor.Connect(); err != nil {
		logger.Error("Failed to connect to Kafka", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- processor.Run(ctx)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("Shutdown signal received")
		processor.Stop()
		if err := <-done; err != nil {
			logger.Error("Processor exited with error", slog.String("error", err.Error()))
		}
	case err := <-done:
		if err != nil {
			logger.Error("Processor exited with error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("Stream processor shutdown complete")
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
