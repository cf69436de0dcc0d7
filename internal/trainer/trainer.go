package trainer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"fraud_scoring/internal/model"
)

const (
	defaultTimeout = time.Hour
	diagnosticTail = 1000
)

// Runner invokes the external training command and reloads the artifact
// bundle when it succeeds. Training itself is out of scope; this only owns
// the trigger, the timeout and the reload.
type Runner struct {
	command  string
	args     []string
	timeout  time.Duration
	registry *model.Registry
	logger   *slog.Logger
}

type Result struct {
	Status       string         `json:"status"`
	Message      string         `json:"message"`
	ModelVersion string         `json:"model_version,omitempty"`
	Metrics      map[string]any `json:"metrics,omitempty"`
}

func NewRunner(command string, args []string, registry *model.Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		command:  command,
		args:     args,
		timeout:  defaultTimeout,
		registry: registry,
		logger:   logger,
	}
}

func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if r.command == "" {
		return nil, errors.New("no training command configured")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.logger.Info("Starting model training", slog.String("command", r.command))
	start := time.Now()

	cmd := exec.CommandContext(ctx, r.command, r.args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Result{
			Status:  "timeout",
			Message: fmt.Sprintf("Training exceeded %s timeout", r.timeout),
		}, nil
	}
	if err != nil {
		return &Result{
			Status:  "failed",
			Message: fmt.Sprintf("Training failed: %s", tail(stderr.String(), diagnosticTail)),
		}, nil
	}

	if err := r.registry.Reload(); err != nil {
		return nil, fmt.Errorf("training succeeded but reload failed: %w", err)
	}

	bundle, err := r.registry.Bundle()
	if err != nil {
		return nil, err
	}

	metrics, err := model.LoadTrainingMetrics(r.registry.Dir())
	if err != nil {
		r.logger.Warn("Failed to read training metrics", slog.String("error", err.Error()))
	}

	r.logger.Info("Model training complete",
		slog.String("version", bundle.Metadata.Version),
		slog.Duration("duration", time.Since(start)))

	return &Result{
		Status:       "success",
		Message:      "Model trained successfully",
		ModelVersion: bundle.Metadata.Version,
		Metrics:      metrics,
	}, nil
}

func tail(s string, n int) string {
	if s == "" {
		return "unknown error"
	}
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
