package trainer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fraud_scoring/internal/model"
)

func writeBundle(t *testing.T, dir string) {
	t.Helper()

	artifacts := map[string]any{
		"metadata.json": model.ModelMetadata{
			Version:          "2024.2",
			ModelType:        "ensemble",
			OptimalThreshold: 0.5,
			CreatedAt:        time.Now(),
			FeatureNames:     []string{"amount"},
		},
		"primary_model.json":   model.Classifier{Name: "primary", Weights: []float64{0.5}},
		"secondary_model.json": model.Classifier{Name: "secondary", Weights: []float64{0.4}},
		"scaler.json":          model.StandardScaler{Mean: []float64{0}, Scale: []float64{1}},
		"label_encoders.json":  map[string]*model.LabelEncoder{},
		"metrics.json":         map[string]any{"roc_auc": 0.93},
	}
	for name, v := range artifacts {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal %s: %v", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
}

func TestRunner_Run_NoCommand(t *testing.T) {
	registry := model.NewRegistry(t.TempDir(), nil)
	r := NewRunner("", nil, registry, nil)

	if _, err := r.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing command")
	}
}

func TestRunner_Run_SuccessReloadsModel(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir)
	registry := model.NewRegistry(dir, nil)

	r := NewRunner("true", nil, registry, nil)
	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != "success" {
		t.Fatalf("expected success, got %s: %s", result.Status, result.Message)
	}
	if result.ModelVersion != "2024.2" {
		t.Errorf("expected version 2024.2, got %s", result.ModelVersion)
	}
	if result.Metrics["roc_auc"] != 0.93 {
		t.Errorf("expected metrics carried, got %v", result.Metrics)
	}
	if !registry.Loaded() {
		t.Error("expected registry loaded after training")
	}
}

func TestRunner_Run_CommandFailure(t *testing.T) {
	registry := model.NewRegistry(t.TempDir(), nil)
	r := NewRunner("sh", []string{"-c", "echo training blew up >&2; exit 1"}, registry, nil)

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "failed" {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if !strings.Contains(result.Message, "training blew up") {
		t.Errorf("expected stderr in message, got %q", result.Message)
	}
	if registry.Loaded() {
		t.Error("expected registry untouched after failed training")
	}
}

func TestRunner_Run_Timeout(t *testing.T) {
	registry := model.NewRegistry(t.TempDir(), nil)
	r := NewRunner("sleep", []string{"5"}, registry, nil)
	r.timeout = 100 * time.Millisecond

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "timeout" {
		t.Errorf("expected timeout, got %s: %s", result.Status, result.Message)
	}
}

func TestTail(t *testing.T) {
	if got := tail("", 10); got != "unknown error" {
		t.Errorf("expected placeholder for empty stderr, got %q", got)
	}
	if got := tail("short", 10); got != "short" {
		t.Errorf("expected full string, got %q", got)
	}
	if got := tail("abcdefghij", 4); got != "ghij" {
		t.Errorf("expected last 4 chars, got %q", got)
	}
}
