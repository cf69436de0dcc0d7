package model

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeArtifact(t *testing.T, dir, name string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal %s: %v", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func writeBundleDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	features := []string{"amount", "hour", "direction_encoded"}
	writeArtifact(t, dir, metadataFile, ModelMetadata{
		Version:          "2024.1",
		ModelType:        "ensemble",
		OptimalThreshold: 0.5,
		CreatedAt:        time.Now(),
		FeatureNames:     features,
	})
	writeArtifact(t, dir, primaryModelFile, Classifier{
		Name: "primary", Bias: -1, Weights: []float64{0.8, 0.1, 0.3},
	})
	writeArtifact(t, dir, secondaryModelFile, Classifier{
		Name: "secondary", Bias: -0.5, Weights: []float64{0.6, 0.2, 0.1},
	})
	writeArtifact(t, dir, scalerFile, StandardScaler{
		Mean: []float64{0, 0, 0}, Scale: []float64{1, 1, 1},
	})
	writeArtifact(t, dir, encodersFile, map[string]*LabelEncoder{
		"direction": {Classes: []string{"incoming", "outgoing"}},
	})
	return dir
}

func TestLoadBundle_Valid(t *testing.T) {
	dir := writeBundleDir(t)

	bundle, err := LoadBundle(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.Metadata.Version != "2024.1" {
		t.Errorf("expected version 2024.1, got %s", bundle.Metadata.Version)
	}
	if len(bundle.Primary.Weights) != 3 {
		t.Errorf("expected 3 primary weights, got %d", len(bundle.Primary.Weights))
	}
	// Encoder index is built at load time.
	if got := bundle.Encoders["direction"].Transform("outgoing"); got != 1 {
		t.Errorf("expected code 1 for outgoing, got %d", got)
	}
}

func TestLoadBundle_MissingArtifact(t *testing.T) {
	dir := writeBundleDir(t)
	os.Remove(filepath.Join(dir, scalerFile))

	if _, err := LoadBundle(dir); err == nil {
		t.Fatal("expected error for missing scaler, got nil")
	}
}

func TestLoadBundle_WeightCountMismatch(t *testing.T) {
	dir := writeBundleDir(t)
	writeArtifact(t, dir, primaryModelFile, Classifier{
		Name: "primary", Weights: []float64{0.8, 0.1},
	})

	if _, err := LoadBundle(dir); err == nil {
		t.Fatal("expected error for weight count mismatch, got nil")
	}
}

func TestLoadBundle_InvalidMetadata(t *testing.T) {
	dir := writeBundleDir(t)
	writeArtifact(t, dir, metadataFile, ModelMetadata{
		Version:      "",
		FeatureNames: []string{"amount"},
	})

	if _, err := LoadBundle(dir); err == nil {
		t.Fatal("expected error for empty version, got nil")
	}
}

func TestLoadTrainingMetrics_Absent(t *testing.T) {
	metrics, err := LoadTrainingMetrics(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics != nil {
		t.Errorf("expected nil metrics, got %v", metrics)
	}
}

func TestLoadTrainingMetrics_Present(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, metricsFile, map[string]any{"roc_auc": 0.91})

	metrics, err := LoadTrainingMetrics(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics["roc_auc"] != 0.91 {
		t.Errorf("expected roc_auc 0.91, got %v", metrics["roc_auc"])
	}
}

func TestRegistry_BundleBeforeLoad(t *testing.T) {
	r := NewRegistry(t.TempDir(), nil)

	if _, err := r.Bundle(); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
	if r.Loaded() {
		t.Error("expected Loaded false before reload")
	}
}

func TestRegistry_ReloadAndSwap(t *testing.T) {
	dir := writeBundleDir(t)
	r := NewRegistry(dir, nil)

	if err := r.Reload(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Loaded() {
		t.Fatal("expected Loaded true after reload")
	}

	bundle, err := r.Bundle()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.Metadata.Version != "2024.1" {
		t.Errorf("expected version 2024.1, got %s", bundle.Metadata.Version)
	}
}

func TestRegistry_FailedReloadKeepsOldBundle(t *testing.T) {
	dir := writeBundleDir(t)
	r := NewRegistry(dir, nil)
	if err := r.Reload(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Corrupt the metadata; the resident bundle must survive the failure.
	if err := os.WriteFile(filepath.Join(dir, metadataFile), []byte("{"), 0o644); err != nil {
		t.Fatalf("failed to corrupt metadata: %v", err)
	}

	if err := r.Reload(); err == nil {
		t.Fatal("expected reload error, got nil")
	}
	bundle, err := r.Bundle()
	if err != nil {
		t.Fatalf("expected old bundle to survive, got %v", err)
	}
	if bundle.Metadata.Version != "2024.1" {
		t.Errorf("expected version 2024.1, got %s", bundle.Metadata.Version)
	}
}

func TestModelMetadata_Weights(t *testing.T) {
	m := &ModelMetadata{}
	wp, ws := m.Weights()
	if wp != DefaultPrimaryWeight || ws != DefaultSecondaryWeight {
		t.Errorf("expected default weights 0.6/0.4, got %v/%v", wp, ws)
	}

	m.EnsembleWeights = &EnsembleWeights{Primary: 0.7, Secondary: 0.3}
	wp, ws = m.Weights()
	if wp != 0.7 || ws != 0.3 {
		t.Errorf("expected 0.7/0.3, got %v/%v", wp, ws)
	}
}
