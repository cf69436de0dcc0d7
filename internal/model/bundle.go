package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrModelUnavailable = errors.New("model not loaded")

const (
	primaryModelFile   = "primary_model.json"
	secondaryModelFile = "secondary_model.json"
	scalerFile         = "scaler.json"
	encodersFile       = "label_encoders.json"
	metadataFile       = "metadata.json"
	metricsFile        = "metrics.json"
)

// ArtifactBundle owns everything produced by a training run: both
// classifiers, the scaler, the categorical encoders, the explainer and the
// metadata. A loaded bundle is immutable; reload builds a fresh one and
// swaps it in atomically.
type ArtifactBundle struct {
	Primary   *Classifier
	Secondary *Classifier
	Scaler    *StandardScaler
	Encoders  map[string]*LabelEncoder
	Explainer *Explainer
	Metadata  *ModelMetadata
}

// LoadBundle reads and validates a complete artifact bundle from dir. The
// bundle is returned only when every artifact loaded and is mutually
// consistent, so a failed reload never replaces a working bundle.
func LoadBundle(dir string) (*ArtifactBundle, error) {
	meta := &ModelMetadata{}
	if err := readArtifact(dir, metadataFile, meta); err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}

	primary := &Classifier{}
	if err := readArtifact(dir, primaryModelFile, primary); err != nil {
		return nil, err
	}
	secondary := &Classifier{}
	if err := readArtifact(dir, secondaryModelFile, secondary); err != nil {
		return nil, err
	}

	scaler := &StandardScaler{}
	if err := readArtifact(dir, scalerFile, scaler); err != nil {
		return nil, err
	}

	encoders := make(map[string]*LabelEncoder)
	if err := readArtifact(dir, encodersFile, &encoders); err != nil {
		return nil, err
	}
	for _, enc := range encoders {
		enc.buildIndex()
	}

	n := len(meta.FeatureNames)
	if len(primary.Weights) != n {
		return nil, fmt.Errorf("primary classifier has %d weights for %d features", len(primary.Weights), n)
	}
	if len(secondary.Weights) != n {
		return nil, fmt.Errorf("secondary classifier has %d weights for %d features", len(secondary.Weights), n)
	}
	if len(scaler.Mean) != n || len(scaler.Scale) != n {
		return nil, fmt.Errorf("scaler has %d/%d parameters for %d features", len(scaler.Mean), len(scaler.Scale), n)
	}

	explainer, err := NewExplainer(meta.FeatureNames, primary)
	if err != nil {
		return nil, err
	}

	return &ArtifactBundle{
		Primary:   primary,
		Secondary: secondary,
		Scaler:    scaler,
		Encoders:  encoders,
		Explainer: explainer,
		Metadata:  meta,
	}, nil
}

// LoadTrainingMetrics returns the optional training metrics document written
// by the training run, or nil when absent.
func LoadTrainingMetrics(dir string) (map[string]any, error) {
	path := filepath.Join(dir, metricsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", metricsFile, err)
	}

	var metrics map[string]any
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", metricsFile, err)
	}
	return metrics, nil
}

func readArtifact(dir, name string, v any) error {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}
