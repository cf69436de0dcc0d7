package model

import (
	"fmt"
	"time"
)

// EnsembleWeights are the combination weights for the two classifiers.
// They ship with the artifact bundle; absent values fall back to the
// reference 0.6/0.4 split.
type EnsembleWeights struct {
	Primary   float64 `json:"primary"`
	Secondary float64 `json:"secondary"`
}

const (
	DefaultPrimaryWeight   = 0.6
	DefaultSecondaryWeight = 0.4
)

// ModelMetadata describes the artifact bundle: version, the exact column
// order both classifiers were trained on, and the decision threshold.
type ModelMetadata struct {
	Version          string           `json:"version"`
	ModelType        string           `json:"model_type"`
	OptimalThreshold float64          `json:"optimal_threshold"`
	CreatedAt        time.Time        `json:"created_at"`
	FeatureNames     []string         `json:"feature_names"`
	EnsembleWeights  *EnsembleWeights `json:"ensemble_weights,omitempty"`
}

func (m *ModelMetadata) Validate() error {
	if m.Version == "" {
		return fmt.Errorf("metadata version is empty")
	}
	if len(m.FeatureNames) == 0 {
		return fmt.Errorf("metadata declares no features")
	}
	if m.OptimalThreshold < 0 || m.OptimalThreshold > 1 {
		return fmt.Errorf("optimal_threshold %.4f outside [0,1]", m.OptimalThreshold)
	}
	if m.EnsembleWeights != nil {
		sum := m.EnsembleWeights.Primary + m.EnsembleWeights.Secondary
		if sum <= 0 {
			return fmt.Errorf("ensemble weights must sum to a positive value, got %.4f", sum)
		}
	}
	return nil
}

// Weights returns the configured ensemble weights or the reference defaults.
func (m *ModelMetadata) Weights() (float64, float64) {
	if m.EnsembleWeights == nil {
		return DefaultPrimaryWeight, DefaultSecondaryWeight
	}
	return m.EnsembleWeights.Primary, m.EnsembleWeights.Secondary
}
