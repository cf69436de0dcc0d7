package model

import (
	"fmt"
	"math"
)

// Classifier is a trained binary fraud classifier exported as per-feature
// weights and a bias term. PredictProba returns the probability of the
// positive (fraud) class.
type Classifier struct {
	Name              string             `json:"name"`
	Bias              float64            `json:"bias"`
	Weights           []float64          `json:"weights"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
}

func (c *Classifier) PredictProba(vector []float64) (float64, error) {
	if len(vector) != len(c.Weights) {
		return 0, fmt.Errorf("classifier %s expects %d features, got %d", c.Name, len(c.Weights), len(vector))
	}

	z := c.Bias
	for i, w := range c.Weights {
		z += w * vector[i]
	}

	return sigmoid(z), nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
