package model

import "fmt"

// Explainer produces per-feature attributions for a prepared vector. For the
// exported linear classifiers the contribution of feature i relative to the
// training baseline is weight_i * x_i, since the scaled training mean is zero.
type Explainer struct {
	featureNames []string
	weights      []float64
}

func NewExplainer(featureNames []string, primary *Classifier) (*Explainer, error) {
	if len(primary.Weights) != len(featureNames) {
		return nil, fmt.Errorf("explainer: %d weights for %d features", len(primary.Weights), len(featureNames))
	}
	return &Explainer{
		featureNames: featureNames,
		weights:      primary.Weights,
	}, nil
}

func (e *Explainer) Explain(vector []float64) (map[string]float64, error) {
	if len(vector) != len(e.weights) {
		return nil, fmt.Errorf("explainer expects %d features, got %d", len(e.weights), len(vector))
	}

	attribution := make(map[string]float64, len(e.featureNames))
	for i, name := range e.featureNames {
		attribution[name] = e.weights[i] * vector[i]
	}

	return attribution, nil
}
