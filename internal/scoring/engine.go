package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"fraud_scoring/internal/domain"
	"fraud_scoring/internal/model"
)

// ErrInference reports a classifier or explainer failure. Single scoring
// surfaces it to the caller; batch and streaming paths substitute the
// worst-case result instead.
var ErrInference = errors.New("inference failed")

const (
	// TopFactorsSingle and TopFactorsBatch bound the ranked attribution list.
	TopFactorsSingle = 10
	TopFactorsBatch  = 5

	defaultMaxWorkers = 4
)

// Engine runs both classifiers of the active bundle over a prepared vector
// and combines them into one calibrated probability. Scoring is CPU bound,
// so calls are dispatched through a bounded worker pool; the bundle itself
// is read-only during scoring and needs no locking.
type Engine struct {
	registry *model.Registry
	preparer *model.Preparer
	workers  chan struct{}
	logger   *slog.Logger
}

// Prediction is the raw engine output, before risk classification.
type Prediction struct {
	FraudProbability float64
	Attribution      map[string]float64
	FeatureNames     []string
	ModelVersion     string
}

func NewEngine(registry *model.Registry, maxWorkers int, logger *slog.Logger) *Engine {
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry: registry,
		preparer: model.NewPreparer(),
		workers:  make(chan struct{}, maxWorkers),
		logger:   logger,
	}
}

func (e *Engine) Predict(ctx context.Context, tx *domain.TransactionFeatures) (*Prediction, error) {
	bundle, err := e.registry.Bundle()
	if err != nil {
		return nil, err
	}

	select {
	case e.workers <- struct{}{}:
		defer func() { <-e.workers }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	vector, err := e.preparer.Prepare(tx, bundle)
	if err != nil {
		return nil, err
	}

	primaryProba, err := bundle.Primary.PredictProba(vector)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	secondaryProba, err := bundle.Secondary.PredictProba(vector)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}

	wp, ws := bundle.Metadata.Weights()
	probability := (wp*primaryProba + ws*secondaryProba) / (wp + ws)

	attribution, err := bundle.Explainer.Explain(vector)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}

	return &Prediction{
		FraudProbability: probability,
		Attribution:      attribution,
		FeatureNames:     bundle.Metadata.FeatureNames,
		ModelVersion:     bundle.Metadata.Version,
	}, nil
}

// TopFactors ranks the attribution entries by absolute impact, ties broken
// by the declared feature order, and keeps the first k.
func TopFactors(attribution map[string]float64, featureOrder []string, k int) []domain.AttributionFactor {
	factors := make([]domain.AttributionFactor, 0, len(attribution))
	for _, name := range featureOrder {
		impact, ok := attribution[name]
		if !ok {
			continue
		}
		direction := "decreases"
		if impact > 0 {
			direction = "increases"
		}
		factors = append(factors, domain.AttributionFactor{
			Feature:   name,
			Impact:    impact,
			Direction: direction,
		})
	}

	sort.SliceStable(factors, func(i, j int) bool {
		return math.Abs(factors[i].Impact) > math.Abs(factors[j].Impact)
	})

	if len(factors) > k {
		factors = factors[:k]
	}
	return factors
}
