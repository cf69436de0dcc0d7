package drift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"fraud_scoring/internal/domain"
	"fraud_scoring/internal/repository"
)

var (
	ErrInsufficientBaselineSamples = errors.New("need at least 10 transactions for baseline")
	ErrInsufficientDriftSamples    = errors.New("need at least 5 transactions to check drift")
	ErrNoBaseline                  = errors.New("no baseline set")
)

const (
	MinBaselineSamples = 10
	MinDriftSamples    = 5

	perFeatureCutoff = 0.3
	aggregateCutoff  = 0.3
	criticalCutoff   = 0.6
	driftCap         = 5.0
	epsilon          = 1e-10
)

// trackedFeatures are the numeric columns the baseline covers. Optional
// fields contribute only their observed (non-nil) values.
var trackedFeatures = []string{
	"amount",
	"hour",
	"day_of_week",
	"logins_last_7_days",
	"logins_last_30_days",
	"monthly_os_changes",
	"monthly_phone_model_changes",
}

var driftAccessors = map[string]func(tx *domain.TransactionFeatures) (float64, bool){
	"amount": func(tx *domain.TransactionFeatures) (float64, bool) {
		return tx.Amount, true
	},
	"hour": func(tx *domain.TransactionFeatures) (float64, bool) {
		return float64(tx.Hour), true
	},
	"day_of_week": func(tx *domain.TransactionFeatures) (float64, bool) {
		return float64(tx.DayOfWeek), true
	},
	"logins_last_7_days": func(tx *domain.TransactionFeatures) (float64, bool) {
		if tx.LoginsLast7Days == nil {
			return 0, false
		}
		return float64(*tx.LoginsLast7Days), true
	},
	"logins_last_30_days": func(tx *domain.TransactionFeatures) (float64, bool) {
		if tx.LoginsLast30Days == nil {
			return 0, false
		}
		return float64(*tx.LoginsLast30Days), true
	},
	"monthly_os_changes": func(tx *domain.TransactionFeatures) (float64, bool) {
		if tx.MonthlyOSChanges == nil {
			return 0, false
		}
		return float64(*tx.MonthlyOSChanges), true
	},
	"monthly_phone_model_changes": func(tx *domain.TransactionFeatures) (float64, bool) {
		if tx.MonthlyPhoneModelChanges == nil {
			return 0, false
		}
		return float64(*tx.MonthlyPhoneModelChanges), true
	},
}

// Monitor maintains the per-feature statistical baseline and scores drift of
// a recent batch against it. The baseline is shared mutable state: writers
// exclude readers mid-update, and reads are stale by at most one snapshot.
type Monitor struct {
	mu       sync.RWMutex
	baseline map[string]domain.BaselineStats
	store    repository.BaselineStore
	logger   *slog.Logger
}

func NewMonitor(store repository.BaselineStore, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		store:  store,
		logger: logger,
	}
}

// SetBaseline computes mean/std/min/max/count per tracked feature over the
// observed values, persists the snapshot and replaces the resident baseline
// wholesale. Returns the tracked feature names and the sample size.
func (m *Monitor) SetBaseline(ctx context.Context, transactions []domain.TransactionFeatures) ([]string, error) {
	if len(transactions) < MinBaselineSamples {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientBaselineSamples, len(transactions))
	}

	stats := make(map[string]domain.BaselineStats)
	for _, feature := range trackedFeatures {
		values := observedValues(transactions, feature)
		if len(values) == 0 {
			continue
		}
		stats[feature] = summarize(values)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SaveBaseline(ctx, stats); err != nil {
		return nil, fmt.Errorf("failed to persist baseline: %w", err)
	}
	m.baseline = stats

	tracked := make([]string, 0, len(stats))
	for feature := range stats {
		tracked = append(tracked, feature)
	}
	sort.Strings(tracked)

	m.logger.Info("Drift baseline set",
		slog.Int("sample_size", len(transactions)),
		slog.Int("features_tracked", len(tracked)))
	return tracked, nil
}

// CheckDrift scores the batch against the resident baseline, lazily loading
// a persisted snapshot on first use. The aggregate averages over every
// baselined feature; a feature with no observed values in the batch
// contributes zero drift but stays in the denominator.
func (m *Monitor) CheckDrift(ctx context.Context, transactions []domain.TransactionFeatures) (*domain.DriftReport, error) {
	baseline, err := m.resident(ctx)
	if err != nil {
		return nil, err
	}

	if len(transactions) < MinDriftSamples {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientDriftSamples, len(transactions))
	}

	features := make([]string, 0, len(baseline))
	for feature := range baseline {
		features = append(features, feature)
	}
	sort.Strings(features)

	var drifting []domain.FeatureDrift
	totalScore := 0.0

	for _, feature := range features {
		stats := baseline[feature]
		values := observedValues(transactions, feature)
		if len(values) == 0 {
			continue
		}

		currentMean := mean(values)

		var drift float64
		if stats.Std > 0 {
			drift = math.Abs(currentMean-stats.Mean) / stats.Std
		} else {
			drift = math.Abs(currentMean-stats.Mean) / (stats.Mean + epsilon)
		}

		score := math.Min(drift, driftCap) / driftCap
		totalScore += score

		if score > perFeatureCutoff {
			drifting = append(drifting, domain.FeatureDrift{
				Feature:       feature,
				DriftScore:    round(score, 3),
				BaselineMean:  round(stats.Mean, 2),
				CurrentMean:   round(currentMean, 2),
				ChangePercent: round((currentMean-stats.Mean)/(stats.Mean+epsilon)*100, 1),
			})
		}
	}

	aggregate := 0.0
	if len(baseline) > 0 {
		aggregate = totalScore / float64(len(baseline))
	}

	detected := aggregate > aggregateCutoff || len(drifting) >= 2

	return &domain.DriftReport{
		DriftDetected:     detected,
		DriftScore:        round(aggregate, 3),
		FeaturesWithDrift: drifting,
		Recommendation:    recommendation(detected, aggregate),
		CheckedAt:         time.Now(),
	}, nil
}

func (m *Monitor) resident(ctx context.Context) (map[string]domain.BaselineStats, error) {
	m.mu.RLock()
	baseline := m.baseline
	m.mu.RUnlock()
	if baseline != nil {
		return baseline, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.baseline != nil {
		return m.baseline, nil
	}

	loaded, err := m.store.LoadBaseline(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoBaseline
		}
		return nil, fmt.Errorf("failed to load baseline: %w", err)
	}
	m.baseline = loaded
	return loaded, nil
}

func recommendation(detected bool, aggregate float64) string {
	if !detected {
		return "OK: No significant drift detected. Model performance should be stable."
	}
	if aggregate > criticalCutoff {
		return "CRITICAL: Significant data drift detected. Immediate model retraining recommended."
	}
	return "WARNING: Moderate drift detected. Schedule model retraining within the week."
}

func observedValues(transactions []domain.TransactionFeatures, feature string) []float64 {
	get, ok := driftAccessors[feature]
	if !ok {
		return nil
	}

	values := make([]float64, 0, len(transactions))
	for i := range transactions {
		if v, observed := get(&transactions[i]); observed {
			values = append(values, v)
		}
	}
	return values
}

func summarize(values []float64) domain.BaselineStats {
	minV, maxV := values[0], values[0]
	for _, v := range values[1:] {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	return domain.BaselineStats{
		Mean:  mean(values),
		Std:   std(values),
		Min:   minV,
		Max:   maxV,
		Count: len(values),
	}
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// std is the population standard deviation, matching the baseline producer.
func std(values []float64) float64 {
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

func round(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
