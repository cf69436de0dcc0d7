package scoring

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"fraud_scoring/internal/domain"
	"fraud_scoring/internal/repository"
)

var ErrInvalidThreshold = errors.New("threshold must be between 0 and 1")

// Classify maps an ensemble probability and the current threshold to a risk
// tier. Boundary values round up: exactly threshold+0.2 is CRITICAL.
func Classify(probability, threshold float64) (domain.RiskLevel, bool) {
	shouldBlock := probability >= threshold

	switch {
	case probability >= threshold+0.2:
		return domain.RiskCritical, shouldBlock
	case probability >= threshold+0.1:
		return domain.RiskHigh, shouldBlock
	case probability >= threshold:
		return domain.RiskMedium, shouldBlock
	default:
		return domain.RiskLow, shouldBlock
	}
}

// ThresholdManager owns the live decision threshold. Updates persist before
// the in-memory value changes, so a crash cannot leave a threshold that was
// never durably written; the next scoring call sees the new value as soon
// as Set returns.
type ThresholdManager struct {
	mu     sync.RWMutex
	value  float64
	store  repository.ThresholdStore
	logger *slog.Logger
}

func NewThresholdManager(store repository.ThresholdStore, initial float64, logger *slog.Logger) *ThresholdManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThresholdManager{
		value:  initial,
		store:  store,
		logger: logger,
	}
}

func (m *ThresholdManager) Get() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.value
}

// Set validates, persists and applies a new threshold, returning the
// previous value.
func (m *ThresholdManager) Set(ctx context.Context, threshold float64) (float64, error) {
	if threshold < 0 || threshold > 1 {
		return 0, ErrInvalidThreshold
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.value
	if err := m.store.SaveThreshold(ctx, threshold); err != nil {
		return 0, err
	}
	m.value = threshold

	m.logger.Info("Threshold updated",
		slog.Float64("old", old),
		slog.Float64("new", threshold))
	return old, nil
}
