package repository

import (
	"context"
	"errors"

	"fraud_scoring/internal/domain"
)

var ErrNotFound = errors.New("not found")

// ThresholdStore persists the live decision threshold. Save is atomic:
// either the new value is durably written or the previous one remains.
type ThresholdStore interface {
	SaveThreshold(ctx context.Context, threshold float64) error
	LoadThreshold(ctx context.Context) (float64, error)
}

// BaselineStore persists the drift baseline snapshot. Snapshots are always
// written wholesale.
type BaselineStore interface {
	SaveBaseline(ctx context.Context, stats map[string]domain.BaselineStats) error
	LoadBaseline(ctx context.Context) (map[string]domain.BaselineStats, error)
}
