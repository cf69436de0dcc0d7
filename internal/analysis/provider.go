// Package analysis provides the optional narrative side-channel: expert
// fraud and AML commentary generated for a scored transaction. The scoring
// decision never depends on it; an unavailable provider degrades to absent
// fields.
package analysis

import (
	"context"

	"fraud_scoring/internal/domain"
)

// Result carries the generated analyses plus a short fingerprint of the
// inputs that produced them.
type Result struct {
	FraudAnalysis  string
	AMLAnalysis    string
	Recommendation string
	Fingerprint    string
}

type Provider interface {
	Analyze(ctx context.Context, tx *domain.TransactionFeatures, probability float64, level domain.RiskLevel, factors []domain.AttributionFactor) (*Result, error)
	Available() bool
}

// NoopProvider is used when no analysis backend is configured.
type NoopProvider struct{}

func (NoopProvider) Analyze(ctx context.Context, tx *domain.TransactionFeatures, probability float64, level domain.RiskLevel, factors []domain.AttributionFactor) (*Result, error) {
	return nil, nil
}

func (NoopProvider) Available() bool { return false }
