package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fraud_scoring/internal/domain"
)

// ScoreOutcome is the result of one scoring call. Success=false means the
// call failed and the worst-case substitution was applied: fraud-scoring
// fails closed, never open.
type ScoreOutcome struct {
	Success          bool
	FraudProbability float64
	FraudScore       float64
	RiskLevel        domain.RiskLevel
	ShouldBlock      bool
	TopRiskFactors   []domain.AttributionFactor
	ProcessingTimeMs float64
}

type scoreResponse struct {
	FraudProbability float64                    `json:"fraud_probability"`
	FraudScore       float64                    `json:"fraud_score"`
	RiskLevel        domain.RiskLevel           `json:"risk_level"`
	ShouldBlock      bool                       `json:"should_block"`
	TopRiskFactors   []domain.AttributionFactor `json:"top_risk_factors"`
}

// ScoringClient calls the scoring service over HTTP with a short timeout;
// a timed-out call becomes a worst-case outcome, never an unbounded wait.
type ScoringClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewScoringClient(baseURL string, timeout time.Duration, logger *slog.Logger) *ScoringClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScoringClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *ScoringClient) Score(ctx context.Context, tx *domain.TransactionFeatures) *ScoreOutcome {
	start := time.Now()

	result, err := c.score(ctx, tx)
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		c.logger.Error("Scoring call failed, substituting worst case",
			slog.String("error", err.Error()))
		return &ScoreOutcome{
			Success:          false,
			FraudProbability: 1.0,
			FraudScore:       100.0,
			RiskLevel:        domain.RiskCritical,
			ShouldBlock:      true,
			TopRiskFactors: []domain.AttributionFactor{
				{Feature: "error", Impact: 1.0, Direction: "increases"},
			},
			ProcessingTimeMs: elapsed,
		}
	}

	factors := result.TopRiskFactors
	if len(factors) > 5 {
		factors = factors[:5]
	}

	return &ScoreOutcome{
		Success:          true,
		FraudProbability: result.FraudProbability,
		FraudScore:       result.FraudScore,
		RiskLevel:        result.RiskLevel,
		ShouldBlock:      result.ShouldBlock,
		TopRiskFactors:   factors,
		ProcessingTimeMs: elapsed,
	}
}

func (c *ScoringClient) score(ctx context.Context, tx *domain.TransactionFeatures) (*scoreResponse, error) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scoring service returned %d", resp.StatusCode)
	}

	var result scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode scoring response: %w", err)
	}
	return &result, nil
}
